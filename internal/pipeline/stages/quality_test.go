package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/resume-author/internal/types"
)

func TestScoreKeywordCoverageAndMetrics(t *testing.T) {
	bench := &types.Benchmark{Keywords: []string{"Kubernetes", "Go", "Kafka", "Terraform"}}
	sections := []types.Section{
		{Name: "experience", Draft: "- Scaled Kubernetes to 400 nodes\n- Wrote Go services"},
		{Name: "skills", Draft: "Kafka"},
	}
	gaps := []types.Gap{{RequirementID: "req_1"}}

	report := Score(bench, sections, gaps)
	assert.InDelta(t, 0.75, report.KeywordCoverage, 0.001)
	assert.Equal(t, []string{"Terraform"}, report.MissingKeywords)
	assert.Equal(t, 2, report.TotalBullets)
	assert.Equal(t, 1, report.MetricBullets)
	assert.Equal(t, 1, report.UnresolvedGaps)
}

func TestScoreNoKeywords(t *testing.T) {
	report := Score(&types.Benchmark{}, nil, nil)
	assert.Equal(t, 1.0, report.KeywordCoverage)
	assert.Empty(t, report.MissingKeywords)
}

func TestAssemble(t *testing.T) {
	sections := []types.Section{
		{Name: "headline", Draft: "Senior Platform Engineer"},
		{Name: "experience", Draft: "- Scaled Kubernetes"},
		{Name: "empty", Draft: "   "},
		{Name: "skills", Draft: "Go | Kubernetes"},
	}
	doc := Assemble(sections)
	assert.Contains(t, doc, "# Senior Platform Engineer\n")
	assert.Contains(t, doc, "## Experience\n\n- Scaled Kubernetes")
	assert.Contains(t, doc, "## Skills\n\nGo | Kubernetes")
	assert.NotContains(t, doc, "Empty")
}
