package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-author/internal/types"
)

func TestAnalyzeGaps(t *testing.T) {
	bench := &types.Benchmark{Requirements: []types.Requirement{
		{ID: "covered"},
		{ID: "no_evidence"},
		{ID: "no_metric"},
		{ID: "weak"},
	}}
	evidence := []types.EvidenceItem{
		{RequirementID: "covered", HasMetric: true, Strength: "strong"},
		{RequirementID: "no_metric", Strength: "strong"},
		{RequirementID: "weak", HasMetric: true, Strength: "weak"},
	}

	gaps := AnalyzeGaps(bench, evidence)
	require.Len(t, gaps, 3)

	byID := map[string]types.EvidenceState{}
	for _, gap := range gaps {
		byID[gap.RequirementID] = gap.EvidenceState
	}
	assert.Equal(t, types.EvidenceNone, byID["no_evidence"])
	assert.Equal(t, types.EvidenceNoMetric, byID["no_metric"])
	assert.Equal(t, types.EvidenceWeak, byID["weak"])
	assert.NotContains(t, byID, "covered")
}

func TestAnalyzeGapsEmptyNotNil(t *testing.T) {
	gaps := AnalyzeGaps(&types.Benchmark{}, nil)
	assert.NotNil(t, gaps)
	assert.Empty(t, gaps)
}
