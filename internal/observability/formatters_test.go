package observability

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/pipeline/stages"
	"github.com/jonathan/resume-author/internal/types"
)

func TestPrintBenchmark(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	bench := &types.Benchmark{
		RoleTitle:   "Senior Engineer",
		Company:     "Acme Corp",
		EditVersion: 2,
		Requirements: []types.Requirement{
			{ID: "req_1", Text: "5+ years of Go", Criticality: types.CriticalityMustHave},
			{ID: "req_2", Text: "Kubernetes experience", Criticality: types.CriticalityNiceToHave},
		},
		Keywords: []string{"Go", "Kubernetes"},
	}

	p.PrintBenchmark(bench)
	output := buf.String()

	assert.Contains(t, output, "PARSED BENCHMARK")
	assert.Contains(t, output, "Senior Engineer")
	assert.Contains(t, output, "Acme Corp")
	assert.Contains(t, output, "v2")
	assert.Contains(t, output, "5+ years of Go")
	assert.Contains(t, output, "must_have")
	assert.Contains(t, output, "Go, Kubernetes")
}

func TestPrintBenchmark_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintBenchmark(nil)

	assert.Empty(t, buf.String())
}

func TestPrintGaps(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	gaps := []types.Gap{
		{
			RequirementID: "req_1",
			Requirement:   types.Requirement{ID: "req_1", Text: "Kafka experience", Criticality: types.CriticalityMustHave},
			EvidenceState: types.EvidenceNone,
		},
	}

	p.PrintGaps(gaps)
	output := buf.String()

	assert.Contains(t, output, "EVIDENCE GAPS")
	assert.Contains(t, output, "Kafka experience")
	assert.Contains(t, output, "no_evidence")
}

func TestPrintGaps_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintGaps(nil)

	assert.Contains(t, buf.String(), "NO GAPS FOUND")
}

func TestPrintSuggestions(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSuggestions([]types.Suggestion{
		{
			ID:           "sug_abc123def456",
			Intent:       types.IntentQuantifyBullet,
			PriorityTier: types.TierHigh,
			QuestionText: "Can you add a number to the Kafka bullet?",
		},
	})
	output := buf.String()

	assert.Contains(t, output, "SUGGESTIONS")
	assert.Contains(t, output, "high")
	assert.Contains(t, output, "quantify_bullet")
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	runID := uuid.New()
	gateID := "gate_interview"
	snap := &pipeline.Snapshot{
		Run: &types.Run{
			ID:           runID,
			Status:       types.StatusBlocked,
			CurrentStage: types.NodeInterview,
		},
		Nodes: []types.StageNode{
			{Key: types.NodeIntake, Status: types.NodeComplete, ActiveVersion: 1},
			{Key: types.NodeInterview, Status: types.NodeBlocked, ActiveVersion: 1},
			{Key: types.NodeExport, Status: types.NodeLocked, ActiveVersion: 1},
		},
		PendingGate: &types.Gate{ID: gateID},
	}

	p.PrintSnapshot(snap)
	output := buf.String()

	assert.Contains(t, output, "RUN SNAPSHOT")
	assert.Contains(t, output, "blocked")
	assert.Contains(t, output, "interview")
	assert.Contains(t, output, "gate_interview")
}

func TestPrintQualityReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintQualityReport(&stages.QualityReport{
		KeywordCoverage: 0.75,
		MissingKeywords: []string{"Kafka"},
		MetricBullets:   3,
		TotalBullets:    5,
		UnresolvedGaps:  1,
	})
	output := buf.String()

	assert.Contains(t, output, "QUALITY REPORT")
	assert.Contains(t, output, "75%")
	assert.Contains(t, output, "3 of 5")
	assert.Contains(t, output, "Kafka")
}
