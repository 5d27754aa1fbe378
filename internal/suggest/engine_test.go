package suggest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-author/internal/types"
)

func gapInput(state types.EvidenceState, crit types.Criticality) Inputs {
	return Inputs{
		Section: "experience",
		Gaps: []types.Gap{
			{
				RequirementID: "req_1",
				Requirement:   types.Requirement{ID: "req_1", Text: "Kubernetes operations", Criticality: crit},
				EvidenceState: state,
			},
		},
	}
}

func TestRankScoresGapByCriticalityAndDeficit(t *testing.T) {
	engine := NewEngine(nil)

	got := engine.Rank(gapInput(types.EvidenceNone, types.CriticalityMustHave))
	require.Len(t, got, 1)
	// must_have(3) * no_evidence(3) * experience(3)
	assert.Equal(t, float64(27), got[0].Priority)
	assert.Equal(t, types.TierHigh, got[0].PriorityTier)
	assert.Equal(t, types.IntentAddressRequirement, got[0].Intent)

	got = engine.Rank(gapInput(types.EvidenceNoMetric, types.CriticalityImplicit))
	require.Len(t, got, 1)
	// implicit(1) * no_metric(2) * experience(3)
	assert.Equal(t, float64(6), got[0].Priority)
	assert.Equal(t, types.TierHigh, got[0].PriorityTier)
	assert.Equal(t, types.IntentQuantifyBullet, got[0].Intent)
}

func TestRankRelevanceByTargetSection(t *testing.T) {
	engine := NewEngine(nil)

	in := gapInput(types.EvidenceWeak, types.CriticalityNiceToHave)
	in.Section = "education"
	got := engine.Rank(in)
	require.Len(t, got, 1)
	// nice_to_have(2) * weak(1) * other(1)
	assert.Equal(t, float64(2), got[0].Priority)
	assert.Equal(t, types.TierLow, got[0].PriorityTier)

	in.Section = "summary"
	got = engine.Rank(in)
	require.Len(t, got, 1)
	assert.Equal(t, float64(4), got[0].Priority)
	assert.Equal(t, types.TierMedium, got[0].PriorityTier)
}

func TestRankKeywordAndEvidenceCandidates(t *testing.T) {
	engine := NewEngine(nil)
	in := Inputs{
		Section:     "experience",
		SectionText: "Built data pipelines with Terraform across three regions.",
		Keywords:    []string{"Terraform", "Kafka"},
		Evidence: []types.EvidenceItem{
			{ID: "ev_used", Text: "migrated billing", Used: true},
			{ID: "ev_free", Text: "cut latency 40%", RequirementID: "req_x"},
		},
	}

	got := engine.Rank(in)
	require.Len(t, got, 2)
	for _, s := range got {
		switch s.Intent {
		case types.IntentIntegrateKeyword:
			assert.Equal(t, "Kafka", s.TargetID, "present keyword must not produce a suggestion")
			assert.Equal(t, types.RuleKeywordPresent, s.ResolvedWhen)
		case types.IntentWeaveEvidence:
			assert.Equal(t, "ev_free", s.TargetID, "used evidence must not produce a suggestion")
			assert.Equal(t, types.RuleTargetReferenced, s.ResolvedWhen)
		default:
			t.Fatalf("unexpected intent %s", s.Intent)
		}
	}
}

func TestRankCapsAndOrdersDeterministically(t *testing.T) {
	engine := NewEngine(nil)
	in := Inputs{
		Section:  "skills",
		Keywords: []string{"go", "rust", "python", "java", "scala", "kotlin", "ruby"},
	}

	first := engine.Rank(in)
	require.Len(t, first, DefaultCap)

	// Equal priorities break ties on ID, so order is reproducible.
	second := engine.Rank(in)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i].Priority, first[i-1].Priority)
		if first[i].Priority == first[i-1].Priority {
			assert.Greater(t, first[i].ID, first[i-1].ID)
		}
	}
}

func TestSuggestionIDStable(t *testing.T) {
	a := SuggestionID(types.IntentIntegrateKeyword, "Kafka")
	b := SuggestionID(types.IntentIntegrateKeyword, "Kafka")
	c := SuggestionID(types.IntentWeaveEvidence, "Kafka")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^sug_[0-9a-f]{12}$`, a)
}

type slowEnricher struct{ delay time.Duration }

func (s *slowEnricher) Enrich(ctx context.Context, _ Inputs, ranked []types.Suggestion) ([]types.Suggestion, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([]types.Suggestion, len(ranked))
	copy(out, ranked)
	for i := range out {
		out[i].QuestionText = "enriched"
	}
	return out, nil
}

type failingEnricher struct{}

func (failingEnricher) Enrich(context.Context, Inputs, []types.Suggestion) ([]types.Suggestion, error) {
	return nil, errors.New("model unavailable")
}

func TestBuildFallsBackWhenEnrichmentTimesOut(t *testing.T) {
	engine := NewEngine(&slowEnricher{delay: time.Second})
	engine.Timeout = 10 * time.Millisecond

	in := gapInput(types.EvidenceNone, types.CriticalityMustHave)
	got := engine.Build(context.Background(), in)
	require.Len(t, got, 1)
	assert.NotEqual(t, "enriched", got[0].QuestionText)
	assert.Equal(t, engine.Rank(in), got, "timeout must yield the deterministic results unchanged")
}

func TestBuildFallsBackWhenEnrichmentFails(t *testing.T) {
	engine := NewEngine(failingEnricher{})
	in := gapInput(types.EvidenceNone, types.CriticalityMustHave)
	got := engine.Build(context.Background(), in)
	assert.Equal(t, engine.Rank(in), got)
}

func TestBuildAppliesEnrichment(t *testing.T) {
	engine := NewEngine(&slowEnricher{delay: 0})
	in := gapInput(types.EvidenceNone, types.CriticalityMustHave)
	got := engine.Build(context.Background(), in)
	require.Len(t, got, 1)
	assert.Equal(t, "enriched", got[0].QuestionText)
}

func TestResolvedRules(t *testing.T) {
	draft := "Led the Kafka migration, cut latency 40% across services."

	kw := types.Suggestion{ResolvedWhen: types.RuleKeywordPresent, Target: "kafka"}
	assert.True(t, Resolved(kw, draft))
	kw.Target = "terraform"
	assert.False(t, Resolved(kw, draft))

	ref := types.Suggestion{ResolvedWhen: types.RuleTargetReferenced, Target: "cut latency 40%"}
	assert.True(t, Resolved(ref, draft))

	recheck := types.Suggestion{ResolvedWhen: types.RuleAlwaysRecheck, Target: "kafka"}
	assert.False(t, Resolved(recheck, draft), "always_recheck never auto-resolves")
}

func TestPrunePreservesOrder(t *testing.T) {
	list := []types.Suggestion{
		{ID: "a", ResolvedWhen: types.RuleKeywordPresent, Target: "kafka"},
		{ID: "b", ResolvedWhen: types.RuleAlwaysRecheck},
		{ID: "c", ResolvedWhen: types.RuleKeywordPresent, Target: "spark"},
	}
	got := Prune(list, "Streams on Kafka.")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}
