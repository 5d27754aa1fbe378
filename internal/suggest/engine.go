// Package suggest builds the ranked suggestion list attached to section
// review gates. Ranking is fully deterministic; an optional enrichment pass
// rewrites display text via the model but never changes identity, ordering,
// or count.
package suggest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/resume-author/internal/types"
)

// DefaultEnrichTimeout bounds the enrichment pass. When it expires the
// deterministic results are returned as-is.
const DefaultEnrichTimeout = 5 * time.Second

// DefaultCap is the maximum number of suggestions attached to a gate.
const DefaultCap = 5

// Inputs carries everything the deterministic pass scores against.
type Inputs struct {
	Section     string
	SectionText string
	Gaps        []types.Gap
	Evidence    []types.EvidenceItem
	Keywords    []string
}

// Engine produces suggestions for a section draft.
type Engine struct {
	Enricher Enricher
	Timeout  time.Duration
	Cap      int
}

// NewEngine returns an engine with default bounds. enricher may be nil,
// in which case only the deterministic pass runs.
func NewEngine(enricher Enricher) *Engine {
	return &Engine{Enricher: enricher, Timeout: DefaultEnrichTimeout, Cap: DefaultCap}
}

// Build runs both passes and returns the final suggestion list. It never
// returns an error: enrichment failures and timeouts fall back to the
// deterministic results.
func (e *Engine) Build(ctx context.Context, in Inputs) []types.Suggestion {
	ranked := e.Rank(in)
	if e.Enricher == nil || len(ranked) == 0 {
		return ranked
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultEnrichTimeout
	}
	enrichCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	enriched, err := e.Enricher.Enrich(enrichCtx, in, ranked)
	if err != nil {
		log.Printf("[suggest] enrichment skipped: %v", err)
		return ranked
	}
	return enriched
}

// Rank is the deterministic first pass: generate candidates from gaps,
// unused evidence, and missing keywords, score them, and keep the top
// entries in stable order.
func (e *Engine) Rank(in Inputs) []types.Suggestion {
	candidates := e.candidates(in)

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	limit := e.Cap
	if limit <= 0 {
		limit = DefaultCap
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

func (e *Engine) candidates(in Inputs) []types.Suggestion {
	var out []types.Suggestion

	for _, gap := range in.Gaps {
		s, ok := fromGap(in, gap)
		if !ok {
			continue
		}
		out = append(out, s)
	}

	for _, item := range in.Evidence {
		if item.Used {
			continue
		}
		s := types.Suggestion{
			Intent:       types.IntentWeaveEvidence,
			TargetID:     item.ID,
			Target:       item.Text,
			QuestionText: fmt.Sprintf("Work in the evidence %q, which supports a stated requirement but is not yet referenced.", item.Text),
			Priority:     score(criticalityForRequirement(in, item.RequirementID), deficitWeak, relevance(in.Section)),
			ResolvedWhen: types.RuleTargetReferenced,
		}
		finish(&s)
		out = append(out, s)
	}

	lower := strings.ToLower(in.SectionText)
	for _, kw := range in.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			continue
		}
		s := types.Suggestion{
			Intent:       types.IntentIntegrateKeyword,
			TargetID:     kw,
			Target:       kw,
			QuestionText: fmt.Sprintf("Integrate the keyword %q naturally into this section.", kw),
			Priority:     score(criticalityImplicit, deficitWeak, relevance(in.Section)),
			ResolvedWhen: types.RuleKeywordPresent,
		}
		finish(&s)
		out = append(out, s)
	}

	return out
}

func fromGap(in Inputs, gap types.Gap) (types.Suggestion, bool) {
	var s types.Suggestion
	switch gap.EvidenceState {
	case types.EvidenceNone:
		s = types.Suggestion{
			Intent:       types.IntentAddressRequirement,
			QuestionText: fmt.Sprintf("Add content addressing %q, which currently has no supporting evidence.", gap.Requirement.Text),
			ResolvedWhen: types.RuleTargetReferenced,
		}
	case types.EvidenceNoMetric:
		s = types.Suggestion{
			Intent:       types.IntentQuantifyBullet,
			QuestionText: fmt.Sprintf("Quantify the impact shown for %q with a concrete metric.", gap.Requirement.Text),
			ResolvedWhen: types.RuleAlwaysRecheck,
		}
	case types.EvidenceWeak:
		s = types.Suggestion{
			Intent:       types.IntentAddressRequirement,
			QuestionText: fmt.Sprintf("Strengthen the coverage of %q; the current evidence is weak.", gap.Requirement.Text),
			ResolvedWhen: types.RuleAlwaysRecheck,
		}
	default:
		return types.Suggestion{}, false
	}
	s.TargetID = gap.RequirementID
	s.Target = gap.Requirement.Text
	s.Priority = score(criticality(gap.Requirement.Criticality), deficit(gap.EvidenceState), relevance(in.Section))
	finish(&s)
	return s, true
}

func finish(s *types.Suggestion) {
	s.ID = SuggestionID(s.Intent, s.TargetID)
	s.PriorityTier = tierFor(s.Priority)
}

// SuggestionID derives a stable identifier from intent and target, so the
// same deficiency yields the same ID across rebuilds.
func SuggestionID(intent types.SuggestionIntent, targetID string) string {
	sum := sha256.Sum256([]byte(string(intent) + "|" + targetID))
	return "sug_" + hex.EncodeToString(sum[:])[:12]
}

const (
	criticalityMustHave = 3
	criticalityNiceTo   = 2
	criticalityImplicit = 1

	deficitNoEvidence = 3
	deficitNoMetric   = 2
	deficitWeak       = 1
)

func criticality(c types.Criticality) int {
	switch c {
	case types.CriticalityMustHave:
		return criticalityMustHave
	case types.CriticalityNiceToHave:
		return criticalityNiceTo
	default:
		return criticalityImplicit
	}
}

func criticalityForRequirement(in Inputs, reqID string) int {
	for _, gap := range in.Gaps {
		if gap.RequirementID == reqID {
			return criticality(gap.Requirement.Criticality)
		}
	}
	return criticalityImplicit
}

func deficit(state types.EvidenceState) int {
	switch state {
	case types.EvidenceNone:
		return deficitNoEvidence
	case types.EvidenceNoMetric:
		return deficitNoMetric
	default:
		return deficitWeak
	}
}

func relevance(section string) int {
	switch strings.ToLower(section) {
	case "experience", "projects":
		return 3
	case "summary", "headline":
		return 2
	default:
		return 1
	}
}

func score(criticality, deficit, relevance int) float64 {
	return float64(criticality * deficit * relevance)
}

func tierFor(priority float64) types.PriorityTier {
	switch {
	case priority >= 6:
		return types.TierHigh
	case priority >= 3:
		return types.TierMedium
	default:
		return types.TierLow
	}
}
