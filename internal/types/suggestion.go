package types

// SuggestionIntent names what an edit suggestion is trying to accomplish.
type SuggestionIntent string

const (
	IntentAddressRequirement SuggestionIntent = "address_requirement"
	IntentWeaveEvidence      SuggestionIntent = "weave_evidence"
	IntentIntegrateKeyword   SuggestionIntent = "integrate_keyword"
	IntentQuantifyBullet     SuggestionIntent = "quantify_bullet"
)

// PriorityTier buckets a numeric priority for display.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// ResolveRule is the declarative condition under which a suggestion
// auto-clears when the section text changes, without re-invoking the engine.
type ResolveRule string

const (
	RuleKeywordPresent   ResolveRule = "keyword_present"
	RuleTargetReferenced ResolveRule = "target_referenced"
	RuleAlwaysRecheck    ResolveRule = "always_recheck"
)

// Suggestion is one ranked edit suggestion for a section under review.
// The ID is a stable hash of the intent plus the semantic target, so
// recomputing suggestions for the same underlying gap yields the same ID.
// Suggestions are ephemeral: recomputed for every section-review gate and
// never persisted past that gate's lifetime.
type Suggestion struct {
	ID           string           `json:"id"`
	Intent       SuggestionIntent `json:"intent"`
	TargetID     string           `json:"target_id"`
	Target       string           `json:"target"`
	QuestionText string           `json:"question_text"`
	Options      []string         `json:"options,omitempty"`
	Priority     float64          `json:"priority"`
	PriorityTier PriorityTier     `json:"priority_tier"`
	ResolvedWhen ResolveRule      `json:"resolved_when"`
}
