package suggest

import (
	"strings"

	"github.com/jonathan/resume-author/internal/types"
)

// Resolved reports whether a suggestion is satisfied by the current draft
// text. Suggestions with RuleAlwaysRecheck are re-evaluated every pass and
// never auto-resolve; the reviewer dismisses them by approving the section.
func Resolved(s types.Suggestion, draft string) bool {
	lower := strings.ToLower(draft)
	switch s.ResolvedWhen {
	case types.RuleKeywordPresent:
		return strings.Contains(lower, strings.ToLower(s.Target))
	case types.RuleTargetReferenced:
		return strings.Contains(lower, strings.ToLower(s.Target))
	case types.RuleAlwaysRecheck:
		return false
	default:
		return false
	}
}

// Prune drops suggestions already satisfied by the draft, preserving order.
func Prune(suggestions []types.Suggestion, draft string) []types.Suggestion {
	out := suggestions[:0:0]
	for _, s := range suggestions {
		if Resolved(s, draft) {
			continue
		}
		out = append(out, s)
	}
	return out
}
