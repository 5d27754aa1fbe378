// Package bundles groups resume sections into review bundles and derives
// bundle progress from section state. Bundle state is always recomputed,
// never stored, so a cold resume reproduces it exactly.
package bundles

import (
	"strings"

	"github.com/jonathan/resume-author/internal/types"
)

// Strategy controls how section reviews are presented.
type Strategy string

const (
	// StrategyGuided opens one gate per review-required section.
	StrategyGuided Strategy = "guided"
	// StrategyBundled opens one gate per bundle and accepts approve_bundle.
	StrategyBundled Strategy = "bundled"
)

// Order is the fixed review order of bundles.
var Order = []types.BundleKey{
	types.BundleHeadline,
	types.BundleCoreExperience,
	types.BundleSupporting,
}

var labels = map[types.BundleKey]string{
	types.BundleHeadline:       "Headline",
	types.BundleCoreExperience: "Core Experience",
	types.BundleSupporting:     "Supporting",
}

// Policy configures bundling for a run.
type Policy struct {
	Strategy Strategy
	// AutoApprove marks bundles whose non-required sections are approved
	// without review. Supporting is commonly auto-approved.
	AutoApprove map[types.BundleKey]bool
}

// DefaultPolicy reviews every bundle in guided mode.
func DefaultPolicy() Policy {
	return Policy{Strategy: StrategyGuided, AutoApprove: map[types.BundleKey]bool{}}
}

// BundleFor maps a section name to its bundle.
func BundleFor(section string) types.BundleKey {
	switch strings.ToLower(section) {
	case "headline", "summary", "title":
		return types.BundleHeadline
	case "experience", "projects":
		return types.BundleCoreExperience
	default:
		return types.BundleSupporting
	}
}

// Compute derives all bundle states from the sections, in review order.
// Bundles with no sections are omitted.
func Compute(sections []types.Section, policy Policy) []types.ReviewBundle {
	byKey := make(map[types.BundleKey][]types.Section)
	for _, s := range sections {
		key := BundleFor(s.Name)
		byKey[key] = append(byKey[key], s)
	}

	var out []types.ReviewBundle
	for _, key := range Order {
		members, ok := byKey[key]
		if !ok {
			continue
		}
		out = append(out, compute(key, members, policy))
	}
	return out
}

func compute(key types.BundleKey, members []types.Section, policy Policy) types.ReviewBundle {
	b := types.ReviewBundle{
		Key:           key,
		Label:         labels[key],
		TotalSections: len(members),
	}
	reviewedAny := false
	for _, s := range members {
		if s.ReviewRequired {
			b.ReviewRequired++
			if s.Reviewed {
				b.ReviewedRequired++
			}
		}
		if s.Reviewed {
			reviewedAny = true
		}
	}

	switch {
	case b.ReviewRequired == 0 && policy.AutoApprove[key]:
		b.Status = types.BundleAutoApproved
	case b.ReviewedRequired >= b.ReviewRequired:
		b.Status = types.BundleComplete
	case reviewedAny || b.ReviewedRequired > 0:
		b.Status = types.BundleInProgress
	default:
		b.Status = types.BundlePending
	}
	return b
}

// Current returns the first bundle that still needs review, or nil when all
// bundles are complete.
func Current(sections []types.Section, policy Policy) *types.ReviewBundle {
	for _, b := range Compute(sections, policy) {
		if b.Status == types.BundleComplete || b.Status == types.BundleAutoApproved {
			continue
		}
		bundle := b
		return &bundle
	}
	return nil
}

// RemainingRequired lists, in section order, the review-required sections of
// a bundle that have not been reviewed yet.
func RemainingRequired(sections []types.Section, key types.BundleKey) []string {
	var out []string
	for _, s := range sections {
		if BundleFor(s.Name) != key {
			continue
		}
		if s.ReviewRequired && !s.Reviewed {
			out = append(out, s.Name)
		}
	}
	return out
}

// ApproveRemaining marks every still-unreviewed review-required section of a
// bundle as reviewed and approved, in section order, and returns the names it
// approved. Sections that do not require review are left alone; they pick up
// their approval when drafting finalizes. This backs the approve_bundle gate
// action.
func ApproveRemaining(sections []types.Section, key types.BundleKey) []string {
	var approved []string
	for i := range sections {
		if BundleFor(sections[i].Name) != key {
			continue
		}
		if !sections[i].ReviewRequired || sections[i].Reviewed {
			continue
		}
		sections[i].Reviewed = true
		sections[i].Approved = true
		approved = append(approved, sections[i].Name)
	}
	return approved
}
