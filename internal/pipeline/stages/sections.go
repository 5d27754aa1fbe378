package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/resume-author/internal/bundles"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/suggest"
	"github.com/jonathan/resume-author/internal/types"
)

// metaSections is the node meta key the per-section review state lives
// under. Keeping it on the node means bundle state is always derivable from
// persisted data, including after a cold resume.
const metaSections = "sections"

// SectionsStage drafts every planned section and walks the client through
// review, bundle by bundle. In guided mode each review-required section gets
// its own gate; in bundled mode one gate covers the bundle and accepts
// approve_bundle.
type SectionsStage struct {
	deps Deps
}

func (s *SectionsStage) Key() types.NodeKey { return types.NodeSections }

func (s *SectionsStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	sections, err := s.loadState(ctx, in)
	if err != nil {
		return nil, err
	}

	if in.Response != nil {
		if err := s.applyResponse(in, sections); err != nil {
			return nil, err
		}
	}

	in.Node.SetMeta(metaSections, sections)

	outcome, err := s.nextGate(ctx, in, sections)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return outcome, nil
	}

	// Review is done; non-required sections that never saw a gate are
	// approved as-is.
	for i := range sections {
		if !sections[i].Reviewed && !sections[i].ReviewRequired {
			sections[i].Approved = true
		}
	}
	in.Node.SetMeta(metaSections, sections)

	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactSections, sections); err != nil {
		return nil, err
	}
	return pipeline.Done(), nil
}

// loadState returns the review state, drafting all sections on first entry.
func (s *SectionsStage) loadState(ctx context.Context, in *pipeline.StageInput) ([]types.Section, error) {
	var sections []types.Section
	ok, err := in.Node.MetaValue(metaSections, &sections)
	if err != nil {
		return nil, err
	}
	if ok && len(sections) > 0 {
		return sections, nil
	}
	return s.draftAll(ctx, in)
}

func (s *SectionsStage) draftAll(ctx context.Context, in *pipeline.StageInput) ([]types.Section, error) {
	var plan []types.SectionPlan
	if err := loadJSON(ctx, in.Store, in.Run.ID, ArtifactBlueprint, &plan); err != nil {
		return nil, err
	}
	bench, err := loadBenchmark(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	evidence, err := loadEvidence(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	resume, err := in.Store.GetTextArtifact(ctx, in.Run.ID, ArtifactResume)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume artifact: %w", err)
	}

	sections := make([]types.Section, 0, len(plan))
	for _, sec := range plan {
		draft := s.draft(ctx, sec, bench, evidence, resume)
		key := bundles.BundleFor(sec.Name)
		required := true
		if key == types.BundleSupporting && s.deps.Policy.AutoApprove[key] {
			required = false
		}
		sections = append(sections, types.Section{
			Name:           sec.Name,
			Draft:          draft,
			ReviewRequired: required,
		})
	}
	return sections, nil
}

func (s *SectionsStage) applyResponse(in *pipeline.StageInput, sections []types.Section) error {
	target := in.Gate.Context
	bundleKey, bundled := s.bundleFromContext(target)

	switch in.Response.Action {
	case "approve_bundle":
		if !bundled {
			bundleKey = bundles.BundleFor(target)
		}
		bundles.ApproveRemaining(sections, bundleKey)
	case "approve":
		if bundled {
			bundles.ApproveRemaining(sections, bundleKey)
			return nil
		}
		return approveSection(sections, target, "")
	case "revise":
		if len(in.Response.Edits) == 0 {
			return fmt.Errorf("revise requires edits")
		}
		for name, draft := range in.Response.Edits {
			if err := approveSection(sections, name, draft); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported section review action %q", in.Response.Action)
	}
	return nil
}

// bundleFromContext distinguishes bundle-level gates from per-section ones.
func (s *SectionsStage) bundleFromContext(gateContext string) (types.BundleKey, bool) {
	for _, key := range bundles.Order {
		if gateContext == string(key) {
			return key, true
		}
	}
	return "", false
}

func approveSection(sections []types.Section, name, draft string) error {
	for i := range sections {
		if sections[i].Name != name {
			continue
		}
		if draft != "" {
			sections[i].Draft = draft
		}
		sections[i].Reviewed = true
		sections[i].Approved = true
		return nil
	}
	return fmt.Errorf("unknown section %q", name)
}

// nextGate opens the next review gate, or returns nil when review is done.
func (s *SectionsStage) nextGate(ctx context.Context, in *pipeline.StageInput, sections []types.Section) (*pipeline.Outcome, error) {
	current := bundles.Current(sections, s.deps.Policy)
	if current == nil {
		return nil, nil
	}
	remaining := bundles.RemainingRequired(sections, current.Key)
	if len(remaining) == 0 {
		// Nothing left to gate here. Optional sections pass through
		// approved without a review mark; the loop moves on.
		for i := range sections {
			if bundles.BundleFor(sections[i].Name) == current.Key && !sections[i].Reviewed {
				sections[i].Approved = true
			}
		}
		return s.nextGate(ctx, in, sections)
	}

	target := remaining[0]
	gateContext := target
	remainingAfter := len(remaining) - 1
	if s.deps.Policy.Strategy == bundles.StrategyBundled {
		gateContext = string(current.Key)
		remainingAfter = len(remaining)
	}

	section := findSection(sections, target)
	suggestions, err := s.suggestions(ctx, in, section)
	if err != nil {
		return nil, err
	}

	return pipeline.Suspend(gateContext, types.GatePayload{
		Kind: types.GateSectionReview,
		SectionReview: &types.SectionReviewPayload{
			Section:           section.Name,
			Draft:             section.Draft,
			Bundle:            current.Key,
			RemainingRequired: remainingAfter,
			Suggestions:       suggestions,
		},
	}), nil
}

func (s *SectionsStage) suggestions(ctx context.Context, in *pipeline.StageInput, section *types.Section) ([]types.Suggestion, error) {
	gaps, err := loadGaps(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	evidence, err := loadEvidence(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	bench, err := loadBenchmark(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}

	markUsedEvidence(evidence, in, section)

	built := s.deps.Suggest.Build(ctx, suggest.Inputs{
		Section:     section.Name,
		SectionText: section.Draft,
		Gaps:        gaps,
		Evidence:    evidence,
		Keywords:    bench.Keywords,
	})
	return suggest.Prune(built, section.Draft), nil
}

// markUsedEvidence flags evidence already present in any draft so it is not
// suggested again.
func markUsedEvidence(evidence []types.EvidenceItem, in *pipeline.StageInput, _ *types.Section) {
	var sections []types.Section
	if ok, err := in.Node.MetaValue(metaSections, &sections); err != nil || !ok {
		return
	}
	var all strings.Builder
	for _, sec := range sections {
		all.WriteString(strings.ToLower(sec.Draft))
		all.WriteString("\n")
	}
	text := all.String()
	for i := range evidence {
		if evidence[i].Text != "" && strings.Contains(text, strings.ToLower(evidence[i].Text)) {
			evidence[i].Used = true
		}
	}
}

func findSection(sections []types.Section, name string) *types.Section {
	for i := range sections {
		if sections[i].Name == name {
			return &sections[i]
		}
	}
	return &types.Section{Name: name}
}
