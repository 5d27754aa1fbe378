package stages

import (
	"context"
	"sort"
	"strings"

	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

// BlueprintStage proposes the section outline and holds it at a review gate
// before any drafting happens.
type BlueprintStage struct {
	deps Deps
}

func (s *BlueprintStage) Key() types.NodeKey { return types.NodeBlueprint }

func (s *BlueprintStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	if in.Response != nil {
		return s.applyReview(ctx, in)
	}

	bench, err := loadBenchmark(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	plan := ProposePlan(bench)
	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactBlueprint, plan); err != nil {
		return nil, err
	}
	return pipeline.Suspend("", types.GatePayload{
		Kind:            types.GateBlueprintReview,
		BlueprintReview: &types.BlueprintReviewPayload{Sections: plan},
	}), nil
}

func (s *BlueprintStage) applyReview(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	if in.Response.Action != "revise" || len(in.Response.Edits) == 0 {
		return pipeline.Done(), nil
	}

	var plan []types.SectionPlan
	if err := loadJSON(ctx, in.Store, in.Run.ID, ArtifactBlueprint, &plan); err != nil {
		return nil, err
	}

	// Edits map section name to a new purpose, or "drop" to remove it.
	revised := plan[:0]
	for _, sec := range plan {
		edit, ok := in.Response.Edits[sec.Name]
		if ok {
			if strings.EqualFold(strings.TrimSpace(edit), "drop") {
				continue
			}
			sec.Purpose = edit
		}
		revised = append(revised, sec)
	}
	for i := range revised {
		revised[i].Order = i + 1
	}
	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactBlueprint, revised); err != nil {
		return nil, err
	}
	return pipeline.Done(), nil
}

// ProposePlan derives the section outline from the benchmark. The shape is
// fixed; the purposes name what each section must prove for this role.
func ProposePlan(bench *types.Benchmark) []types.SectionPlan {
	role := bench.RoleTitle
	if role == "" {
		role = "the role"
	}
	mustHaves := []string{}
	for _, req := range bench.Requirements {
		if req.Criticality == types.CriticalityMustHave {
			mustHaves = append(mustHaves, req.Text)
		}
	}
	coreFocus := "the strongest evidence for " + role
	if len(mustHaves) > 0 {
		sort.Strings(mustHaves)
		coreFocus = "direct evidence for: " + strings.Join(mustHaves, "; ")
	}

	plan := []types.SectionPlan{
		{Name: "headline", Purpose: "Position the candidate for " + role + " in one line"},
		{Name: "summary", Purpose: "Frame the career narrative around " + role},
		{Name: "experience", Purpose: "Show " + coreFocus},
		{Name: "projects", Purpose: "Back up must-haves the work history cannot"},
		{Name: "skills", Purpose: "Surface the posting's keywords at a glance"},
		{Name: "education", Purpose: "Credentials, kept brief"},
	}
	for i := range plan {
		plan[i].Order = i + 1
	}
	return plan
}
