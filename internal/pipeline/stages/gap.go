package stages

import (
	"context"

	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

// GapAnalysisStage classifies how well each requirement is covered by the
// gathered evidence and records the unresolved gaps.
type GapAnalysisStage struct{}

func (s *GapAnalysisStage) Key() types.NodeKey { return types.NodeGapAnalysis }

func (s *GapAnalysisStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	bench, err := loadBenchmark(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	evidence, err := loadEvidence(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}

	gaps := AnalyzeGaps(bench, evidence)
	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactGaps, gaps); err != nil {
		return nil, err
	}
	return pipeline.Done(), nil
}

// AnalyzeGaps derives the gap list: a requirement with no evidence, no
// quantified evidence, or only weak evidence is a gap. Fully covered
// requirements produce none. The result is empty, never nil, so the
// artifact round-trips cleanly.
func AnalyzeGaps(bench *types.Benchmark, evidence []types.EvidenceItem) []types.Gap {
	byReq := make(map[string][]types.EvidenceItem)
	for _, item := range evidence {
		byReq[item.RequirementID] = append(byReq[item.RequirementID], item)
	}

	gaps := []types.Gap{}
	for _, req := range bench.Requirements {
		items := byReq[req.ID]
		state, gap := classify(items)
		if !gap {
			continue
		}
		gaps = append(gaps, types.Gap{
			RequirementID: req.ID,
			Requirement:   req,
			EvidenceState: state,
		})
	}
	return gaps
}

func classify(items []types.EvidenceItem) (types.EvidenceState, bool) {
	if len(items) == 0 {
		return types.EvidenceNone, true
	}
	anyMetric := false
	anyStrong := false
	for _, item := range items {
		if item.HasMetric {
			anyMetric = true
		}
		if item.Strength == "strong" {
			anyStrong = true
		}
	}
	if !anyMetric {
		return types.EvidenceNoMetric, true
	}
	if !anyStrong {
		return types.EvidenceWeak, true
	}
	return "", false
}
