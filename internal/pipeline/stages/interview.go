package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

// InterviewStage turns unresolved gaps into questions for the candidate and
// folds the answers back into the evidence pool.
type InterviewStage struct{}

func (s *InterviewStage) Key() types.NodeKey { return types.NodeInterview }

func (s *InterviewStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	if in.Response != nil {
		return s.applyAnswers(ctx, in)
	}

	gaps, err := loadGaps(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	if len(gaps) == 0 {
		return pipeline.Done(), nil
	}

	// A force-advanced readiness gate means the client chose to draft with
	// the evidence at hand; asking interview questions would just re-block.
	for _, node := range in.Nodes {
		if node.Key == types.NodeResearch && node.Status == types.NodeAutoApproved {
			return pipeline.Done(), nil
		}
	}

	questions := make([]types.InterviewQuestion, 0, len(gaps))
	for _, gap := range gaps {
		questions = append(questions, types.InterviewQuestion{
			ID:    "q_" + gap.RequirementID,
			GapID: gap.RequirementID,
			Text:  questionFor(gap),
		})
	}
	return pipeline.Suspend("", types.GatePayload{
		Kind:      types.GateInterview,
		Interview: &types.InterviewPayload{Questions: questions},
	}), nil
}

func (s *InterviewStage) applyAnswers(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	if in.Response.Action != "answer" || len(in.Response.Answers) == 0 {
		// Declined interview: gaps stand and flow into suggestions.
		return pipeline.Done(), nil
	}

	evidence, err := loadEvidence(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	gaps, err := loadGaps(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}

	answered := map[string]bool{}
	for questionID, answer := range in.Response.Answers {
		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}
		reqID := strings.TrimPrefix(questionID, "q_")
		answered[reqID] = true
		evidence = append(evidence, types.EvidenceItem{
			ID:            fmt.Sprintf("ev_%d", len(evidence)+1),
			RequirementID: reqID,
			Text:          answer,
			HasMetric:     containsMetric(answer),
			Strength:      "strong",
			Source:        "interview",
		})
	}

	// Answered gaps are downgraded, not dropped: an unquantified answer
	// still surfaces as a quantify suggestion at section review.
	remaining := []types.Gap{}
	for _, gap := range gaps {
		if !answered[gap.RequirementID] {
			remaining = append(remaining, gap)
			continue
		}
		if hasQuantified(evidence, gap.RequirementID) {
			continue
		}
		gap.EvidenceState = types.EvidenceNoMetric
		remaining = append(remaining, gap)
	}

	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactEvidence, evidence); err != nil {
		return nil, err
	}
	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactGaps, remaining); err != nil {
		return nil, err
	}
	return pipeline.Done(), nil
}

func hasQuantified(evidence []types.EvidenceItem, reqID string) bool {
	for _, item := range evidence {
		if item.RequirementID == reqID && item.HasMetric {
			return true
		}
	}
	return false
}

func questionFor(gap types.Gap) string {
	switch gap.EvidenceState {
	case types.EvidenceNone:
		return fmt.Sprintf("The posting asks for %q but your resume shows no related work. Have you done anything that applies?", gap.Requirement.Text)
	case types.EvidenceNoMetric:
		return fmt.Sprintf("Your experience with %q lacks numbers. Can you quantify the impact (scale, speedup, savings)?", gap.Requirement.Text)
	default:
		return fmt.Sprintf("Can you describe your strongest example of %q?", gap.Requirement.Text)
	}
}
