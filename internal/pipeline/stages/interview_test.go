package stages

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

func interviewFixture(t *testing.T, gaps []types.Gap, evidence []types.EvidenceItem) (*pipeline.StageInput, db.Store) {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemStore()
	run := &types.Run{ID: uuid.New(), Status: types.StatusRunning}
	require.NoError(t, store.CreateRun(ctx, run))
	node := &types.StageNode{RunID: run.ID, Key: types.NodeInterview, Status: types.NodeInProgress, ActiveVersion: 1}
	require.NoError(t, store.PutNode(ctx, node))
	require.NoError(t, store.SaveArtifact(ctx, run.ID, ArtifactGaps, gaps))
	require.NoError(t, store.SaveArtifact(ctx, run.ID, ArtifactEvidence, evidence))
	return &pipeline.StageInput{Run: run, Node: node, Store: store, Emit: func(string, any) {}}, store
}

func TestInterviewOpensGateFromGaps(t *testing.T) {
	gaps := []types.Gap{
		{RequirementID: "req_1", Requirement: types.Requirement{Text: "Kafka"}, EvidenceState: types.EvidenceNone},
		{RequirementID: "req_2", Requirement: types.Requirement{Text: "Go"}, EvidenceState: types.EvidenceNoMetric},
	}
	in, _ := interviewFixture(t, gaps, nil)

	stage := &InterviewStage{}
	outcome, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, outcome.Gate)
	require.Equal(t, types.GateInterview, outcome.Gate.Payload.Kind)

	questions := outcome.Gate.Payload.Interview.Questions
	require.Len(t, questions, 2)
	assert.Equal(t, "q_req_1", questions[0].ID)
	assert.Equal(t, "req_1", questions[0].GapID)
	assert.Contains(t, questions[1].Text, "quantify")
}

func TestInterviewSkipsWhenNoGaps(t *testing.T) {
	in, _ := interviewFixture(t, []types.Gap{}, nil)
	stage := &InterviewStage{}
	outcome, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, outcome.Gate)
}

func TestInterviewAnswersBecomeEvidence(t *testing.T) {
	gaps := []types.Gap{
		{RequirementID: "req_1", Requirement: types.Requirement{Text: "Kafka"}, EvidenceState: types.EvidenceNone},
		{RequirementID: "req_2", Requirement: types.Requirement{Text: "Go"}, EvidenceState: types.EvidenceNone},
	}
	in, store := interviewFixture(t, gaps, nil)
	in.Gate = &types.Gate{NodeKey: types.NodeInterview}
	in.Response = &types.GateResponse{
		Action: "answer",
		Answers: map[string]string{
			"q_req_1": "Ran a 12-broker Kafka cluster handling 50k msgs/s.",
			"q_req_2": "Wrote Go services.",
		},
	}

	stage := &InterviewStage{}
	outcome, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, outcome.Gate)

	ctx := context.Background()
	evidence, err := loadEvidence(ctx, store, in.Run.ID)
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	for _, item := range evidence {
		assert.Equal(t, "interview", item.Source)
		assert.Equal(t, "strong", item.Strength)
	}

	// The quantified answer clears its gap; the unquantified one is
	// downgraded to no_metric rather than dropped.
	remaining, err := loadGaps(ctx, store, in.Run.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "req_2", remaining[0].RequirementID)
	assert.Equal(t, types.EvidenceNoMetric, remaining[0].EvidenceState)
}

func TestInterviewDeclinedKeepsGaps(t *testing.T) {
	gaps := []types.Gap{{RequirementID: "req_1", EvidenceState: types.EvidenceNone}}
	in, store := interviewFixture(t, gaps, nil)
	in.Gate = &types.Gate{NodeKey: types.NodeInterview}
	in.Response = &types.GateResponse{Action: "approve"}

	stage := &InterviewStage{}
	outcome, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, outcome.Gate)

	remaining, err := loadGaps(context.Background(), store, in.Run.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
