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

func researchFixture(t *testing.T) (*pipeline.StageInput, db.Store) {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemStore()
	run := &types.Run{ID: uuid.New(), Status: types.StatusRunning}
	require.NoError(t, store.CreateRun(ctx, run))
	node := &types.StageNode{RunID: run.ID, Key: types.NodeResearch, Status: types.NodeInProgress, ActiveVersion: 1}
	require.NoError(t, store.PutNode(ctx, node))
	return &pipeline.StageInput{
		Run:   run,
		Node:  node,
		Store: store,
		Emit:  func(string, any) {},
	}, store
}

func TestResearchMinesEvidenceAndCompletes(t *testing.T) {
	ctx := context.Background()
	in, store := researchFixture(t)

	bench := &types.Benchmark{Requirements: []types.Requirement{
		{ID: "req_1", Keywords: []string{"Kubernetes"}},
		{ID: "req_2", Keywords: []string{"PostgreSQL"}},
	}}
	require.NoError(t, store.SaveArtifact(ctx, in.Run.ID, ArtifactBenchmark, bench))
	require.NoError(t, store.SaveTextArtifact(ctx, in.Run.ID, ArtifactResume,
		"Operated Kubernetes clusters serving 2M requests. Tuned PostgreSQL for analytics."))

	stage := &ResearchStage{deps: Deps{ReadinessThreshold: 0.6}}
	outcome, err := stage.Run(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, outcome.Gate, "full coverage must not gate")

	evidence, err := loadEvidence(ctx, store, in.Run.ID)
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	// IDs renumbered stably in requirement order despite concurrent mining.
	assert.Equal(t, "ev_1", evidence[0].ID)
	assert.Equal(t, "req_1", evidence[0].RequirementID)
	assert.True(t, evidence[0].HasMetric)
	assert.Equal(t, "strong", evidence[0].Strength)
	assert.Equal(t, "req_2", evidence[1].RequirementID)
	assert.False(t, evidence[1].HasMetric)
}

func TestResearchGatesBelowThreshold(t *testing.T) {
	ctx := context.Background()
	in, store := researchFixture(t)

	bench := &types.Benchmark{Requirements: []types.Requirement{
		{ID: "req_1", Keywords: []string{"Kubernetes"}},
		{ID: "req_2", Keywords: []string{"Erlang"}},
		{ID: "req_3", Keywords: []string{"COBOL"}},
	}}
	require.NoError(t, store.SaveArtifact(ctx, in.Run.ID, ArtifactBenchmark, bench))
	require.NoError(t, store.SaveTextArtifact(ctx, in.Run.ID, ArtifactResume, "Ran Kubernetes in production."))

	stage := &ResearchStage{deps: Deps{ReadinessThreshold: 0.6}}
	outcome, err := stage.Run(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, outcome.Gate)
	require.Equal(t, types.GateReadiness, outcome.Gate.Payload.Kind)

	payload := outcome.Gate.Payload.Readiness
	require.NotNil(t, payload)
	assert.InDelta(t, 1.0/3.0, payload.Score, 0.001)
	assert.Equal(t, 0.6, payload.Threshold)
	assert.Equal(t, 3, payload.TotalQueries)
	assert.Equal(t, 3, payload.CompletedQueries)
}

func TestResearchResumesAfterGate(t *testing.T) {
	ctx := context.Background()
	in, _ := researchFixture(t)
	in.Gate = &types.Gate{NodeKey: types.NodeResearch}
	in.Response = &types.GateResponse{Action: "advance"}

	stage := &ResearchStage{deps: Deps{ReadinessThreshold: 0.6}}
	outcome, err := stage.Run(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, outcome.Gate)
}
