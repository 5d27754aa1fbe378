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

func blueprintFixture(t *testing.T) (*pipeline.StageInput, db.Store) {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemStore()
	run := &types.Run{ID: uuid.New(), Status: types.StatusRunning}
	require.NoError(t, store.CreateRun(ctx, run))
	node := &types.StageNode{RunID: run.ID, Key: types.NodeBlueprint, Status: types.NodeInProgress, ActiveVersion: 1}
	require.NoError(t, store.PutNode(ctx, node))
	bench := &types.Benchmark{
		RoleTitle: "Data Engineer",
		Requirements: []types.Requirement{
			{ID: "req_1", Text: "Spark pipelines", Criticality: types.CriticalityMustHave},
		},
	}
	require.NoError(t, store.SaveArtifact(ctx, run.ID, ArtifactBenchmark, bench))
	return &pipeline.StageInput{Run: run, Node: node, Store: store, Emit: func(string, any) {}}, store
}

func TestBlueprintProposesAndGates(t *testing.T) {
	in, store := blueprintFixture(t)
	stage := &BlueprintStage{}

	outcome, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, outcome.Gate)
	require.Equal(t, types.GateBlueprintReview, outcome.Gate.Payload.Kind)

	plan := outcome.Gate.Payload.BlueprintReview.Sections
	require.NotEmpty(t, plan)
	assert.Equal(t, "headline", plan[0].Name)
	assert.Contains(t, plan[2].Purpose, "Spark pipelines")
	for i, sec := range plan {
		assert.Equal(t, i+1, sec.Order)
	}

	// The proposal is persisted before the gate opens.
	var stored []types.SectionPlan
	require.NoError(t, loadJSON(context.Background(), store, in.Run.ID, ArtifactBlueprint, &stored))
	assert.Equal(t, plan, stored)
}

func TestBlueprintReviseDropsAndRewrites(t *testing.T) {
	in, store := blueprintFixture(t)
	stage := &BlueprintStage{}
	_, err := stage.Run(context.Background(), in)
	require.NoError(t, err)

	in.Gate = &types.Gate{NodeKey: types.NodeBlueprint}
	in.Response = &types.GateResponse{Action: "revise", Edits: map[string]string{
		"projects": "drop",
		"summary":  "Lead with the data platform story",
	}}
	outcome, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, outcome.Gate)

	var plan []types.SectionPlan
	require.NoError(t, loadJSON(context.Background(), store, in.Run.ID, ArtifactBlueprint, &plan))
	names := make([]string, 0, len(plan))
	for i, sec := range plan {
		names = append(names, sec.Name)
		assert.Equal(t, i+1, sec.Order, "orders must be renumbered after a drop")
		if sec.Name == "summary" {
			assert.Equal(t, "Lead with the data platform story", sec.Purpose)
		}
	}
	assert.NotContains(t, names, "projects")
}

func TestBlueprintApprovePassesThrough(t *testing.T) {
	in, _ := blueprintFixture(t)
	stage := &BlueprintStage{}
	_, err := stage.Run(context.Background(), in)
	require.NoError(t, err)

	in.Gate = &types.Gate{NodeKey: types.NodeBlueprint}
	in.Response = &types.GateResponse{Action: "approve"}
	outcome, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, outcome.Gate)
}
