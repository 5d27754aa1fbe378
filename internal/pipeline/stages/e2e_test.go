package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/gates"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

const (
	e2ePosting = `Senior Platform Engineer
- 5+ years of Go required
- Experience with Kubernetes required
- Experience with Kafka required`

	e2eResume = `Wrote Go services handling 2M requests per day.
Operated Kubernetes clusters for internal teams.`
)

func newHarness(t *testing.T) (*pipeline.Controller, db.Store, *events.Bus) {
	t.Helper()
	store := db.NewMemStore()
	bus := events.NewBus()
	ctrl := pipeline.NewController(store, bus, gates.NewManager(store, bus), Registry(Deps{}))
	return ctrl, store, bus
}

func startRun(t *testing.T, ctrl *pipeline.Controller, store db.Store) *types.Run {
	t.Helper()
	ctx := context.Background()
	run, err := ctrl.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveArtifact(ctx, run.ID, ArtifactIntake, IntakeInput{
		ResumeText:  e2eResume,
		PostingText: e2ePosting,
	}))
	require.NoError(t, ctrl.Kick(ctx, run.ID))
	return run
}

func pendingGateID(t *testing.T, store db.Store, runID uuid.UUID) string {
	t.Helper()
	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.NotNil(t, run.PendingGate, "expected the run to be blocked at a gate")
	return *run.PendingGate
}

func resolve(t *testing.T, ctrl *pipeline.Controller, runID uuid.UUID, gateID string, response any) {
	t.Helper()
	raw, err := json.Marshal(response)
	require.NoError(t, err)
	_, err = ctrl.SubmitGate(context.Background(), runID, gateID, raw)
	require.NoError(t, err)
}

func TestFullRunToExport(t *testing.T) {
	ctx := context.Background()
	ctrl, store, bus := newHarness(t)
	run := startRun(t, ctrl, store)

	// Go and Kubernetes are covered (2/3 over the 0.6 threshold), so the
	// first stop is the interview about the uncovered and unquantified gaps.
	gateID := pendingGateID(t, store, run.ID)
	assert.Equal(t, "gate_interview", gateID)

	snap, err := ctrl.Snapshot(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.PendingGate)
	questions := snap.PendingGate.Payload.Interview.Questions
	require.Len(t, questions, 2)

	answers := map[string]string{}
	for _, q := range questions {
		answers[q.ID] = fmt.Sprintf("Did this at scale: 40%% improvement on %s.", q.GapID)
	}
	resolve(t, ctrl, run.ID, gateID, types.GateResponse{Action: "answer", Answers: answers})

	gateID = pendingGateID(t, store, run.ID)
	assert.Equal(t, "gate_blueprint", gateID)
	resolve(t, ctrl, run.ID, gateID, types.GateResponse{Action: "approve"})

	// Guided review walks every planned section in bundle order.
	expected := []string{
		"gate_sections_headline",
		"gate_sections_summary",
		"gate_sections_experience",
		"gate_sections_projects",
		"gate_sections_skills",
		"gate_sections_education",
	}
	for _, want := range expected {
		gateID = pendingGateID(t, store, run.ID)
		assert.Equal(t, want, gateID)
		resolve(t, ctrl, run.ID, gateID, types.GateResponse{Action: "approve"})
	}

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, got.Status)
	assert.NotNil(t, got.CompletedAt)

	final, err := store.GetTextArtifact(ctx, run.ID, ArtifactResumeFinal)
	require.NoError(t, err)
	assert.Contains(t, final, "# Senior Platform Engineer")

	var names []string
	for _, ev := range bus.ForRun(run.ID).Log() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, events.EventPipelineComplete)
	assert.Contains(t, names, events.EventReadinessUpdate)
}

func TestColdResumeContinuesFromPersistedState(t *testing.T) {
	ctx := context.Background()
	ctrl, store, _ := newHarness(t)
	run := startRun(t, ctrl, store)
	gateID := pendingGateID(t, store, run.ID)

	// New controller over the same store, as after a process restart. The
	// open gate and all node state come back from persistence alone.
	bus2 := events.NewBus()
	ctrl2 := pipeline.NewController(store, bus2, gates.NewManager(store, bus2), Registry(Deps{}))
	require.NoError(t, ctrl2.Kick(ctx, run.ID))

	snap, err := ctrl2.Snapshot(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.PendingGate)
	assert.Equal(t, gateID, snap.PendingGate.ID)
	assert.Equal(t, types.StatusBlocked, snap.Run.Status)

	// Resolution through the new controller proceeds normally.
	resolve(t, ctrl2, run.ID, gateID, types.GateResponse{Action: "approve"})
	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "gate_blueprint", *got.PendingGate)
}

func TestForceAdvancePastGate(t *testing.T) {
	ctx := context.Background()
	ctrl, store, _ := newHarness(t)
	run := startRun(t, ctrl, store)
	gateID := pendingGateID(t, store, run.ID)
	assert.Equal(t, "gate_interview", gateID)

	require.NoError(t, ctrl.ForceAdvance(ctx, run.ID))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.ForceAdvanced)
	assert.Equal(t, "gate_blueprint", *got.PendingGate, "run must continue to the next gate")

	node, err := store.GetNode(ctx, run.ID, types.NodeInterview)
	require.NoError(t, err)
	assert.Equal(t, types.NodeAutoApproved, node.Status)

	gate, err := store.GetGate(ctx, run.ID, gateID)
	require.NoError(t, err)
	assert.Equal(t, types.GateExpired, gate.Status)
}

func TestForceAdvanceReadinessGoesStraightToDrafting(t *testing.T) {
	ctx := context.Background()
	ctrl, store, _ := newHarness(t)
	run, err := ctrl.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveArtifact(ctx, run.ID, ArtifactIntake, IntakeInput{
		ResumeText:  "Managed a bakery and its seasonal staff.",
		PostingText: e2ePosting,
	}))
	require.NoError(t, ctrl.Kick(ctx, run.ID))

	// Nothing in the resume matches, so research stops at the readiness gate.
	gateID := pendingGateID(t, store, run.ID)
	assert.Equal(t, "gate_research", gateID)

	// Bypassing readiness means drafting with the evidence at hand: the
	// interview is skipped, not deferred to another gate.
	require.NoError(t, ctrl.ForceAdvance(ctx, run.ID))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "gate_blueprint", *got.PendingGate)

	node, err := store.GetNode(ctx, run.ID, types.NodeInterview)
	require.NoError(t, err)
	assert.Equal(t, types.NodeComplete, node.Status)
}

func TestAbortExpiresGateAndStopsRun(t *testing.T) {
	ctx := context.Background()
	ctrl, store, _ := newHarness(t)
	run := startRun(t, ctrl, store)
	gateID := pendingGateID(t, store, run.ID)

	require.NoError(t, ctrl.Abort(ctx, run.ID))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, got.Status)
	assert.Equal(t, "aborted by client", got.ErrorMessage)

	gate, err := store.GetGate(ctx, run.ID, gateID)
	require.NoError(t, err)
	assert.Equal(t, types.GateExpired, gate.Status)

	// A terminal run does not restart.
	require.NoError(t, ctrl.Kick(ctx, run.ID))
	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, got.Status)
}

func TestResolveStaleGateAfterReplanConflicts(t *testing.T) {
	ctx := context.Background()
	ctrl, store, _ := newHarness(t)
	run := startRun(t, ctrl, store)
	gateID := pendingGateID(t, store, run.ID)

	// Simulate a replan bumping the interview node under the open gate.
	node, err := store.GetNode(ctx, run.ID, types.NodeInterview)
	require.NoError(t, err)
	node.ActiveVersion++
	require.NoError(t, store.PutNode(ctx, node))

	raw, _ := json.Marshal(types.GateResponse{Action: "approve"})
	_, err = ctrl.SubmitGate(ctx, run.ID, gateID, raw)
	assert.ErrorIs(t, err, db.ErrGateConflict)
}
