package db

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-author/internal/types"
)

func seedRun(t *testing.T, store *MemStore) *types.Run {
	t.Helper()
	run := &types.Run{
		ID:        uuid.New(),
		Status:    types.StatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

func openGate(t *testing.T, store *MemStore, runID uuid.UUID, gateID string) *types.Gate {
	t.Helper()
	gate := &types.Gate{
		ID:          gateID,
		RunID:       runID,
		NodeKey:     types.NodeInterview,
		NodeVersion: 1,
		Payload:     types.GatePayload{Kind: types.GateInterview, Interview: &types.InterviewPayload{}},
	}
	require.NoError(t, store.OpenGate(context.Background(), gate))
	return gate
}

func TestOpenGateHoldsTheSingleSlot(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	run := seedRun(t, store)

	openGate(t, store, run.ID, "gate_interview")

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PendingGate)
	assert.Equal(t, "gate_interview", *got.PendingGate)
	assert.NotEmpty(t, got.PendingGateData)

	// A second gate cannot open while the slot is held.
	second := &types.Gate{ID: "gate_other", RunID: run.ID, NodeKey: types.NodeBlueprint, NodeVersion: 1}
	assert.ErrorIs(t, store.OpenGate(ctx, second), ErrGateConflict)
}

func TestResolveGateIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	run := seedRun(t, store)
	openGate(t, store, run.ID, "gate_interview")

	response := json.RawMessage(`{"action":"approve"}`)
	resolved, err := store.ResolveGate(ctx, run.ID, "gate_interview", response)
	require.NoError(t, err)
	assert.Equal(t, types.GateResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.JSONEq(t, string(response), string(resolved.Response))

	// Resolving releases the run's slot.
	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PendingGate)
	assert.Nil(t, got.PendingGateData)

	// A second resolution of the same gate conflicts.
	_, err = store.ResolveGate(ctx, run.ID, "gate_interview", response)
	assert.ErrorIs(t, err, ErrGateConflict)
}

func TestResolveExpiredGateReturnsGone(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	run := seedRun(t, store)
	openGate(t, store, run.ID, "gate_interview")

	require.NoError(t, store.ExpireGate(ctx, run.ID, "gate_interview"))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PendingGate, "expiry releases the pending slot")

	_, err = store.ResolveGate(ctx, run.ID, "gate_interview", json.RawMessage(`{"action":"approve"}`))
	assert.ErrorIs(t, err, ErrGateExpired)
}

func TestConcurrentResolveExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	run := seedRun(t, store)
	openGate(t, store, run.ID, "gate_interview")

	const attempts = 32
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ResolveGate(ctx, run.ID, "gate_interview", json.RawMessage(`{"action":"approve"}`))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrGateConflict)
		}
	}
	assert.Equal(t, 1, wins, "exactly one resolver may win the race")
}

func TestResolveUnknownGate(t *testing.T) {
	store := NewMemStore()
	run := seedRun(t, store)

	_, err := store.ResolveGate(context.Background(), run.ID, "gate_missing", nil)
	assert.ErrorIs(t, err, ErrGateNotFound)
}

func TestReopenAfterExpiryGetsFreshGateState(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	run := seedRun(t, store)
	openGate(t, store, run.ID, "gate_interview")

	_, err := store.ResolveGate(ctx, run.ID, "gate_interview", json.RawMessage(`{"action":"approve"}`))
	require.NoError(t, err)

	// Replan reuses the deterministic gate id; reopening resets the record.
	reopened := openGate(t, store, run.ID, "gate_interview")
	assert.Equal(t, types.GateOpen, reopened.Status)
	assert.Nil(t, reopened.Response)
	assert.Nil(t, reopened.ResolvedAt)
}

func TestBenchmarkEditVersionsNeverRepeat(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	run := seedRun(t, store)

	first, err := store.NextBenchmarkEditVersion(ctx, run.ID)
	require.NoError(t, err)
	second, err := store.NextBenchmarkEditVersion(ctx, run.ID)
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
