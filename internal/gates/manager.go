// Package gates owns the single-open-gate invariant for a run: at most one
// gate is open at any instant, and each gate resolves exactly once. The
// atomic check-and-set lives in the store; this package layers payload
// validation, version checks, run bookkeeping, and event emission on top.
package gates

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/schemas"
	"github.com/jonathan/resume-author/internal/types"
)

// Manager coordinates gate lifecycle for all runs.
type Manager struct {
	store db.Store
	bus   *events.Bus
}

// NewManager creates a gate manager over the given store and event bus.
func NewManager(store db.Store, bus *events.Bus) *Manager {
	return &Manager{store: store, bus: bus}
}

// Open opens a gate for the node at its current version. The payload is
// validated at this boundary; the store's compare-and-swap rejects the open
// with db.ErrGateConflict if another gate is already pending. On success the
// run's pending_gate is set and a gate_opened event is emitted.
func (m *Manager) Open(ctx context.Context, node *types.StageNode, gateContext string, payload types.GatePayload) (*types.Gate, error) {
	if err := schemas.ValidateGatePayload(&payload); err != nil {
		return nil, fmt.Errorf("gate payload rejected: %w", err)
	}

	gate := &types.Gate{
		ID:          types.GateID(node.Key, gateContext),
		RunID:       node.RunID,
		NodeKey:     node.Key,
		Context:     gateContext,
		NodeVersion: node.ActiveVersion,
		Payload:     payload,
	}
	if err := m.store.OpenGate(ctx, gate); err != nil {
		return nil, err
	}

	log.Printf("[gate] opened %s (run %s, node %s v%d)", gate.ID, gate.RunID, gate.NodeKey, gate.NodeVersion)
	m.bus.ForRun(gate.RunID).Emit(events.EventGateOpened, map[string]any{
		"gate_id": gate.ID,
		"payload": gate.Payload,
	})
	return gate, nil
}

// Resolve resolves an open gate exactly once. Conflicts are reported as
// distinct errors, never swallowed: a resolve against a non-open gate, a
// gate superseded by a node rebuild, or a run awaiting a restart
// confirmation all fail so the client can resync instead of silently losing
// its response.
func (m *Manager) Resolve(ctx context.Context, runID uuid.UUID, gateID string, response json.RawMessage) (*types.Gate, error) {
	if err := schemas.ValidateGateResponse(response); err != nil {
		return nil, err
	}

	gate, err := m.store.GetGate(ctx, runID, gateID)
	if err != nil {
		return nil, err
	}

	// A pending restart confirmation freezes all gate resolution; resolving
	// now could silently discard the review decisions the restart is about.
	replan, err := m.store.GetActiveReplan(ctx, runID)
	if err != nil {
		return nil, err
	}
	if replan != nil && replan.RequiresRestart && replan.State == types.ReplanPending {
		return nil, db.ErrReplanPending
	}

	// The node may have been rebuilt past this gate since it opened.
	node, err := m.store.GetNode(ctx, runID, gate.NodeKey)
	if err != nil {
		return nil, err
	}
	if node.ActiveVersion != gate.NodeVersion {
		return nil, db.ErrGateConflict
	}

	resolved, err := m.store.ResolveGate(ctx, runID, gateID, response)
	if err != nil {
		return nil, err
	}

	log.Printf("[gate] resolved %s (run %s)", gateID, runID)
	m.bus.ForRun(runID).Emit(events.EventGateResolved, map[string]any{
		"gate_id": gateID,
	})
	return resolved, nil
}

// Expire force-expires a gate: administrative cleanup of abandoned runs,
// aborts, and replan restarts.
func (m *Manager) Expire(ctx context.Context, runID uuid.UUID, gateID string) error {
	if err := m.store.ExpireGate(ctx, runID, gateID); err != nil {
		return err
	}
	log.Printf("[gate] expired %s (run %s)", gateID, runID)
	return nil
}
