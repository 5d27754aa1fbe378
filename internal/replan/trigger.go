// Package replan implements the upstream-edit invalidation cascade: an
// accepted benchmark edit marks every downstream stage stale, rebuilds them
// under new node versions, and, when review work would be discarded, pauses
// until the client confirms the restart.
package replan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/graph"
	"github.com/jonathan/resume-author/internal/types"
)

// DefaultRebuildFrom is the stage a benchmark edit invalidates from when the
// client does not name one. Intake and research stand upstream of the
// benchmark model and stay valid.
const DefaultRebuildFrom = types.NodeGapAnalysis

// ArtifactBenchmark is the artifact step name the current benchmark is
// stored under.
const ArtifactBenchmark = "benchmark"

// Trigger evaluates and executes replan requests.
type Trigger struct {
	store db.Store
	bus   *events.Bus
}

// NewTrigger creates a replan trigger.
func NewTrigger(store db.Store, bus *events.Bus) *Trigger {
	return &Trigger{store: store, bus: bus}
}

// Request records a benchmark edit and starts the invalidation cascade from
// rebuildFrom (DefaultRebuildFrom when empty). Only one replan may be active
// per run: a second edit while one is pending or started returns
// ErrReplanPending unchanged. When no restart confirmation is needed the
// cascade is applied immediately; otherwise the request stays pending and
// every gate resolve is refused until the client calls ConfirmRestart.
func (t *Trigger) Request(ctx context.Context, runID uuid.UUID, edited types.Benchmark, rebuildFrom types.NodeKey) (*types.ReplanRequest, error) {
	if rebuildFrom == "" {
		rebuildFrom = DefaultRebuildFrom
	}
	if !graph.Known(rebuildFrom) {
		return nil, fmt.Errorf("unknown rebuild stage %q", rebuildFrom)
	}

	if active, err := t.store.GetActiveReplan(ctx, runID); err != nil {
		return nil, fmt.Errorf("failed to check active replan: %w", err)
	} else if active != nil {
		return nil, db.ErrReplanPending
	}

	run, err := t.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	version, err := t.store.NextBenchmarkEditVersion(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate benchmark edit version: %w", err)
	}
	edited.EditVersion = version
	if err := t.store.SaveArtifact(ctx, runID, ArtifactBenchmark, edited); err != nil {
		return nil, fmt.Errorf("failed to save benchmark: %w", err)
	}

	stale, err := graph.Descendants(rebuildFrom)
	if err != nil {
		return nil, err
	}

	requiresRestart, err := t.requiresRestart(ctx, run, rebuildFrom, stale)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req := &types.ReplanRequest{
		ID:                   uuid.New(),
		RunID:                runID,
		Reason:               types.ReasonBenchmarkUpdated,
		BenchmarkEditVersion: version,
		RebuildFromStage:     rebuildFrom,
		RequiresRestart:      requiresRestart,
		StaleNodes:           stale,
		CurrentStage:         run.CurrentStage,
		State:                types.ReplanPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := t.store.CreateReplan(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create replan request: %w", err)
	}

	log.Printf("[replan] run %s: edit v%d, rebuild from %s, restart=%v", runID, version, rebuildFrom, requiresRestart)
	t.bus.ForRun(runID).Emit(events.EventReplanRequested, map[string]any{
		"replan_id":              req.ID,
		"reason":                 req.Reason,
		"benchmark_edit_version": version,
		"rebuild_from_stage":     rebuildFrom,
		"stale_nodes":            stale,
		"requires_restart":       requiresRestart,
	})

	if !requiresRestart {
		if err := t.Apply(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// ConfirmRestart applies a pending replan that was waiting on restart
// confirmation.
func (t *Trigger) ConfirmRestart(ctx context.Context, runID uuid.UUID) (*types.ReplanRequest, error) {
	req, err := t.store.GetActiveReplan(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active replan: %w", err)
	}
	if req == nil || req.State != types.ReplanPending {
		return nil, fmt.Errorf("no replan awaiting restart for run %s", runID)
	}
	if err := t.Apply(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Apply executes the cascade: bump every stale node's active version, reset
// it to pending, expire any open gate on a stale node, and rewind the run to
// the rebuild stage. Bumping versions is what invalidates in-flight gate
// responses; a resolve pinned to an old version fails the conflict check.
func (t *Trigger) Apply(ctx context.Context, req *types.ReplanRequest) error {
	run, err := t.store.GetRun(ctx, req.RunID)
	if err != nil {
		return err
	}

	staleSet := make(map[types.NodeKey]bool, len(req.StaleNodes))
	for _, key := range req.StaleNodes {
		staleSet[key] = true
	}

	if run.PendingGate != nil {
		gate, err := t.store.GetGate(ctx, req.RunID, *run.PendingGate)
		if err == nil && staleSet[gate.NodeKey] {
			if err := t.store.ExpireGate(ctx, req.RunID, gate.ID); err != nil {
				return fmt.Errorf("failed to expire stale gate %s: %w", gate.ID, err)
			}
		}
	}

	for _, key := range req.StaleNodes {
		node, err := t.store.GetNode(ctx, req.RunID, key)
		if err != nil {
			return err
		}
		node.ActiveVersion++
		node.Status = types.NodePending
		node.SetMeta("benchmark_edit_version", req.BenchmarkEditVersion)
		node.UpdatedAt = time.Now()
		if err := t.store.PutNode(ctx, node); err != nil {
			return err
		}
	}

	run, err = t.store.GetRun(ctx, req.RunID)
	if err != nil {
		return err
	}
	run.Status = types.StatusIdle
	run.CurrentStage = req.RebuildFromStage
	run.ErrorMessage = ""
	run.UpdatedAt = time.Now()
	if err := t.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	req.State = types.ReplanStarted
	req.UpdatedAt = time.Now()
	if err := t.store.UpdateReplan(ctx, req); err != nil {
		return fmt.Errorf("failed to update replan request: %w", err)
	}

	log.Printf("[replan] run %s: cascade started, %d stale nodes", req.RunID, len(req.StaleNodes))
	t.bus.ForRun(req.RunID).Emit(events.EventReplanStarted, map[string]any{
		"replan_id":   req.ID,
		"stale_nodes": req.StaleNodes,
	})
	return nil
}

// requiresRestart decides whether applying the cascade would discard work
// the client has not confirmed losing: the run has advanced past the rebuild
// point and there is either section review progress or an open gate on a
// stale node.
func (t *Trigger) requiresRestart(ctx context.Context, run *types.Run, rebuildFrom types.NodeKey, stale []types.NodeKey) (bool, error) {
	rebuildPos, err := graph.Position(rebuildFrom)
	if err != nil {
		return false, err
	}
	currentPos, err := graph.Position(run.CurrentStage)
	if err != nil {
		// Run has not started; nothing to discard.
		return false, nil
	}
	if currentPos <= rebuildPos {
		return false, nil
	}

	if run.PendingGate != nil {
		gate, err := t.store.GetGate(ctx, run.ID, *run.PendingGate)
		if err == nil {
			for _, key := range stale {
				if gate.NodeKey == key {
					return true, nil
				}
			}
		}
	}

	sections, err := t.store.GetNode(ctx, run.ID, types.NodeSections)
	if err != nil {
		if errors.Is(err, db.ErrNodeNotFound) {
			return false, nil
		}
		return false, err
	}
	var secs []types.Section
	if ok, err := sections.MetaValue("sections", &secs); err != nil || !ok {
		return false, nil
	}
	for _, s := range secs {
		if s.Reviewed {
			return true, nil
		}
	}
	return false, nil
}
