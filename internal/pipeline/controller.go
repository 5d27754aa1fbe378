package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/gates"
	"github.com/jonathan/resume-author/internal/graph"
	"github.com/jonathan/resume-author/internal/types"
)

// Controller drives runs through the stage graph. It is the exclusive owner
// of run and node mutation: every state change funnels through here under a
// per-run lock, so concurrent HTTP calls against the same run serialize.
type Controller struct {
	store  db.Store
	bus    *events.Bus
	gates  *gates.Manager
	stages map[types.NodeKey]Stage
	locks  sync.Map // uuid.UUID -> *sync.Mutex
}

// NewController wires a controller over its collaborators. The stage map is
// provided by the caller so this package stays free of stage imports.
func NewController(store db.Store, bus *events.Bus, gateMgr *gates.Manager, stages map[types.NodeKey]Stage) *Controller {
	return &Controller{store: store, bus: bus, gates: gateMgr, stages: stages}
}

func (c *Controller) lockFor(runID uuid.UUID) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(runID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateRun creates an idle run with all stage nodes seeded. Only intake is
// immediately eligible; everything downstream is locked behind dependencies.
func (c *Controller) CreateRun(ctx context.Context) (*types.Run, error) {
	now := time.Now()
	run := &types.Run{
		ID:        uuid.New(),
		Status:    types.StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	for _, key := range graph.Order {
		status := types.NodeLocked
		if key == types.NodeIntake {
			status = types.NodePending
		}
		node := &types.StageNode{
			RunID:         run.ID,
			Key:           key,
			Status:        status,
			ActiveVersion: 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := c.store.PutNode(ctx, node); err != nil {
			return nil, fmt.Errorf("failed to seed node %s: %w", key, err)
		}
	}
	log.Printf("[pipeline] run %s created", run.ID)
	return run, nil
}

// Kick advances the run as far as it can go without external input: invoke
// each ready stage in order until one suspends at a gate, one fails, or the
// graph is exhausted. Kick is also the cold-resume entry point; a controller
// started against persisted state picks up exactly where the last process
// stopped.
func (c *Controller) Kick(ctx context.Context, runID uuid.UUID) error {
	mu := c.lockFor(runID)
	mu.Lock()
	defer mu.Unlock()
	return c.advance(ctx, runID)
}

func (c *Controller) advance(ctx context.Context, runID uuid.UUID) error {
	for {
		run, err := c.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Terminal() || run.Blocked() {
			return nil
		}

		nodes, err := c.store.ListNodes(ctx, runID)
		if err != nil {
			return err
		}
		// A node persisted as in_progress means a previous process died
		// mid-stage. Stage invocations are synchronous under the run lock,
		// so here it is safe to requeue it.
		for i := range nodes {
			if nodes[i].Status == types.NodeInProgress {
				nodes[i].Status = types.NodePending
				nodes[i].UpdatedAt = time.Now()
				if err := c.store.PutNode(ctx, &nodes[i]); err != nil {
					return err
				}
			}
		}
		next := graph.NextReady(nodes)
		if next == nil {
			if graph.AllDone(nodes) {
				return c.finish(ctx, run)
			}
			return nil
		}

		if err := c.invoke(ctx, run, next, nil, nil); err != nil {
			return err
		}
	}
}

// invoke runs one stage invocation and applies its outcome.
func (c *Controller) invoke(ctx context.Context, run *types.Run, node *types.StageNode, gate *types.Gate, response *types.GateResponse) error {
	stage, ok := c.stages[node.Key]
	if !ok {
		return fmt.Errorf("no stage registered for node %q", node.Key)
	}
	emitter := c.bus.ForRun(run.ID)

	fresh := gate == nil
	node.Status = types.NodeInProgress
	node.UpdatedAt = time.Now()
	if err := c.store.PutNode(ctx, node); err != nil {
		return err
	}
	run.Status = types.StatusRunning
	run.CurrentStage = node.Key
	run.ActiveNode = string(node.Key)
	run.UpdatedAt = time.Now()
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	if fresh {
		emitter.Emit(events.EventStageStart, map[string]any{
			"node": node.Key, "version": node.ActiveVersion,
		})
	}

	nodes, err := c.store.ListNodes(ctx, run.ID)
	if err != nil {
		return err
	}

	outcome, err := stage.Run(ctx, &StageInput{
		Run:      run,
		Node:     node,
		Nodes:    nodes,
		Gate:     gate,
		Response: response,
		Store:    c.store,
		Emit:     func(name string, payload any) { emitter.Emit(name, payload) },
	})
	if err != nil {
		return c.fail(ctx, run, node, err)
	}

	if outcome.Gate != nil {
		return c.suspend(ctx, run, node, outcome.Gate)
	}
	return c.complete(ctx, run, node, outcome.AutoApproved)
}

func (c *Controller) suspend(ctx context.Context, run *types.Run, node *types.StageNode, req *GateRequest) error {
	gate, err := c.gates.Open(ctx, node, req.Context, req.Payload)
	if err != nil {
		return c.fail(ctx, run, node, fmt.Errorf("failed to open gate: %w", err))
	}
	node.Status = types.NodeBlocked
	node.UpdatedAt = time.Now()
	if err := c.store.PutNode(ctx, node); err != nil {
		return err
	}
	// OpenGate already set pending_gate; refresh and record the payload for
	// snapshot resync.
	run, err = c.store.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(gate.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode gate payload: %w", err)
	}
	run.Status = types.StatusBlocked
	run.PendingGateData = data
	run.UpdatedAt = time.Now()
	return c.store.UpdateRun(ctx, run)
}

func (c *Controller) complete(ctx context.Context, run *types.Run, node *types.StageNode, autoApproved bool) error {
	node.Status = types.NodeComplete
	if autoApproved {
		node.Status = types.NodeAutoApproved
	}
	node.UpdatedAt = time.Now()
	if err := c.store.PutNode(ctx, node); err != nil {
		return err
	}
	log.Printf("[pipeline] run %s: %s %s (v%d)", run.ID, node.Key, node.Status, node.ActiveVersion)
	c.bus.ForRun(run.ID).Emit(events.EventStageComplete, map[string]any{
		"node": node.Key, "status": node.Status, "version": node.ActiveVersion,
	})
	return c.settleReplan(ctx, run.ID)
}

// settleReplan closes out an active replan once every stale node has been
// rebuilt.
func (c *Controller) settleReplan(ctx context.Context, runID uuid.UUID) error {
	req, err := c.store.GetActiveReplan(ctx, runID)
	if err != nil || req == nil || req.State != types.ReplanStarted {
		return err
	}
	for _, key := range req.StaleNodes {
		node, err := c.store.GetNode(ctx, runID, key)
		if err != nil {
			return err
		}
		if !node.Done() {
			return nil
		}
	}
	req.State = types.ReplanCompleted
	req.UpdatedAt = time.Now()
	if err := c.store.UpdateReplan(ctx, req); err != nil {
		return err
	}
	log.Printf("[replan] run %s: cascade complete (edit v%d)", runID, req.BenchmarkEditVersion)
	c.bus.ForRun(runID).Emit(events.EventReplanCompleted, map[string]any{
		"replan_id":              req.ID,
		"benchmark_edit_version": req.BenchmarkEditVersion,
	})
	return nil
}

func (c *Controller) finish(ctx context.Context, run *types.Run) error {
	now := time.Now()
	run.Status = types.StatusComplete
	run.ActiveNode = ""
	run.CompletedAt = &now
	run.UpdatedAt = now
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	log.Printf("[pipeline] run %s complete", run.ID)
	c.bus.ForRun(run.ID).Emit(events.EventPipelineComplete, map[string]any{
		"run_id": run.ID,
	})
	return nil
}

func (c *Controller) fail(ctx context.Context, run *types.Run, node *types.StageNode, cause error) error {
	node.Status = types.NodePending
	node.UpdatedAt = time.Now()
	if putErr := c.store.PutNode(ctx, node); putErr != nil {
		return putErr
	}
	run.Status = types.StatusError
	run.ErrorMessage = cause.Error()
	run.UpdatedAt = time.Now()
	if updErr := c.store.UpdateRun(ctx, run); updErr != nil {
		return updErr
	}
	log.Printf("[pipeline] run %s: stage %s failed: %v", run.ID, node.Key, cause)
	c.bus.ForRun(run.ID).Emit(events.EventPipelineError, map[string]any{
		"node":  node.Key,
		"error": cause.Error(),
	})
	return cause
}

// SubmitGate resolves the run's open gate with the client's response and
// resumes the suspended stage. The stage may finish, open a follow-up gate,
// or fail; in every case the run keeps advancing as far as it can.
func (c *Controller) SubmitGate(ctx context.Context, runID uuid.UUID, gateID string, raw json.RawMessage) (*types.Gate, error) {
	mu := c.lockFor(runID)
	mu.Lock()
	defer mu.Unlock()

	resolved, err := c.gates.Resolve(ctx, runID, gateID, raw)
	if err != nil {
		return nil, err
	}

	var response types.GateResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("failed to decode gate response: %w", err)
	}

	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.PendingGateData = nil
	node, err := c.store.GetNode(ctx, runID, resolved.NodeKey)
	if err != nil {
		return nil, err
	}

	if err := c.invoke(ctx, run, node, resolved, &response); err != nil {
		return resolved, err
	}
	return resolved, c.advance(ctx, runID)
}

// ForceAdvance skips the run's open gate: the gate is expired, the blocked
// node is auto-approved, and the run continues. The run is permanently
// marked force-advanced.
func (c *Controller) ForceAdvance(ctx context.Context, runID uuid.UUID) error {
	mu := c.lockFor(runID)
	mu.Lock()
	defer mu.Unlock()

	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Blocked() {
		return fmt.Errorf("run %s has no open gate to advance past", runID)
	}
	gate, err := c.store.GetGate(ctx, runID, *run.PendingGate)
	if err != nil {
		return err
	}
	if err := c.gates.Expire(ctx, runID, gate.ID); err != nil {
		return err
	}
	node, err := c.store.GetNode(ctx, runID, gate.NodeKey)
	if err != nil {
		return err
	}
	node.Status = types.NodeAutoApproved
	node.UpdatedAt = time.Now()
	if err := c.store.PutNode(ctx, node); err != nil {
		return err
	}
	run, err = c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	run.Status = types.StatusRunning
	run.ForceAdvanced = true
	run.PendingGateData = nil
	run.UpdatedAt = time.Now()
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	log.Printf("[pipeline] run %s: force-advanced past %s", runID, gate.ID)
	return c.advance(ctx, runID)
}

// Abort stops a run: any open gate is expired and the run lands in the
// error state with an explicit message.
func (c *Controller) Abort(ctx context.Context, runID uuid.UUID) error {
	mu := c.lockFor(runID)
	mu.Lock()
	defer mu.Unlock()

	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.PendingGate != nil {
		if err := c.gates.Expire(ctx, runID, *run.PendingGate); err != nil {
			return err
		}
		run, err = c.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
	}
	run.Status = types.StatusError
	run.ErrorMessage = "aborted by client"
	run.PendingGateData = nil
	run.UpdatedAt = time.Now()
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	log.Printf("[pipeline] run %s aborted", runID)
	c.bus.ForRun(runID).Emit(events.EventPipelineError, map[string]any{
		"error": "aborted by client",
	})
	return nil
}

// Snapshot is the authoritative resync document: everything a client needs
// to rebuild its view after (re)connecting, since events are never replayed.
type Snapshot struct {
	Run         *types.Run           `json:"run"`
	Nodes       []types.StageNode    `json:"nodes"`
	PendingGate *types.Gate          `json:"pending_gate,omitempty"`
	Replan      *types.ReplanRequest `json:"replan,omitempty"`
}

// Snapshot assembles the current snapshot for a run.
func (c *Controller) Snapshot(ctx context.Context, runID uuid.UUID) (*Snapshot, error) {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	nodes, err := c.store.ListNodes(ctx, runID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Run: run, Nodes: nodes}
	if run.PendingGate != nil {
		gate, err := c.store.GetGate(ctx, runID, *run.PendingGate)
		if err == nil {
			snap.PendingGate = gate
		}
	}
	replan, err := c.store.GetActiveReplan(ctx, runID)
	if err == nil && replan != nil {
		snap.Replan = replan
	}
	return snap, nil
}
