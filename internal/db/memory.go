package db

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-author/internal/types"
)

// MemStore is an in-memory Store. It backs unit tests and storeless demo
// runs, and mirrors the Postgres store's check-and-set gate semantics under
// a single mutex.
type MemStore struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*types.Run
	nodes    map[uuid.UUID]map[types.NodeKey]*types.StageNode
	gates    map[uuid.UUID]map[string]*types.Gate
	replans  map[uuid.UUID][]*types.ReplanRequest
	editSeq  map[uuid.UUID]int
	jsonArts map[uuid.UUID]map[string][]byte
	textArts map[uuid.UUID]map[string]string
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:     make(map[uuid.UUID]*types.Run),
		nodes:    make(map[uuid.UUID]map[types.NodeKey]*types.StageNode),
		gates:    make(map[uuid.UUID]map[string]*types.Gate),
		replans:  make(map[uuid.UUID][]*types.ReplanRequest),
		editSeq:  make(map[uuid.UUID]int),
		jsonArts: make(map[uuid.UUID]map[string][]byte),
		textArts: make(map[uuid.UUID]map[string]string),
	}
}

func cloneRun(run *types.Run) *types.Run {
	cp := *run
	if run.PendingGate != nil {
		g := *run.PendingGate
		cp.PendingGate = &g
	}
	if run.PendingGateData != nil {
		cp.PendingGateData = append(json.RawMessage(nil), run.PendingGateData...)
	}
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func cloneNode(node *types.StageNode) *types.StageNode {
	cp := *node
	if node.Meta != nil {
		// Deep copy through JSON so callers cannot alias stored meta.
		buf, _ := json.Marshal(node.Meta)
		cp.Meta = nil
		_ = json.Unmarshal(buf, &cp.Meta)
	}
	return &cp
}

func cloneGate(gate *types.Gate) *types.Gate {
	cp := *gate
	if gate.Response != nil {
		cp.Response = append(json.RawMessage(nil), gate.Response...)
	}
	if gate.ResolvedAt != nil {
		t := *gate.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// CreateRun inserts a new run record.
func (m *MemStore) CreateRun(_ context.Context, run *types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a run by ID.
func (m *MemStore) GetRun(_ context.Context, runID uuid.UUID) (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

// UpdateRun persists the mutable run fields.
func (m *MemStore) UpdateRun(_ context.Context, run *types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.runs[run.ID]
	if !ok {
		return ErrRunNotFound
	}
	cp := cloneRun(run)
	cp.CreatedAt = stored.CreatedAt
	cp.Archived = stored.Archived
	cp.UpdatedAt = time.Now()
	m.runs[run.ID] = cp
	return nil
}

// ListRuns retrieves recent runs, newest first.
func (m *MemStore) ListRuns(_ context.Context, limit int) ([]types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var runs []types.Run
	for _, run := range m.runs {
		runs = append(runs, *cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ArchiveRun marks a run archived.
func (m *MemStore) ArchiveRun(_ context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Archived = true
	run.UpdatedAt = time.Now()
	return nil
}

// PutNode upserts a stage node.
func (m *MemStore) PutNode(_ context.Context, node *types.StageNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey, ok := m.nodes[node.RunID]
	if !ok {
		byKey = make(map[types.NodeKey]*types.StageNode)
		m.nodes[node.RunID] = byKey
	}
	cp := cloneNode(node)
	now := time.Now()
	if existing, ok := byKey[node.Key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	byKey[node.Key] = cp
	return nil
}

// GetNode retrieves one stage node.
func (m *MemStore) GetNode(_ context.Context, runID uuid.UUID, key types.NodeKey) (*types.StageNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[runID][key]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return cloneNode(node), nil
}

// ListNodes retrieves all stage nodes for a run in creation order.
func (m *MemStore) ListNodes(_ context.Context, runID uuid.UUID) ([]types.StageNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var nodes []types.StageNode
	for _, node := range m.nodes[runID] {
		nodes = append(nodes, *cloneNode(node))
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].Key < nodes[j].Key
		}
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
	return nodes, nil
}

// OpenGate claims the run's single gate slot. Check-and-set under the store
// mutex: a second open while any gate is pending observes ErrGateConflict.
func (m *MemStore) OpenGate(_ context.Context, gate *types.Gate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[gate.RunID]
	if !ok {
		return ErrRunNotFound
	}
	if run.PendingGate != nil {
		return ErrGateConflict
	}

	payloadJSON, err := json.Marshal(gate.Payload)
	if err != nil {
		return err
	}
	gate.Status = types.GateOpen
	gate.Response = nil
	gate.ResolvedAt = nil
	gate.CreatedAt = time.Now()

	byID, ok := m.gates[gate.RunID]
	if !ok {
		byID = make(map[string]*types.Gate)
		m.gates[gate.RunID] = byID
	}
	byID[gate.ID] = cloneGate(gate)

	id := gate.ID
	run.PendingGate = &id
	run.PendingGateData = payloadJSON
	run.UpdatedAt = time.Now()
	return nil
}

// GetGate retrieves a gate by run and id.
func (m *MemStore) GetGate(_ context.Context, runID uuid.UUID, gateID string) (*types.Gate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate, ok := m.gates[runID][gateID]
	if !ok {
		return nil, ErrGateNotFound
	}
	return cloneGate(gate), nil
}

// ResolveGate flips an open gate to resolved exactly once.
func (m *MemStore) ResolveGate(_ context.Context, runID uuid.UUID, gateID string, response json.RawMessage) (*types.Gate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate, ok := m.gates[runID][gateID]
	if !ok {
		return nil, ErrGateNotFound
	}
	switch gate.Status {
	case types.GateOpen:
	case types.GateExpired:
		return nil, ErrGateExpired
	default:
		return nil, ErrGateConflict
	}

	now := time.Now()
	gate.Status = types.GateResolved
	gate.Response = append(json.RawMessage(nil), response...)
	gate.ResolvedAt = &now

	if run, ok := m.runs[runID]; ok && run.PendingGate != nil && *run.PendingGate == gateID {
		run.PendingGate = nil
		run.PendingGateData = nil
		run.UpdatedAt = now
	}
	return cloneGate(gate), nil
}

// ExpireGate force-expires a gate and releases the run's slot if held.
func (m *MemStore) ExpireGate(_ context.Context, runID uuid.UUID, gateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate, ok := m.gates[runID][gateID]
	if !ok {
		return ErrGateNotFound
	}
	gate.Status = types.GateExpired
	if run, ok := m.runs[runID]; ok && run.PendingGate != nil && *run.PendingGate == gateID {
		run.PendingGate = nil
		run.PendingGateData = nil
		run.UpdatedAt = time.Now()
	}
	return nil
}

// CreateReplan inserts a replan request record.
func (m *MemStore) CreateReplan(_ context.Context, req *types.ReplanRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now
	cp := *req
	cp.StaleNodes = append([]types.NodeKey(nil), req.StaleNodes...)
	m.replans[req.RunID] = append(m.replans[req.RunID], &cp)
	return nil
}

// GetActiveReplan returns the newest non-completed replan request, or nil.
func (m *MemStore) GetActiveReplan(_ context.Context, runID uuid.UUID) (*types.ReplanRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := m.replans[runID]
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].State != types.ReplanCompleted {
			cp := *reqs[i]
			cp.StaleNodes = append([]types.NodeKey(nil), reqs[i].StaleNodes...)
			return &cp, nil
		}
	}
	return nil, nil
}

// UpdateReplan persists a replan request's mutable fields.
func (m *MemStore) UpdateReplan(_ context.Context, req *types.ReplanRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.replans[req.RunID] {
		if stored.ID == req.ID {
			stored.RequiresRestart = req.RequiresRestart
			stored.State = req.State
			stored.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrRunNotFound
}

// NextBenchmarkEditVersion atomically bumps the run's edit counter.
func (m *MemStore) NextBenchmarkEditVersion(_ context.Context, runID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return 0, ErrRunNotFound
	}
	m.editSeq[runID]++
	return m.editSeq[runID], nil
}

// SaveArtifact stores a JSON artifact for a run step.
func (m *MemStore) SaveArtifact(_ context.Context, runID uuid.UUID, step string, content any) error {
	buf, err := json.Marshal(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byStep, ok := m.jsonArts[runID]
	if !ok {
		byStep = make(map[string][]byte)
		m.jsonArts[runID] = byStep
	}
	byStep[step] = buf
	return nil
}

// SaveTextArtifact stores a text artifact.
func (m *MemStore) SaveTextArtifact(_ context.Context, runID uuid.UUID, step, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStep, ok := m.textArts[runID]
	if !ok {
		byStep = make(map[string]string)
		m.textArts[runID] = byStep
	}
	byStep[step] = text
	return nil
}

// GetArtifact retrieves a JSON artifact by run and step.
func (m *MemStore) GetArtifact(_ context.Context, runID uuid.UUID, step string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.jsonArts[runID][step]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), buf...), nil
}

// GetTextArtifact retrieves a text artifact by run and step.
func (m *MemStore) GetTextArtifact(_ context.Context, runID uuid.UUID, step string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textArts[runID][step], nil
}
