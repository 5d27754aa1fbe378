// Package db provides durable storage for runs, stage nodes, gates, and
// replan requests. Two implementations exist: a PostgreSQL store backed by
// pgx, and an in-memory store used by tests and storeless demo runs.
package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/resume-author/internal/types"
)

var (
	// ErrRunNotFound indicates the run does not exist or is archived.
	ErrRunNotFound = errors.New("run not found")
	// ErrNodeNotFound indicates the stage node does not exist for the run.
	ErrNodeNotFound = errors.New("stage node not found")
	// ErrGateNotFound indicates no gate with that id exists for the run.
	ErrGateNotFound = errors.New("gate not found")
	// ErrGateConflict indicates a gate operation lost the single-flight
	// check: opening while another gate is open, or resolving a gate that is
	// not currently open.
	ErrGateConflict = errors.New("gate conflict")
	// ErrGateExpired indicates a resolve attempt against an expired gate.
	ErrGateExpired = errors.New("gate expired")
	// ErrReplanPending indicates a replan is already awaiting confirmation.
	ErrReplanPending = errors.New("replan already pending")
)

// Store is the persistence contract the controller, gate manager, and replan
// trigger are written against. Gate operations carry the atomic
// check-and-set semantics: OpenGate succeeds only while the run has no open
// gate, and ResolveGate succeeds exactly once per open gate even under
// concurrent retries.
type Store interface {
	CreateRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error)
	UpdateRun(ctx context.Context, run *types.Run) error
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)
	ArchiveRun(ctx context.Context, runID uuid.UUID) error

	PutNode(ctx context.Context, node *types.StageNode) error
	GetNode(ctx context.Context, runID uuid.UUID, key types.NodeKey) (*types.StageNode, error)
	ListNodes(ctx context.Context, runID uuid.UUID) ([]types.StageNode, error)

	// OpenGate inserts the gate and sets the run's pending_gate in one
	// atomic step. Returns ErrGateConflict if another gate is already open.
	OpenGate(ctx context.Context, gate *types.Gate) error
	// ResolveGate flips an open gate to resolved, records the response, and
	// clears the run's pending_gate. Returns ErrGateConflict if the gate is
	// not open, ErrGateExpired if it has expired.
	ResolveGate(ctx context.Context, runID uuid.UUID, gateID string, response json.RawMessage) (*types.Gate, error)
	// ExpireGate force-expires a gate regardless of status and clears the
	// run's pending_gate if it pointed at this gate.
	ExpireGate(ctx context.Context, runID uuid.UUID, gateID string) error
	GetGate(ctx context.Context, runID uuid.UUID, gateID string) (*types.Gate, error)

	CreateReplan(ctx context.Context, req *types.ReplanRequest) error
	// GetActiveReplan returns the newest replan request that has not
	// completed, or nil.
	GetActiveReplan(ctx context.Context, runID uuid.UUID) (*types.ReplanRequest, error)
	UpdateReplan(ctx context.Context, req *types.ReplanRequest) error
	// NextBenchmarkEditVersion atomically increments and returns the run's
	// benchmark edit counter. Versions are never reused.
	NextBenchmarkEditVersion(ctx context.Context, runID uuid.UUID) (int, error)

	SaveArtifact(ctx context.Context, runID uuid.UUID, step string, content any) error
	SaveTextArtifact(ctx context.Context, runID uuid.UUID, step, text string) error
	GetArtifact(ctx context.Context, runID uuid.UUID, step string) ([]byte, error)
	GetTextArtifact(ctx context.Context, runID uuid.UUID, step string) (string, error)
}
