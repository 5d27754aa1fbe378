package types

import (
	"time"

	"github.com/google/uuid"
)

// ReplanReason is fixed: the only upstream signal that triggers a replan is
// an accepted edit to the benchmark assumptions.
type ReplanReason string

const ReasonBenchmarkUpdated ReplanReason = "benchmark_assumptions_updated"

// ReplanState tracks a replan request through its lifecycle.
type ReplanState string

const (
	ReplanPending   ReplanState = "pending"
	ReplanStarted   ReplanState = "started"
	ReplanCompleted ReplanState = "completed"
)

// ReplanRequest records one upstream-edit invalidation cascade.
// BenchmarkEditVersion is monotonically increasing per run and never reused.
// When RequiresRestart is set, no further gate may resolve until the client
// explicitly confirms the restart; this prevents silently discarding unsaved
// review decisions.
type ReplanRequest struct {
	ID                   uuid.UUID    `json:"id"`
	RunID                uuid.UUID    `json:"run_id"`
	Reason               ReplanReason `json:"reason"`
	BenchmarkEditVersion int          `json:"benchmark_edit_version"`
	RebuildFromStage     NodeKey      `json:"rebuild_from_stage"`
	RequiresRestart      bool         `json:"requires_restart"`
	StaleNodes           []NodeKey    `json:"stale_nodes"`
	CurrentStage         NodeKey      `json:"current_stage"`
	State                ReplanState  `json:"state"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}
