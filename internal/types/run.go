// Package types defines the core data model for the resume-authoring
// orchestration pipeline: runs, stage nodes, gates, suggestions, review
// bundles, and replan requests.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PipelineStatus is the lifecycle state of a run.
type PipelineStatus string

const (
	StatusIdle     PipelineStatus = "idle"
	StatusRunning  PipelineStatus = "running"
	StatusBlocked  PipelineStatus = "blocked"
	StatusError    PipelineStatus = "error"
	StatusComplete PipelineStatus = "complete"
)

// Run is one authoring session. It is exclusively owned and mutated by the
// run controller; everything else reads it through snapshots.
type Run struct {
	ID              uuid.UUID       `json:"id"`
	Status          PipelineStatus  `json:"pipeline_status"`
	CurrentStage    NodeKey         `json:"current_stage"`
	ActiveNode      string          `json:"active_node"`
	PendingGate     *string         `json:"pending_gate,omitempty"`
	PendingGateData json.RawMessage `json:"pending_gate_data,omitempty"`
	ForceAdvanced   bool            `json:"force_advanced"`
	Archived        bool            `json:"archived"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Blocked reports whether the run is suspended at an open gate.
func (r *Run) Blocked() bool {
	return r.Status == StatusBlocked && r.PendingGate != nil
}

// Terminal reports whether the run can make no further progress.
func (r *Run) Terminal() bool {
	return r.Status == StatusComplete || r.Status == StatusError
}
