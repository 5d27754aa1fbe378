// Package pipeline contains the run controller and the stage contract. The
// controller owns all run mutation; stages are pure units of work that read
// their inputs, do their stage's job, and either finish or ask for a gate.
package pipeline

import (
	"context"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/types"
)

// Stage is one node's implementation. A stage is invoked fresh when its
// dependencies are satisfied, and re-invoked with the resolved gate after a
// suspension. Stages never mutate run state directly; they return an Outcome
// and the controller applies it.
type Stage interface {
	Key() types.NodeKey
	Run(ctx context.Context, in *StageInput) (*Outcome, error)
}

// StageInput is everything a stage invocation can see.
type StageInput struct {
	Run   *types.Run
	Node  *types.StageNode
	Nodes []types.StageNode

	// Gate and Response are set when the stage is resumed after a gate
	// resolution, nil on a fresh invocation.
	Gate     *types.Gate
	Response *types.GateResponse

	Store db.Store
	// Emit pushes an event onto the run's stream.
	Emit func(name string, payload any)
}

// GateRequest asks the controller to suspend the stage at a gate.
type GateRequest struct {
	Context string
	Payload types.GatePayload
}

// Outcome is what a stage invocation produced. Exactly one of Gate set or
// the stage finishing applies: when Gate is nil the node is marked complete
// (or auto-approved).
type Outcome struct {
	Gate         *GateRequest
	AutoApproved bool
}

// Done is the outcome of a stage that finished normally.
func Done() *Outcome { return &Outcome{} }

// Suspend is the outcome of a stage that needs a gate resolved before it can
// continue.
func Suspend(gateContext string, payload types.GatePayload) *Outcome {
	return &Outcome{Gate: &GateRequest{Context: gateContext, Payload: payload}}
}
