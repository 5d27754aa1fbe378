// Package events provides the per-run event log and its delivery contract:
// events are totally ordered within a run, delivered at-most-once to at most
// one live subscriber, and never replayed. A reconnecting client must fetch
// the run snapshot instead.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names pushed over the run stream.
const (
	EventConnected        = "connected"
	EventStageStart       = "stage_start"
	EventStageComplete    = "stage_complete"
	EventGateOpened       = "gate_opened"
	EventGateResolved     = "gate_resolved"
	EventPipelineComplete = "pipeline_complete"
	EventPipelineError    = "pipeline_error"
	EventReplanRequested  = "replan_requested"
	EventReplanStarted    = "replan_started"
	EventReplanCompleted  = "replan_completed"
	EventReadinessUpdate  = "readiness_update"
)

// Event is one entry in a run's ordered event log.
type Event struct {
	Seq       int       `json:"seq"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it. The log itself keeps everything.
const subscriberBuffer = 64

// Emitter is the append-only, in-memory event log for one run. It is not a
// durable replay source: the log exists for diagnostics, delivery happens
// only to the current live subscriber.
type Emitter struct {
	mu   sync.Mutex
	log  []Event
	ch   chan Event
	stop chan struct{}
}

// NewEmitter creates an emitter with an empty log and no subscriber.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Emit appends an event to the log and delivers it to the live subscriber,
// if any. Delivery is at-most-once: if the subscriber's buffer is full the
// event is dropped for that connection.
func (e *Emitter) Emit(name string, payload any) Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := Event{
		Seq:       len(e.log) + 1,
		Name:      name,
		Payload:   payload,
		EmittedAt: time.Now(),
	}
	e.log = append(e.log, ev)
	if e.ch != nil {
		select {
		case e.ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe registers the (single) live subscriber. A new subscription
// supersedes any prior one: the old channel is closed and its connection is
// expected to wind down. The returned cancel func detaches this subscriber;
// it is safe to call after being superseded.
func (e *Emitter) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch != nil {
		close(e.ch)
		close(e.stop)
	}
	ch := make(chan Event, subscriberBuffer)
	stop := make(chan struct{})
	e.ch = ch
	e.stop = stop

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.ch == ch {
			close(e.ch)
			close(e.stop)
			e.ch = nil
			e.stop = nil
		}
	}
	return ch, cancel
}

// Superseded returns a channel closed when this subscription is replaced or
// cancelled. Callers holding the channel from Subscribe should select on it.
func (e *Emitter) Superseded() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop
}

// Log returns a copy of the full event log.
func (e *Emitter) Log() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.log...)
}

// Bus hands out one Emitter per run.
type Bus struct {
	mu       sync.Mutex
	emitters map[uuid.UUID]*Emitter
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{emitters: make(map[uuid.UUID]*Emitter)}
}

// ForRun returns the run's emitter, creating it on first use.
func (b *Bus) ForRun(runID uuid.UUID) *Emitter {
	b.mu.Lock()
	defer b.mu.Unlock()
	em, ok := b.emitters[runID]
	if !ok {
		em = NewEmitter()
		b.emitters[runID] = em
	}
	return em
}

// Drop discards a run's emitter (archived or aborted runs).
func (b *Bus) Drop(runID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.emitters, runID)
}
