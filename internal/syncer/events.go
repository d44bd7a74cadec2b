package syncer

import "time"

// Phase names one step of the run state machine. Phases are strictly
// sequential within a run.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseExtracting   Phase = "extracting"
	PhaseTransforming Phase = "transforming"
	PhaseReconciling  Phase = "reconciling"
	PhaseWriting      Phase = "writing"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Event is one state transition of a run.
type Event struct {
	RunID  string    `json:"runId"`
	Phase  Phase     `json:"phase"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Sink receives run events. Publish must not block; slow consumers drop.
type Sink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event Event)

func (f SinkFunc) Publish(event Event) {
	f(event)
}
