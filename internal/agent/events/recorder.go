// Package events records agent lifecycle events (registered, target
// set reloaded) for local diagnostics. Adapted from the teacher's events.Recorder interface —
// same Recorder/NoopRecorder/Multi shape — generalized from the
// teacher's types.Event to a Storm-native Event carrying a uuid id
// instead of a caller-supplied one, giving google/uuid its second real
// call site in this lineage alongside the coordinator's request-id
// middleware.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is one agent-local occurrence worth a log line.
type Event struct {
	ID        string
	Kind      string
	Message   string
	Timestamp time.Time
}

// New stamps an Event with a fresh id and the current time.
func New(kind, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}

type Recorder interface {
	Record(event Event)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(Event) {}

// Multi fans an event out to every wrapped recorder, skipping nils.
type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}
