package events

import "testing"

func TestNewStampsIDAndTimestamp(t *testing.T) {
	e := New("registered", "agent joined the coordinator")
	if e.ID == "" {
		t.Errorf("expected a non-empty ID")
	}
	if e.Kind != "registered" {
		t.Errorf("Kind = %q, want %q", e.Kind, "registered")
	}
	if e.Message != "agent joined the coordinator" {
		t.Errorf("Message = %q, want %q", e.Message, "agent joined the coordinator")
	}
	if e.Timestamp.IsZero() {
		t.Errorf("expected a non-zero Timestamp")
	}
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New("kind", "one")
	b := New("kind", "two")
	if a.ID == b.ID {
		t.Errorf("expected distinct event IDs, got the same for both")
	}
}

func TestNoopRecorderDoesNotPanic(t *testing.T) {
	var r NoopRecorder
	r.Record(New("kind", "message"))
}

type captureRecorder struct {
	events []Event
}

func (c *captureRecorder) Record(e Event) {
	c.events = append(c.events, e)
}

func TestMultiFansOutToEveryRecorder(t *testing.T) {
	a := &captureRecorder{}
	b := &captureRecorder{}
	m := NewMulti(a, b)

	e := New("spilled", "submission spilled to disk")
	m.Record(e)

	if len(a.events) != 1 || a.events[0].ID != e.ID {
		t.Errorf("recorder a did not receive the event: %+v", a.events)
	}
	if len(b.events) != 1 || b.events[0].ID != e.ID {
		t.Errorf("recorder b did not receive the event: %+v", b.events)
	}
}

func TestMultiSkipsNilRecorders(t *testing.T) {
	a := &captureRecorder{}
	m := NewMulti(a, nil)
	m.Record(New("kind", "message"))
	if len(a.events) != 1 {
		t.Errorf("expected the live recorder to still receive the event despite a nil sibling")
	}
}

func TestMultiWithNoRecordersIsSafe(t *testing.T) {
	m := NewMulti()
	m.Record(New("kind", "message"))
}
