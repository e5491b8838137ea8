package model

import (
	"testing"
	"time"
)

func TestDailyDowntimeRecordOpenIncident(t *testing.T) {
	rec := &DailyDowntimeRecord{}
	if rec.OpenIncident() != nil {
		t.Fatalf("expected no open incident on empty record")
	}

	rec.Incidents = append(rec.Incidents, Incident{StartTime: time.Now()})
	open := rec.OpenIncident()
	if open == nil {
		t.Fatalf("expected an open incident")
	}
	if open != &rec.Incidents[len(rec.Incidents)-1] {
		t.Fatalf("OpenIncident must point at the last incident")
	}

	closedAt := time.Now()
	rec.Incidents[0].EndTime = &closedAt
	if rec.OpenIncident() != nil {
		t.Fatalf("expected no open incident once the last one is closed")
	}
}

func TestTargetStatusCloneIsIndependent(t *testing.T) {
	st := &TargetStatus{
		TargetID:        1,
		AgentsReporting: map[string]bool{"a1": true, "a2": false},
	}
	clone := st.CloneAgentsReporting()
	clone["a1"] = false
	clone["a3"] = true

	if !st.AgentsReporting["a1"] {
		t.Errorf("mutating the clone must not affect the original map")
	}
	if _, ok := st.AgentsReporting["a3"]; ok {
		t.Errorf("clone mutation leaked into the original")
	}
}
