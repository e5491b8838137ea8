package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/iRazvan2745/Storm/internal/coordinator/model"
)

func floatPtr(v float64) *float64 { return &v }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.json")
	e := New(path, nil)
	if err := e.Load(); err != nil {
		t.Fatalf("Load() on fresh store: %v", err)
	}
	return e
}

func TestSubmitRequiresTargetAndAgent(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Submit(model.CheckResult{AgentID: "a1", Timestamp: time.Now()}, "t1"); err == nil {
		t.Errorf("expected error when targetId is zero")
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, Timestamp: time.Now()}, "t1"); err == nil {
		t.Errorf("expected error when agentId is empty")
	}
}

func TestSingleAgentConsensusIsAuthoritative(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: now, Success: false}, "web"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st, ok := e.TargetStatusSnapshot(1)
	if !ok {
		t.Fatalf("expected a status snapshot for target 1")
	}
	if !st.IsDown {
		t.Errorf("a single reporting agent saying down must flip consensus to down")
	}

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: now.Add(time.Minute), Success: true}, "web"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st, _ = e.TargetStatusSnapshot(1)
	if st.IsDown {
		t.Errorf("a single reporting agent saying up must flip consensus back to up")
	}
}

func TestTwoAgentConsensusRequiresMajority(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a2", Timestamp: now, Success: true}, "web"); err != nil {
		t.Fatalf("Submit a2 up: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: now, Success: false}, "web"); err != nil {
		t.Fatalf("Submit a1: %v", err)
	}
	st, _ := e.TargetStatusSnapshot(1)
	if st.IsDown {
		t.Fatalf("one of two agents reporting down must not be consensus-down yet (need %d)", model.MinAgentsForDowntime)
	}

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a2", Timestamp: now, Success: false}, "web"); err != nil {
		t.Fatalf("Submit a2: %v", err)
	}
	st, _ = e.TargetStatusSnapshot(1)
	if !st.IsDown {
		t.Errorf("two of two agents reporting down must flip consensus to down")
	}
}

func TestDowntimeAccumulatesAcrossIncident(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: start, Success: false}, "web"); err != nil {
		t.Fatalf("submit down: %v", err)
	}
	recovered := start.Add(5 * time.Minute)
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: recovered, Success: true}, "web"); err != nil {
		t.Fatalf("submit up: %v", err)
	}

	key := recordKey{AgentID: "a1", TargetID: 1, Date: dateKey(start)}
	rec, ok := e.store.records[key]
	if !ok {
		t.Fatalf("expected a record for %v", key)
	}
	wantMs := int64(5 * time.Minute / time.Millisecond)
	if rec.DowntimeMs != wantMs {
		t.Errorf("DowntimeMs = %d, want %d", rec.DowntimeMs, wantMs)
	}
	if rec.State != model.StateUp {
		t.Errorf("State = %v, want StateUp after recovery", rec.State)
	}
	if len(rec.Incidents) != 1 || rec.Incidents[0].EndTime == nil {
		t.Errorf("expected exactly one closed incident, got %+v", rec.Incidents)
	}
}

func TestLateArrivingResultDoesNotRewindIncident(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: start, Success: false}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stale := start.Add(-time.Hour)
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: stale, Success: true}, "web"); err != nil {
		t.Fatalf("submit stale: %v", err)
	}

	key := recordKey{AgentID: "a1", TargetID: 1, Date: dateKey(start)}
	rec := e.store.records[key]
	if rec.State != model.StateDown {
		t.Errorf("a stale result timestamped before the open incident must not rewind state, got %v", rec.State)
	}
	if len(rec.Incidents) != 1 || rec.Incidents[0].EndTime != nil {
		t.Errorf("incident must remain open, got %+v", rec.Incidents)
	}
}

func TestFoldResponseTimeIncrementalMean(t *testing.T) {
	e := newTestEngine(t)
	at := time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)

	for _, ms := range []float64{100, 200, 300} {
		if err := e.Submit(model.CheckResult{
			TargetID: 1, AgentID: "a1", Timestamp: at, Success: true, ResponseTimeMs: floatPtr(ms),
		}, "web"); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	key := recordKey{AgentID: "a1", TargetID: 1, Date: dateKey(at)}
	rec := e.store.records[key]
	if len(rec.ResponseTimeIntervals) != 1 {
		t.Fatalf("expected a single 30-minute bucket, got %d", len(rec.ResponseTimeIntervals))
	}
	bucket := rec.ResponseTimeIntervals[0]
	if bucket.Count != 3 {
		t.Errorf("Count = %d, want 3", bucket.Count)
	}
	wantAvg := 200.0
	if bucket.AvgResponseTime != wantAvg {
		t.Errorf("AvgResponseTime = %v, want %v", bucket.AvgResponseTime, wantAvg)
	}
}

func TestResponseTimeBucketBoundaryCreatesSecondBucket(t *testing.T) {
	e := newTestEngine(t)
	first := time.Date(2026, 1, 1, 10, 29, 0, 0, time.UTC)
	second := time.Date(2026, 1, 1, 10, 31, 0, 0, time.UTC)

	for _, at := range []time.Time{first, second} {
		if err := e.Submit(model.CheckResult{
			TargetID: 1, AgentID: "a1", Timestamp: at, Success: true, ResponseTimeMs: floatPtr(50),
		}, "web"); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	key := recordKey{AgentID: "a1", TargetID: 1, Date: dateKey(first)}
	rec := e.store.records[key]
	if len(rec.ResponseTimeIntervals) != 2 {
		t.Fatalf("expected two distinct 30-minute buckets straddling :30, got %d", len(rec.ResponseTimeIntervals))
	}
}

func TestOnChangeFiresOnSubmitAndReset(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	e.OnChange(func() { calls++ })

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: time.Now(), Success: true}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected onChange after Submit, got %d calls", calls)
	}

	if err := e.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected onChange after Reset, got %d calls", calls)
	}
}

func TestPruneRemovesOnlyOldRecords(t *testing.T) {
	e := newTestEngine(t)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: old, Success: true}, "web"); err != nil {
		t.Fatalf("submit old: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: recent, Success: true}, "web"); err != nil {
		t.Fatalf("submit recent: %v", err)
	}

	removed, err := e.Prune(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, ok := e.store.records[recordKey{AgentID: "a1", TargetID: 1, Date: dateKey(recent)}]; !ok {
		t.Errorf("recent record must survive prune")
	}
	if _, ok := e.store.records[recordKey{AgentID: "a1", TargetID: 1, Date: dateKey(old)}]; ok {
		t.Errorf("old record must be removed by prune")
	}
}

type fakeAlertSink struct {
	sends []string
}

func (f *fakeAlertSink) Send(_ context.Context, message, targetName, agentID string) {
	f.sends = append(f.sends, message)
}

func TestAlertSinkFiresOnlyOnDownTransition(t *testing.T) {
	e := newTestEngine(t)
	sink := &fakeAlertSink{}
	e.WithAlertSink(sink)

	now := time.Now()
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: now, Success: false}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: now.Add(time.Minute), Success: false}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(sink.sends) != 1 {
		t.Errorf("expected exactly one alert for the down transition, got %d", len(sink.sends))
	}
}
