package results

import (
	"testing"
	"time"

	"github.com/iRazvan2745/Storm/internal/coordinator/model"
)

func TestFuseDowntimeMsRequiresConcurrentAgents(t *testing.T) {
	// Agent A down [0,10min), Agent B down [5,15min): only the
	// concurrent [5,10min) overlap, where >=2 agents agree, counts.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ivs := []interval{
		{start: base, end: base.Add(10 * time.Minute)},
		{start: base.Add(5 * time.Minute), end: base.Add(15 * time.Minute)},
	}
	got := fuseDowntimeMs(ivs)
	want := int64(5 * time.Minute / time.Millisecond)
	if got != want {
		t.Errorf("fuseDowntimeMs = %d, want %d (only the concurrent overlap counts)", got, want)
	}
}

func TestFuseDowntimeMsSingleAgentNeverCounts(t *testing.T) {
	// A single agent's own outage, alone, never meets the
	// MinAgentsForDowntime threshold.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ivs := []interval{
		{start: base, end: base.Add(20 * time.Minute)},
	}
	if got := fuseDowntimeMs(ivs); got != 0 {
		t.Errorf("fuseDowntimeMs = %d, want 0 with only one agent down", got)
	}
}

func TestFuseDowntimeMsDisjointNeverOverlaps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ivs := []interval{
		{start: base, end: base.Add(5 * time.Minute)},
		{start: base.Add(10 * time.Minute), end: base.Add(15 * time.Minute)},
	}
	got := fuseDowntimeMs(ivs)
	if got != 0 {
		t.Errorf("fuseDowntimeMs = %d, want 0 for disjoint single-agent intervals", got)
	}
}

// TestFuseDowntimeMsMatchesWorkedExampleS5 reproduces spec.md §8's S5
// scenario exactly: Agent A down [0,20min], Agent B down [10,30min] in
// a 1-hour window must fuse to 10 minutes of downtime (only the
// [10,20min) overlap, since MinAgentsForDowntime=2 agents must agree),
// giving uptimePct ~= 83.33%.
func TestFuseDowntimeMsMatchesWorkedExampleS5(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ivs := []interval{
		{start: base, end: base.Add(20 * time.Minute)},
		{start: base.Add(10 * time.Minute), end: base.Add(30 * time.Minute)},
	}
	got := fuseDowntimeMs(ivs)
	want := int64(10 * time.Minute / time.Millisecond)
	if got != want {
		t.Fatalf("fuseDowntimeMs = %d, want %d per spec.md S5", got, want)
	}

	windowMs := int64(time.Hour / time.Millisecond)
	uptimePct := 100 * (1 - float64(got)/float64(windowMs))
	if d := uptimePct - 83.33; d < -0.01 || d > 0.01 {
		t.Errorf("uptimePct = %.4f, want ~=83.33 per spec.md S5", uptimePct)
	}
}

func TestUptimePercentagesNoObservationDefaultsToFullUptime(t *testing.T) {
	e := newTestEngine(t)
	pct := e.UptimePercentages(99, 1, time.Now())
	if pct.Uptime != 1 {
		t.Errorf("Uptime = %v, want 1 for a target with no recorded history", pct.Uptime)
	}
}

func TestUptimePercentagesRequiresTwoAgentsConcurrentlyDown(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	start := now.Add(-12 * time.Hour)

	// A single agent's outage alone must not contribute any fused
	// downtime: MinAgentsForDowntime requires at least a second agent
	// down over the same span.
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: start, Success: false}, "web"); err != nil {
		t.Fatalf("submit a1 down: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: start.Add(2 * time.Hour), Success: true}, "web"); err != nil {
		t.Fatalf("submit a1 up: %v", err)
	}

	pct := e.UptimePercentages(1, 1, now)
	if pct.DowntimeMs != 0 {
		t.Errorf("DowntimeMs = %d, want 0 with only one agent ever reporting down", pct.DowntimeMs)
	}
	if pct.Uptime != 1 {
		t.Errorf("Uptime = %v, want 1 with only one agent ever reporting down", pct.Uptime)
	}
}

func TestUptimePercentagesFusesAcrossAgents(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	start := now.Add(-12 * time.Hour)

	// Agent a1 down for the full 2-hour span; agent a2 down for only
	// the middle hour. Only the 1-hour overlap, where both agents
	// agree the target is down, counts toward fused downtime.
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: start, Success: false}, "web"); err != nil {
		t.Fatalf("submit a1 down: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a2", Timestamp: start.Add(30 * time.Minute), Success: false}, "web"); err != nil {
		t.Fatalf("submit a2 down: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a2", Timestamp: start.Add(90 * time.Minute), Success: true}, "web"); err != nil {
		t.Fatalf("submit a2 up: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: start.Add(2 * time.Hour), Success: true}, "web"); err != nil {
		t.Fatalf("submit a1 up: %v", err)
	}

	pct := e.UptimePercentages(1, 1, now)
	wantDown := int64(time.Hour / time.Millisecond)
	if pct.DowntimeMs != wantDown {
		t.Errorf("DowntimeMs = %d, want %d (only the 2-agent overlap)", pct.DowntimeMs, wantDown)
	}
	if pct.Uptime <= 0 || pct.Uptime >= 1 {
		t.Errorf("Uptime = %v, want a value strictly between 0 and 1", pct.Uptime)
	}
}

func TestUptimePercentagesClampsToLookback(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: now.Add(-time.Hour), Success: true}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	pct := e.UptimePercentages(1, 10000, now)
	wantWindowMs := int64(UptimeLookbackDays) * dayMs
	if pct.WindowMs != wantWindowMs {
		t.Errorf("WindowMs = %d, want clamp to %d days (%d ms)", pct.WindowMs, UptimeLookbackDays, wantWindowMs)
	}
}

func TestDayAggregateForReportsDowntimeAndAverage(t *testing.T) {
	e := newTestEngine(t)
	day := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: day, Success: false}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: day.Add(time.Hour), Success: true}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Submit(model.CheckResult{
		TargetID: 1, AgentID: "a1", Timestamp: day.Add(2 * time.Hour), Success: true, ResponseTimeMs: floatPtr(42),
	}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	agg := e.DayAggregateFor(1, dateKey(day), day.Add(3*time.Hour))
	if agg.DowntimeMs != int64(time.Hour/time.Millisecond) {
		t.Errorf("DowntimeMs = %d, want 1 hour", agg.DowntimeMs)
	}
	if agg.UptimePercentage <= 0 || agg.UptimePercentage > 100 {
		t.Errorf("UptimePercentage out of range: %v", agg.UptimePercentage)
	}
	if agg.AvgResponseTimeMs != 42 {
		t.Errorf("AvgResponseTimeMs = %v, want 42", agg.AvgResponseTimeMs)
	}
}

func TestFilteredRecordsHonorsFilters(t *testing.T) {
	e := newTestEngine(t)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: day, Success: true}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Submit(model.CheckResult{TargetID: 2, AgentID: "a2", Timestamp: day, Success: true}, "db"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	all := e.FilteredRecords("", 0, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 unfiltered records, got %d", len(all))
	}

	byTarget := e.FilteredRecords("", 1, "")
	if len(byTarget) != 1 || byTarget[0].TargetID != 1 {
		t.Errorf("expected filter by targetId to return only target 1, got %+v", byTarget)
	}

	byAgent := e.FilteredRecords("a2", 0, "")
	if len(byAgent) != 1 || byAgent[0].AgentID != "a2" {
		t.Errorf("expected filter by agentId to return only a2, got %+v", byAgent)
	}
}

func TestEffectiveDowntimeMsIncludesOpenIncident(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	if err := e.Submit(model.CheckResult{TargetID: 1, AgentID: "a1", Timestamp: start, Success: false}, "web"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	totals := e.DailyDowntimeTotals(dateKey(start), start.Add(30*time.Minute))
	got := totals["a1"][1]
	want := int64(30 * time.Minute / time.Millisecond)
	if got != want {
		t.Errorf("DailyDowntimeTotals with an open incident = %d, want %d", got, want)
	}
}
