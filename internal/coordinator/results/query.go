package results

import (
	"sort"
	"time"

	"github.com/iRazvan2745/Storm/internal/coordinator/model"
)

// UptimeLookbackDays bounds how far back getUptimePercentages fuses
// history, per spec.md §4.3.
const UptimeLookbackDays = 45

// DailySummary is one day's downtime ledger for a single (agent,
// target) pair, as returned to callers outside the engine's lock.
type DailySummary struct {
	AgentID    string
	TargetID   int
	Date       string
	DowntimeMs int64
	Incidents  []model.Incident
	IsDown     bool
}

// effectiveDowntimeMs adds the still-open portion of any open incident
// (now - startTime) to the record's closed-incident total, per
// spec.md §4.3: "open downtime is always included."
func effectiveDowntimeMs(rec *model.DailyDowntimeRecord, now time.Time) int64 {
	total := rec.DowntimeMs
	if open := rec.OpenIncident(); open != nil && now.After(open.StartTime) {
		total += now.Sub(open.StartTime).Milliseconds()
	}
	return total
}

// DailyDowntimeTotals implements getDailyDowntimeSummary(date):
// agentId -> targetId -> total downtime in ms for that local date,
// including the live contribution of any incident still open.
func (e *Engine) DailyDowntimeTotals(date string, now time.Time) map[string]map[int]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]map[int]int64)
	for key, rec := range e.store.records {
		if key.Date != date {
			continue
		}
		byTarget, ok := out[key.AgentID]
		if !ok {
			byTarget = make(map[int]int64)
			out[key.AgentID] = byTarget
		}
		byTarget[key.TargetID] = effectiveDowntimeMs(rec, now)
	}
	return out
}

// FilteredRecords implements GET /api/results: the stored daily
// records, optionally filtered by agentId/targetId/date. Empty
// filters match everything.
func (e *Engine) FilteredRecords(agentID string, targetID int, date string) []DailySummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []DailySummary
	for key, rec := range e.store.records {
		if agentID != "" && key.AgentID != agentID {
			continue
		}
		if targetID != 0 && key.TargetID != targetID {
			continue
		}
		if date != "" && key.Date != date {
			continue
		}
		out = append(out, DailySummary{
			AgentID:    key.AgentID,
			TargetID:   key.TargetID,
			Date:       rec.Date,
			DowntimeMs: rec.DowntimeMs,
			Incidents:  append([]model.Incident(nil), rec.Incidents...),
			IsDown:     rec.IsDown,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}

// DayAggregate is the per-target, per-day view GET /api/uptime
// returns: downtime summed across every reporting agent, the average
// of their response-time buckets, and the day's uptime percentage.
type DayAggregate struct {
	TargetID          int
	Date              string
	DowntimeMs        int64
	UptimePercentage  float64
	AvgResponseTimeMs float64
}

const dayMs = 24 * 60 * 60 * 1000

// DayAggregateFor computes the combined-agent view for one target on one
// local date. Downtime across agents is summed (not fused): two agents
// independently down for the same interval is a data quality signal,
// not double counting, since each keeps its own daily record.
func (e *Engine) DayAggregateFor(targetID int, date string, now time.Time) DayAggregate {
	e.mu.Lock()
	defer e.mu.Unlock()

	var downtimeMs int64
	var respSum float64
	var respCount int
	for key, rec := range e.store.records {
		if key.TargetID != targetID || key.Date != date {
			continue
		}
		downtimeMs += effectiveDowntimeMs(rec, now)
		for _, b := range rec.ResponseTimeIntervals {
			respSum += b.AvgResponseTime * float64(b.Count)
			respCount += b.Count
		}
	}

	avg := 0.0
	if respCount > 0 {
		avg = respSum / float64(respCount)
	}

	uptimePct := 100 * (1 - float64(downtimeMs)/float64(dayMs))
	if uptimePct < 0 {
		uptimePct = 0
	}
	if uptimePct > 100 {
		uptimePct = 100
	}

	return DayAggregate{
		TargetID:          targetID,
		Date:              date,
		DowntimeMs:        downtimeMs,
		UptimePercentage:  roundTwoDecimals(uptimePct),
		AvgResponseTimeMs: avg,
	}
}

func roundTwoDecimals(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// ResponseTimeAverages returns the 30-minute response-time buckets for
// a target on a given local date, across all reporting agents merged
// by bucket start — agents with samples in the same window are
// averaged together weighted by sample count.
func (e *Engine) ResponseTimeAverages(targetID int, date string) []model.ResponseTimeBucket {
	e.mu.Lock()
	defer e.mu.Unlock()

	type accum struct {
		start, end time.Time
		sum        float64
		count      int
	}
	byStart := make(map[int64]*accum)

	for key, rec := range e.store.records {
		if key.TargetID != targetID || rec.Date != date {
			continue
		}
		for _, b := range rec.ResponseTimeIntervals {
			a, ok := byStart[b.StartTime.UnixNano()]
			if !ok {
				a = &accum{start: b.StartTime, end: b.EndTime}
				byStart[b.StartTime.UnixNano()] = a
			}
			a.sum += b.AvgResponseTime * float64(b.Count)
			a.count += b.Count
		}
	}

	out := make([]model.ResponseTimeBucket, 0, len(byStart))
	for _, a := range byStart {
		out = append(out, model.ResponseTimeBucket{
			StartTime:       a.start,
			EndTime:         a.end,
			Count:           a.count,
			AvgResponseTime: a.sum / float64(a.count),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// interval is a half-open [Start, End) time range used by the
// multi-agent uptime fusion sweep.
type interval struct {
	start, end time.Time
}

// UptimePercentage is the fraction of a window, in [0,1], that a
// target was up per the fused multi-agent view (§4.3): overlapping
// down-intervals reported by two or more agents count once, and the
// fused-down threshold follows model.MinAgentsForDowntime.
type UptimePercentage struct {
	TargetID   int
	Uptime     float64 // 0..1
	DowntimeMs int64
	WindowMs   int64
}

// UptimeWindows is the day/week/month/year view spec.md §6 documents
// for GET /api/targets/:id/uptime.
type UptimeWindows struct {
	Day   UptimePercentage
	Week  UptimePercentage
	Month UptimePercentage
	Year  UptimePercentage
}

// UptimePercentages computes the fused uptime percentage for a target
// over the trailing windowDays, clamped to UptimeLookbackDays: older
// incidents are not scanned, even while their records are still
// retained.
func (e *Engine) UptimePercentages(targetID int, windowDays int, now time.Time) UptimePercentage {
	if windowDays > UptimeLookbackDays {
		windowDays = UptimeLookbackDays
	}
	if windowDays < 1 {
		windowDays = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	windowEnd := now
	windowStart := now.AddDate(0, 0, -windowDays)

	var intervals []interval
	haveObservation := false
	for key, rec := range e.store.records {
		if key.TargetID != targetID {
			continue
		}
		haveObservation = true
		for _, inc := range rec.Incidents {
			end := windowEnd
			if inc.EndTime != nil {
				end = *inc.EndTime
			}
			start := inc.StartTime
			if start.Before(windowStart) {
				start = windowStart
			}
			if end.After(windowEnd) {
				end = windowEnd
			}
			if !end.After(start) {
				continue
			}
			intervals = append(intervals, interval{start: start, end: end})
		}
	}

	if !haveObservation {
		return UptimePercentage{TargetID: targetID, Uptime: 1}
	}

	downMs := fuseDowntimeMs(intervals)
	windowMs := windowEnd.Sub(windowStart).Milliseconds()
	if windowMs <= 0 {
		return UptimePercentage{TargetID: targetID, Uptime: 1}
	}

	uptime := 1 - float64(downMs)/float64(windowMs)
	if uptime < 0 {
		uptime = 0
	}
	return UptimePercentage{
		TargetID:   targetID,
		Uptime:     uptime,
		DowntimeMs: downMs,
		WindowMs:   windowMs,
	}
}

// TargetUptimeWindows computes the day/week/month/year fused uptime view for
// a target in one pass.
func (e *Engine) TargetUptimeWindows(targetID int, now time.Time) UptimeWindows {
	return UptimeWindows{
		Day:   e.UptimePercentages(targetID, 1, now),
		Week:  e.UptimePercentages(targetID, 7, now),
		Month: e.UptimePercentages(targetID, 30, now),
		Year:  e.UptimePercentages(targetID, 365, now),
	}
}

// fuseDowntimeMs merges a set of possibly-overlapping per-agent
// down-intervals via a +1/-1 boundary sweep, counting a span as fused
// downtime only while at least model.MinAgentsForDowntime agents are
// concurrently down (§4.3 step 3). A single agent's outage alone never
// contributes; it must overlap at least one other agent's outage.
func fuseDowntimeMs(intervals []interval) int64 {
	if len(intervals) == 0 {
		return 0
	}
	type event struct {
		at    time.Time
		delta int
	}
	events := make([]event, 0, len(intervals)*2)
	for _, iv := range intervals {
		events = append(events, event{at: iv.start, delta: 1}, event{at: iv.end, delta: -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta // closes before opens at the same instant
		}
		return events[i].at.Before(events[j].at)
	})

	var total int64
	concurrentDown := 0
	var spanStart time.Time
	for _, ev := range events {
		if concurrentDown >= model.MinAgentsForDowntime {
			total += ev.at.Sub(spanStart).Milliseconds()
		}
		concurrentDown += ev.delta
		spanStart = ev.at
	}
	return total
}
