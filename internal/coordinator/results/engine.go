// Package results implements the coordinator's aggregation pipeline
// and incident state machine (spec.md §4.3) — the heart of the
// system: every submitted CheckResult is folded into a 30-minute
// response-time bucket, rolled into the per-agent consensus view of
// its target, and driven through the per-(agent,target,day) UP/DOWN
// state machine that produces the downtime ledger.
package results

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/iRazvan2745/Storm/internal/coordinator/model"
	"github.com/iRazvan2745/Storm/internal/storerr"
)

// AlertSink receives fire-and-forget notifications on down transitions.
// Implemented by internal/coordinator/alert; kept as an interface here
// so results never imports the alert package's HTTP client.
type AlertSink interface {
	Send(ctx context.Context, message, targetName, agentID string)
}

type noopSink struct{}

func (noopSink) Send(context.Context, string, string, string) {}

// Engine owns the process-wide writer lock over the results store and
// the derived per-target consensus view. One Engine serves the whole
// coordinator process.
type Engine struct {
	logger *log.Logger
	now    func() time.Time
	alert  AlertSink

	mu       sync.Mutex
	store    *store
	statuses map[int]*model.TargetStatus

	onChange func() // cache invalidation hook, set by the server wiring
}

func New(path string, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stdout, "storm-coordinator ", log.LstdFlags|log.LUTC)
	}
	return &Engine{
		logger:   logger,
		now:      time.Now,
		alert:    noopSink{},
		store:    newStore(path, logger),
		statuses: make(map[int]*model.TargetStatus),
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) WithAlertSink(sink AlertSink) *Engine {
	if sink != nil {
		e.alert = sink
	}
	return e
}

// OnChange registers a callback invoked after every successful Submit,
// used by the server to invalidate the read cache.
func (e *Engine) OnChange(fn func()) {
	e.onChange = fn
}

// Load reads the persisted results store and reconstructs the derived
// per-target consensus view (AgentsReporting) from the most recent
// record each (agent, target) pair has for today, so a coordinator
// restart doesn't momentarily forget who reported what.
func (e *Engine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.load(); err != nil {
		return err
	}
	today := dateKey(e.now())
	for key, rec := range e.store.records {
		if key.Date != today {
			continue
		}
		st := e.statusLocked(key.TargetID)
		st.AgentsReporting[key.AgentID] = rec.IsDown
	}
	for _, st := range e.statuses {
		e.recomputeConsensusLocked(st)
	}
	return nil
}

func (e *Engine) statusLocked(targetID int) *model.TargetStatus {
	st, ok := e.statuses[targetID]
	if !ok {
		st = &model.TargetStatus{
			TargetID:        targetID,
			AgentsReporting: make(map[string]bool),
		}
		e.statuses[targetID] = st
	}
	return st
}

// recomputeConsensusLocked re-derives IsDown from AgentsReporting per
// spec.md §4.3: a single reporting agent is authoritative; with two or
// more, at least model.MinAgentsForDowntime must agree.
func (e *Engine) recomputeConsensusLocked(st *model.TargetStatus) {
	total := len(st.AgentsReporting)
	down := 0
	for _, isDown := range st.AgentsReporting {
		if isDown {
			down++
		}
	}
	switch {
	case total == 0:
		st.IsDown = false
	case total == 1:
		st.IsDown = down == 1
	default:
		st.IsDown = down >= model.MinAgentsForDowntime
	}
}

// Submit folds one probe observation into the engine's state. It is
// the single entry point for every result the coordinator receives,
// whether live from an agent's POST or replayed from an agent's
// backfill queue.
func (e *Engine) Submit(result model.CheckResult, targetName string) error {
	if result.TargetID == 0 {
		return storerr.BadRequest("targetId is required")
	}
	if result.AgentID == "" {
		return storerr.BadRequest("agentId is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	date := dateKey(result.Timestamp)
	key := recordKey{AgentID: result.AgentID, TargetID: result.TargetID, Date: date}
	rec, ok := e.store.records[key]
	if !ok {
		rec = &model.DailyDowntimeRecord{Date: date, State: model.StateUp}
		e.store.records[key] = rec
	}

	if result.Success && result.ResponseTimeMs != nil {
		foldResponseTime(rec, result.Timestamp, *result.ResponseTimeMs)
	}

	st := e.statusLocked(result.TargetID)
	st.AgentsReporting[result.AgentID] = !result.Success
	st.LastUpdated = e.now()
	e.recomputeConsensusLocked(st)

	e.applyStateMachine(rec, st.IsDown, result.Timestamp, result.TargetID, result.AgentID, targetName)

	if err := e.store.persist(); err != nil {
		return err
	}
	if e.onChange != nil {
		e.onChange()
	}
	return nil
}

// applyStateMachine drives the per-(agent,target,day) UP/DOWN
// transition. Late-arriving results (timestamp older than the
// currently open incident's start) still fold into their bucket and
// update consensus above, but never reopen or rewind the incident
// timeline, per spec.md §4.3's tie-break rule.
func (e *Engine) applyStateMachine(rec *model.DailyDowntimeRecord, isDown bool, at time.Time, targetID int, agentID, targetName string) {
	open := rec.OpenIncident()
	if open != nil && at.Before(open.StartTime) {
		return
	}

	switch rec.State {
	case model.StateUp:
		if isDown {
			rec.Incidents = append(rec.Incidents, model.Incident{StartTime: at})
			rec.State = model.StateDown
			rec.IsDown = true
			e.alert.Send(context.Background(),
				"target down: "+displayName(targetName, targetID), targetName, agentID)
		}
	case model.StateDown:
		if !isDown {
			if open != nil {
				end := at
				open.EndTime = &end
				rec.DowntimeMs += end.Sub(open.StartTime).Milliseconds()
			}
			rec.State = model.StateUp
			rec.IsDown = false
		}
	}
}

func displayName(name string, id int) string {
	if name != "" {
		return name
	}
	return "target"
}

// foldResponseTime updates the 30-minute bucket (aligned to local
// midnight) containing at with a new sample, using the incremental
// mean update mean <- (mean*count + r) / (count+1).
func foldResponseTime(rec *model.DailyDowntimeRecord, at time.Time, responseTimeMs float64) {
	start := bucketStart(at)
	end := start.Add(model.BucketWidth)

	for i := range rec.ResponseTimeIntervals {
		b := &rec.ResponseTimeIntervals[i]
		if b.StartTime.Equal(start) {
			b.AvgResponseTime = (b.AvgResponseTime*float64(b.Count) + responseTimeMs) / float64(b.Count+1)
			b.Count++
			return
		}
	}

	rec.ResponseTimeIntervals = append(rec.ResponseTimeIntervals, model.ResponseTimeBucket{
		StartTime:       start,
		EndTime:         end,
		Count:           1,
		AvgResponseTime: responseTimeMs,
	})
}

func bucketStart(at time.Time) time.Time {
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	offset := at.Sub(midnight)
	bucketIndex := offset / model.BucketWidth
	return midnight.Add(bucketIndex * model.BucketWidth)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// TargetStatusSnapshot returns a safe copy of the consensus view for
// one target, or false if the target has never reported.
func (e *Engine) TargetStatusSnapshot(targetID int) (model.TargetStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.statuses[targetID]
	if !ok {
		return model.TargetStatus{}, false
	}
	return model.TargetStatus{
		TargetID:        st.TargetID,
		IsDown:          st.IsDown,
		AgentsReporting: st.CloneAgentsReporting(),
		LastUpdated:     st.LastUpdated,
	}, true
}

// AllTargetStatuses returns a safe snapshot of every target's
// consensus view, keyed by target id.
func (e *Engine) AllTargetStatuses() map[int]model.TargetStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]model.TargetStatus, len(e.statuses))
	for id, st := range e.statuses {
		out[id] = model.TargetStatus{
			TargetID:        st.TargetID,
			IsDown:          st.IsDown,
			AgentsReporting: st.CloneAgentsReporting(),
			LastUpdated:     st.LastUpdated,
		}
	}
	return out
}

// Reset clears all persisted downtime/response-time data, per spec's
// documented uptime/reset operation. It leaves the registry and target
// config untouched.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.records = make(map[recordKey]*model.DailyDowntimeRecord)
	e.statuses = make(map[int]*model.TargetStatus)
	if err := e.store.persist(); err != nil {
		return err
	}
	if e.onChange != nil {
		e.onChange()
	}
	return nil
}

// Prune deletes daily records older than olderThan, an age-based
// retention policy supplementing spec.md §9's open question about
// unbounded growth of the results store.
func (e *Engine) Prune(olderThan time.Time) (removed int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := dateKey(olderThan)
	for key := range e.store.records {
		if key.Date < cutoff {
			delete(e.store.records, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := e.store.persist(); err != nil {
		return removed, err
	}
	return removed, nil
}
