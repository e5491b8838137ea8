// Package metrics exposes the coordinator's /metrics endpoint in
// Prometheus text format. Grounded on the teacher's
// agent/internal/metrics.Store.WritePrometheus: a small set of atomic
// counters/gauges snapshotted and rendered as plain text, no external
// client library.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Store maintains in-memory gauges and counters for coordinator
// telemetry.
type Store struct {
	startedAt time.Time

	resultsReceived   atomic.Uint64
	resultsRejected   atomic.Uint64
	agentsRegistered  atomic.Uint64
	heartbeats        atomic.Uint64
	targetReloads     atomic.Uint64
	targetReloadFails atomic.Uint64
	alertsSent        atomic.Uint64
}

func NewStore() *Store {
	return &Store{startedAt: time.Now()}
}

func (s *Store) IncResultsReceived() { s.resultsReceived.Add(1) }
func (s *Store) IncResultsRejected() { s.resultsRejected.Add(1) }
func (s *Store) IncAgentsRegistered() { s.agentsRegistered.Add(1) }
func (s *Store) IncHeartbeats()      { s.heartbeats.Add(1) }
func (s *Store) IncTargetReloads()   { s.targetReloads.Add(1) }
func (s *Store) IncTargetReloadFails() { s.targetReloadFails.Add(1) }
func (s *Store) IncAlertsSent()      { s.alertsSent.Add(1) }

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	UptimeSeconds     float64
	ResultsReceived   uint64
	ResultsRejected   uint64
	AgentsRegistered  uint64
	Heartbeats        uint64
	TargetReloads     uint64
	TargetReloadFails uint64
	AlertsSent        uint64
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds:     time.Since(s.startedAt).Seconds(),
		ResultsReceived:   s.resultsReceived.Load(),
		ResultsRejected:   s.resultsRejected.Load(),
		AgentsRegistered:  s.agentsRegistered.Load(),
		Heartbeats:        s.heartbeats.Load(),
		TargetReloads:     s.targetReloads.Load(),
		TargetReloadFails: s.targetReloadFails.Load(),
		AlertsSent:        s.alertsSent.Load(),
	}
}

// WritePrometheus renders the current metrics using the Prometheus
// text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	lines := []string{
		"# HELP storm_coordinator_uptime_seconds Seconds since the coordinator process started.",
		"# TYPE storm_coordinator_uptime_seconds gauge",
		fmt.Sprintf("storm_coordinator_uptime_seconds %f", snap.UptimeSeconds),
		"# HELP storm_coordinator_results_received_total Total check results accepted from agents.",
		"# TYPE storm_coordinator_results_received_total counter",
		fmt.Sprintf("storm_coordinator_results_received_total %d", snap.ResultsReceived),
		"# HELP storm_coordinator_results_rejected_total Total check results rejected (validation or unknown agent).",
		"# TYPE storm_coordinator_results_rejected_total counter",
		fmt.Sprintf("storm_coordinator_results_rejected_total %d", snap.ResultsRejected),
		"# HELP storm_coordinator_agents_registered_total Total agent registrations handled (including re-registrations).",
		"# TYPE storm_coordinator_agents_registered_total counter",
		fmt.Sprintf("storm_coordinator_agents_registered_total %d", snap.AgentsRegistered),
		"# HELP storm_coordinator_heartbeats_total Total heartbeats accepted.",
		"# TYPE storm_coordinator_heartbeats_total counter",
		fmt.Sprintf("storm_coordinator_heartbeats_total %d", snap.Heartbeats),
		"# HELP storm_coordinator_target_reloads_total Total successful target config reloads.",
		"# TYPE storm_coordinator_target_reloads_total counter",
		fmt.Sprintf("storm_coordinator_target_reloads_total %d", snap.TargetReloads),
		"# HELP storm_coordinator_target_reload_failures_total Total failed target config reloads.",
		"# TYPE storm_coordinator_target_reload_failures_total counter",
		fmt.Sprintf("storm_coordinator_target_reload_failures_total %d", snap.TargetReloadFails),
		"# HELP storm_coordinator_alerts_sent_total Total alert webhook deliveries attempted.",
		"# TYPE storm_coordinator_alerts_sent_total counter",
		fmt.Sprintf("storm_coordinator_alerts_sent_total %d", snap.AlertsSent),
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns an http.Handler serving the current snapshot as
// Prometheus text.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if err := s.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
