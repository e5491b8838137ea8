// Package model holds the coordinator's persisted and derived domain
// types: targets, agents, daily downtime records, and the in-memory
// consensus snapshot. Kept as explicit structs with a named state
// field rather than nested maps, per the rewrite's design note:
// DailyDowntimeRecord carries its UP/DOWN state directly instead of
// being re-derived from its incident list on every read.
package model

import "time"

type TargetKind string

const (
	TargetHTTP TargetKind = "http"
	TargetICMP TargetKind = "icmp"
)

// Target is a network endpoint to be probed.
type Target struct {
	ID         int           `json:"id"`
	Name       string        `json:"name"`
	Kind       TargetKind    `json:"kind"`
	Endpoint   string        `json:"endpoint"`
	Interval   time.Duration `json:"-"`
	Timeout    time.Duration `json:"-"`
	IntervalMs int           `json:"intervalMs"`
	TimeoutMs  int           `json:"timeoutMs"`
}

// AgentStatus is an agent's liveness state.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
)

// Agent is a remote probing worker known to the coordinator.
type Agent struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Location string      `json:"location"`
	Status   AgentStatus `json:"status"`
	LastSeen time.Time   `json:"lastSeen"`
}

// CheckResult is one immutable probe observation submitted by an agent.
type CheckResult struct {
	TargetID       int
	AgentID        string
	Timestamp      time.Time
	Success        bool
	ResponseTimeMs *float64
	StatusCode     *int
	ErrorText      string
}

// Incident is a maximal interval during which an (agent, target, day)
// record was considered down. EndTime is nil while the incident is open.
type Incident struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// ResponseTimeBucket is a 30-minute aggregation window of successful
// response times, half-open [StartTime, StartTime+30min).
type ResponseTimeBucket struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	Count           int       `json:"count"`
	AvgResponseTime float64   `json:"avgResponseTime"`
}

const BucketWidth = 30 * time.Minute

// RecordState is the explicit UP/DOWN state of a DailyDowntimeRecord,
// replacing the "derive it from the incident list" idiom the source
// system uses.
type RecordState string

const (
	StateUp   RecordState = "up"
	StateDown RecordState = "down"
)

// DailyDowntimeRecord is the per-(agent, target, local day) ledger of
// downtime incidents and response-time buckets.
type DailyDowntimeRecord struct {
	Date                    string               `json:"date"`
	DowntimeMs              int64                `json:"downtimeMs"`
	Incidents               []Incident           `json:"incidents"`
	ResponseTimeIntervals    []ResponseTimeBucket `json:"responseTimeIntervals"`
	IsDown                  bool                 `json:"isDown"`
	State                   RecordState          `json:"-"`
}

// OpenIncident returns a pointer to the currently open incident, or
// nil if the record has none open. Invariant: if non-nil, it is
// always the last element of Incidents.
func (r *DailyDowntimeRecord) OpenIncident() *Incident {
	if len(r.Incidents) == 0 {
		return nil
	}
	last := &r.Incidents[len(r.Incidents)-1]
	if last.EndTime == nil {
		return last
	}
	return nil
}

// TargetStatus is the coordinator's derived consensus view of one
// target: per-agent down/up reports and the fused isDown flag.
type TargetStatus struct {
	TargetID        int
	IsDown          bool
	AgentsReporting map[string]bool // agentID -> reportedDown
	LastUpdated     time.Time
}

// CloneAgentsReporting returns a shallow copy safe to hand to callers
// outside the engine's lock.
func (s *TargetStatus) CloneAgentsReporting() map[string]bool {
	out := make(map[string]bool, len(s.AgentsReporting))
	for k, v := range s.AgentsReporting {
		out[k] = v
	}
	return out
}

// MinAgentsForDowntime is the default consensus threshold (§4.3): when
// two or more agents report on a target, at least this many must agree
// it is down before consensus flips.
const MinAgentsForDowntime = 2
