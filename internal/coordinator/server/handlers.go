package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/iRazvan2745/Storm/internal/coordinator/model"
	"github.com/iRazvan2745/Storm/internal/coordinator/results"
	"github.com/iRazvan2745/Storm/internal/storerr"
	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

func registerHandler(cfg Config, deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stormapi.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, storerr.BadRequest("invalid json body"))
			return
		}

		id, err := deps.Registry.Register(req.Name, req.Location)
		if err != nil {
			deps.Logger.Printf("register failed for name=%q: %v", req.Name, err)
			writeError(w, err)
			return
		}
		deps.Metrics.IncAgentsRegistered()
		writeJSON(w, http.StatusOK, stormapi.RegisterResponse{
			Success:  true,
			AgentID:  id,
			ServerID: cfg.ServerID,
		})
	}
}

func heartbeatHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := agentID(r)
		if id == "" {
			writeError(w, storerr.BadRequest("missing x-agent-id header"))
			return
		}
		ts, err := deps.Registry.Heartbeat(id)
		if err != nil {
			writeError(w, err)
			return
		}
		deps.Metrics.IncHeartbeats()
		writeJSON(w, http.StatusOK, stormapi.HeartbeatResponse{Success: true, Timestamp: ts})
	}
}

func targetsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, lastUpdated := deps.Targets.List()
		out := make([]stormapi.Target, 0, len(list))
		for _, t := range list {
			out = append(out, modelToWireTarget(t))
		}
		writeJSON(w, http.StatusOK, stormapi.TargetsResponse{
			Success:     true,
			Targets:     out,
			LastUpdated: lastUpdated,
		})
	}
}

func checkUpdatesHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("lastChecked")
		var clientVersion time.Time
		if raw != "" {
			if ms, err := parseUnixMillis(raw); err == nil {
				clientVersion = ms
			}
		}
		hasUpdates := deps.Targets.HasChangesSince(clientVersion)
		writeJSON(w, http.StatusOK, stormapi.CheckUpdatesResponse{
			Success:     true,
			HasUpdates:  hasUpdates,
			LastUpdated: deps.Targets.Version(),
		})
	}
}

func parseUnixMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func submitResultsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stormapi.SubmitResultsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, storerr.BadRequest("invalid json body"))
			return
		}

		for _, wr := range req.Results {
			if !deps.Registry.Exists(wr.AgentID) {
				deps.Metrics.IncResultsRejected()
				writeError(w, storerr.UnknownAgent("unknown agent id %q", wr.AgentID))
				return
			}
			cr := model.CheckResult{
				TargetID:       wr.TargetID,
				AgentID:        wr.AgentID,
				Timestamp:      wr.Timestamp,
				Success:        wr.Success,
				ResponseTimeMs: wr.ResponseTimeMs,
				StatusCode:     wr.StatusCode,
				ErrorText:      wr.ErrorText,
			}
			targetName := ""
			if t, ok := deps.Targets.Get(wr.TargetID); ok {
				targetName = t.Name
			}
			if err := deps.Engine.Submit(cr, targetName); err != nil {
				deps.Metrics.IncResultsRejected()
				deps.Logger.Printf("submit result failed for agent=%s target=%d: %v", wr.AgentID, wr.TargetID, err)
				writeError(w, err)
				return
			}
			deps.Metrics.IncResultsReceived()
		}

		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
		}{true})
	}
}

func rawResultsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := r.URL.Query().Get("agentId")
		targetID := parseIntQuery(r, "targetId")
		date := r.URL.Query().Get("date")

		records := deps.Engine.FilteredRecords(agent, targetID, date)
		writeJSON(w, http.StatusOK, struct {
			Success bool                    `json:"success"`
			Results []results.DailySummary  `json:"results"`
		}{Success: true, Results: records})
	}
}

func uptimeHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		targetFilter := parseIntQuery(r, "targetId")

		cacheKey := "uptime:" + date + ":" + itoa(targetFilter)
		v, err := deps.Cache.GetOrCompute(cacheKey, func() (any, error) {
			return computeUptimeResponse(deps, date, targetFilter), nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func computeUptimeResponse(deps Dependencies, date string, targetFilter int) stormapi.UptimeResponse {
	now := time.Now()
	list, _ := deps.Targets.List()
	results := make(map[string]stormapi.UptimeTargetResult)
	for _, t := range list {
		if targetFilter != 0 && t.ID != targetFilter {
			continue
		}
		agg := deps.Engine.DayAggregateFor(t.ID, date, now)
		st, _ := deps.Engine.TargetStatusSnapshot(t.ID)
		results[itoa(t.ID)] = stormapi.UptimeTargetResult{
			IsDown:           st.IsDown,
			DowntimeMs:       agg.DowntimeMs,
			UptimePercentage: agg.UptimePercentage,
			AvgResponseTime:  agg.AvgResponseTimeMs,
			AgentReports:     st.AgentsReporting,
		}
	}
	return stormapi.UptimeResponse{Success: true, Results: results, Date: date}
}

func latencyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		targetFilter := parseIntQuery(r, "targetId")

		cacheKey := "latency:" + date + ":" + itoa(targetFilter)
		v, err := deps.Cache.GetOrCompute(cacheKey, func() (any, error) {
			return computeLatencyResponse(deps, date, targetFilter), nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func computeLatencyResponse(deps Dependencies, date string, targetFilter int) stormapi.LatencyResponse {
	list, _ := deps.Targets.List()
	out := make(map[string][]stormapi.LatencyPoint)
	for _, t := range list {
		if targetFilter != 0 && t.ID != targetFilter {
			continue
		}
		buckets := deps.Engine.ResponseTimeAverages(t.ID, date)
		points := make([]stormapi.LatencyPoint, 0, len(buckets))
		for _, b := range buckets {
			points = append(points, stormapi.LatencyPoint{Timestamp: b.StartTime, Value: b.AvgResponseTime})
		}
		out[itoa(t.ID)] = points
	}
	return stormapi.LatencyResponse{Success: true, LatencyData: out}
}

func targetStatusHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cacheKey := "target-status"
		v, err := deps.Cache.GetOrCompute(cacheKey, func() (any, error) {
			return computeTargetStatusResponse(deps), nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func computeTargetStatusResponse(deps Dependencies) stormapi.TargetStatusResponse {
	statuses := deps.Engine.AllTargetStatuses()
	list := make([]stormapi.TargetStatusSummary, 0, len(statuses))
	up, down := 0, 0
	for id, st := range statuses {
		list = append(list, stormapi.TargetStatusSummary{
			TargetID:        id,
			IsDown:          st.IsDown,
			AgentsReporting: st.AgentsReporting,
			LastUpdated:     st.LastUpdated,
		})
		if st.IsDown {
			down++
		} else {
			up++
		}
	}
	return stormapi.TargetStatusResponse{
		Success:       true,
		CurrentStatus: list,
		Summary: stormapi.TargetStatusSummaryCounts{
			Total: len(list),
			Up:    up,
			Down:  down,
		},
	}
}

func agentsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Registry.List()
		out := make([]stormapi.AgentSummary, 0, len(list))
		for _, a := range list {
			out = append(out, stormapi.AgentSummary{
				ID:       a.ID,
				Name:     a.Name,
				Location: a.Location,
				Status:   string(a.Status),
				LastSeen: a.LastSeen,
			})
		}
		writeJSON(w, http.StatusOK, stormapi.AgentsResponse{Success: true, Agents: out})
	}
}

func targetUptimeHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idRaw := mux.Vars(r)["id"]
		id := atoiOrZero(idRaw)
		if id == 0 {
			writeError(w, storerr.BadRequest("invalid target id %q", idRaw))
			return
		}
		if _, ok := deps.Targets.Get(id); !ok {
			writeError(w, storerr.NotFound("target id=%d not found", id))
			return
		}

		windows := deps.Engine.TargetUptimeWindows(id, time.Now())
		writeJSON(w, http.StatusOK, stormapi.TargetUptimeResponse{
			Success: true,
			Uptime: stormapi.UptimeWindows{
				Day:   roundPct(windows.Day.Uptime),
				Week:  roundPct(windows.Week.Uptime),
				Month: roundPct(windows.Month.Uptime),
				Year:  roundPct(windows.Year.Uptime),
			},
		})
	}
}

func roundPct(fraction float64) float64 {
	pct := fraction * 100
	return float64(int64(pct*100+0.5)) / 100
}

func uptimeResetHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Engine.Reset(); err != nil {
			writeError(w, err)
			return
		}
		deps.Cache.Invalidate()
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
		}{true})
	}
}

func uptimeCheckHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Cache.Invalidate()
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
		}{true})
	}
}
