// Package server wires the coordinator's HTTP API (spec.md §6) on top
// of gorilla/mux, following the teacher's controller/internal/server
// idiom: a Config/Dependencies pair, New(cfg, deps) wrapping
// *http.Server, and one handler-factory function per route.
package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iRazvan2745/Storm/internal/coordinator/cache"
	"github.com/iRazvan2745/Storm/internal/coordinator/metrics"
	"github.com/iRazvan2745/Storm/internal/coordinator/model"
	"github.com/iRazvan2745/Storm/internal/coordinator/registry"
	"github.com/iRazvan2745/Storm/internal/coordinator/results"
	"github.com/iRazvan2745/Storm/internal/coordinator/targets"
	"github.com/iRazvan2745/Storm/internal/storerr"
	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

// Config controls HTTP server settings and the shared-secret auth key.
type Config struct {
	Addr         string
	APIKey       string
	ServerID     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Dependencies holds every collaborator the handlers need.
type Dependencies struct {
	Logger   *log.Logger
	Targets  *targets.Manager
	Registry *registry.Registry
	Engine   *results.Engine
	Cache    *cache.Cache
	Metrics  *metrics.Store
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	cfg  Config
	deps Dependencies
}

// New builds the router and wraps it in an *http.Server.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.ServerID == "" {
		cfg.ServerID = "storm-coordinator"
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Cache == nil {
		deps.Cache = cache.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewStore()
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)

	r.HandleFunc("/api/register", authRequired(cfg, registerHandler(cfg, deps))).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/heartbeat", authRequired(cfg, heartbeatHandler(deps))).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/targets", targetsHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/targets/check-updates", checkUpdatesHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/results", submitResultsHandler(deps)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/results", rawResultsHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/uptime", uptimeHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/latency", latencyHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/target-status", targetStatusHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/agents", agentsHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/targets/{id}/uptime", targetUptimeHandler(deps)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/uptime/reset", authRequired(cfg, uptimeResetHandler(deps))).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/uptime/check", authRequired(cfg, uptimeCheckHandler(deps))).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/metrics", deps.Metrics.Handler().ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{Server: srv, cfg: cfg, deps: deps}
}

// corsMiddleware implements spec.md §6's CORS requirement: wide-open
// origin plus OPTIONS preflight handling.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-api-key, x-agent-id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware stamps every request with a correlation id,
// generated with google/uuid — a dependency the teacher's go.mod
// carries but never calls directly.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// authRequired enforces the shared-secret x-api-key header for the
// four protected endpoints named in spec.md §6.
func authRequired(cfg Config, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		key := r.Header.Get("x-api-key")
		if key == "" || key != cfg.APIKey {
			writeError(w, storerr.Unauthorized("missing or invalid x-api-key"))
			return
		}
		next(w, r)
	}
}

func agentID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("x-agent-id"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, storerr.HTTPStatus(err), stormapi.ErrorResponse{
		Success: false,
		Error:   storerr.Message(err),
	})
}

func modelToWireTarget(t model.Target) stormapi.Target {
	return stormapi.Target{
		ID:         t.ID,
		Name:       t.Name,
		Kind:       stormapi.TargetKind(t.Kind),
		Endpoint:   t.Endpoint,
		IntervalMs: t.IntervalMs,
		TimeoutMs:  t.TimeoutMs,
	}
}

func parseIntQuery(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func atoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
