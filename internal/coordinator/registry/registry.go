// Package registry implements the coordinator's agent registry
// (spec.md §4.2): registration/reclaim by name, heartbeat-driven
// liveness, and the 30s sweep that is the only online->offline
// transition.
package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/iRazvan2745/Storm/internal/coordinator/model"
	"github.com/iRazvan2745/Storm/internal/coordinator/storage"
	"github.com/iRazvan2745/Storm/internal/storerr"
)

// OfflineThreshold is the max allowed gap since last-seen before the
// liveness sweep marks an agent offline.
const OfflineThreshold = 120 * time.Second

// SweepInterval is how often the liveness sweep runs.
const SweepInterval = 30 * time.Second

type document struct {
	Agents []model.Agent `json:"agents"`
	NextID int           `json:"nextId"`
}

// Registry is the in-memory agent directory, persisted to path.
type Registry struct {
	path   string
	logger *log.Logger
	now    func() time.Time

	mu        sync.RWMutex
	byID      map[string]model.Agent
	byName    map[string]string // name -> id
	nextID    int
}

func New(path string, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stdout, "storm-coordinator ", log.LstdFlags|log.LUTC)
	}
	return &Registry{
		path:   path,
		logger: logger,
		now:    time.Now,
		byID:   make(map[string]model.Agent),
		byName: make(map[string]string),
		nextID: 1,
	}
}

func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Load reads the persisted registry. Every agent is reset to offline
// on load, per spec.md §3: "On coordinator startup every persisted
// agent is reset to offline until it reheartbeats."
func (r *Registry) Load() error {
	var doc document
	if err := storage.ReadJSON(r.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storerr.IOFailure(err, "read agent registry %q", r.path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range doc.Agents {
		a.Status = model.AgentOffline
		r.byID[a.ID] = a
		r.byName[a.Name] = a.ID
	}
	if doc.NextID > r.nextID {
		r.nextID = doc.NextID
	}
	return nil
}

// Register reclaims the id for an existing name, or mints a new one.
// Returns the agent id.
func (r *Registry) Register(name, location string) (string, error) {
	if name == "" {
		return "", storerr.BadRequest("name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.byName[name]
	if !exists {
		id = fmt.Sprintf("agent-%d", r.nextID)
		r.nextID++
		r.byName[name] = id
	}

	r.byID[id] = model.Agent{
		ID:       id,
		Name:     name,
		Location: location,
		Status:   model.AgentOnline,
		LastSeen: r.now(),
	}

	if err := r.persistLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// Heartbeat refreshes liveness for an already-registered agent id.
func (r *Registry) Heartbeat(id string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return time.Time{}, storerr.UnknownAgent("unknown agent id %q", id)
	}
	a.Status = model.AgentOnline
	a.LastSeen = r.now()
	r.byID[id] = a

	if err := r.persistLocked(); err != nil {
		return time.Time{}, err
	}
	return a.LastSeen, nil
}

// Exists reports whether an agent with the given id is registered.
// It does not change the agent's status or lastSeen.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// List returns a snapshot of all known agents.
func (r *Registry) List() []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Agent, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	return out
}

// Sweep marks any agent whose last-seen exceeds OfflineThreshold as
// offline. This is the only online->offline transition (spec.md §4.2).
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	changed := false
	for id, a := range r.byID {
		if a.Status == model.AgentOnline && now.Sub(a.LastSeen) > OfflineThreshold {
			a.Status = model.AgentOffline
			r.byID[id] = a
			changed = true
		}
	}
	if changed {
		if err := r.persistLocked(); err != nil {
			r.logger.Printf("warning: persist agent registry after sweep failed: %v", err)
		}
	}
}

// Run blocks, sweeping every SweepInterval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) persistLocked() error {
	doc := document{NextID: r.nextID}
	for _, a := range r.byID {
		doc.Agents = append(doc.Agents, a)
	}
	if err := storage.WriteJSONAtomic(r.path, doc); err != nil {
		return storerr.IOFailure(err, "persist agent registry %q", r.path)
	}
	return nil
}
