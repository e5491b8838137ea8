// Package targets implements the coordinator's target configuration
// manager (spec.md §4.1): loads data/config/targets.json, validates
// it, hot-reloads on file changes with a debounce window, and exposes
// programmatic get/upsert/delete that persist back to the same file.
package targets

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

// stabilityWindow is how long the watcher waits for no further writes
// before treating a burst of file-modification events as settled.
const stabilityWindow = 300 * time.Millisecond

// pollInterval is how often the watcher checks the file's mtime/size.
const pollInterval = 100 * time.Millisecond

type document struct {
	Targets []rawTarget `json:"targets"`
}

type rawTarget struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Endpoint   string `json:"endpoint"`
	IntervalMs int    `json:"intervalMs"`
	TimeoutMs  int    `json:"timeoutMs"`
}

// Manager owns the authoritative in-memory target set and the file it
// is sourced from.
type Manager struct {
	path   string
	logger *log.Logger
	now    func() time.Time

	mu          sync.RWMutex
	targets     map[int]model.Target
	order       []int
	lastUpdated time.Time
}

func New(path string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stdout, "storm-coordinator ", log.LstdFlags|log.LUTC)
	}
	return &Manager{
		path:    path,
		logger:  logger,
		now:     time.Now,
		targets: make(map[int]model.Target),
	}
}

// WithClock overrides the manager's clock for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Load performs the initial read. A missing or malformed file is
// tolerated: it logs a warning and leaves the in-memory set empty,
// per spec.md §4.1 ("a failed reload is logged and leaves the
// previous set in place").
func (m *Manager) Load() error {
	if err := m.reload(); err != nil {
		m.logger.Printf("warning: initial target load failed: %v", err)
	}
	return nil
}

func (m *Manager) reload() error {
	var doc document
	if err := storage.ReadJSON(m.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return storerr.IOFailure(err, "targets file %q does not exist", m.path)
		}
		return storerr.ValidationFailure("targets file %q: %v", m.path, err)
	}

	parsed := make(map[int]model.Target, len(doc.Targets))
	order := make([]int, 0, len(doc.Targets))
	for _, rt := range doc.Targets {
		t, err := validate(rt)
		if err != nil {
			return storerr.ValidationFailure("target id=%d invalid: %v", rt.ID, err)
		}
		if _, dup := parsed[t.ID]; dup {
			return storerr.ValidationFailure("duplicate target id=%d", t.ID)
		}
		parsed[t.ID] = t
		order = append(order, t.ID)
	}

	m.mu.Lock()
	m.targets = parsed
	m.order = order
	m.lastUpdated = m.now()
	m.mu.Unlock()
	return nil
}

func validate(rt rawTarget) (model.Target, error) {
	var t model.Target
	if rt.ID == 0 {
		return t, fmt.Errorf("id is required")
	}
	if rt.Name == "" {
		return t, fmt.Errorf("name is required")
	}
	kind := model.TargetKind(rt.Kind)
	switch kind {
	case model.TargetHTTP:
		if rt.Endpoint == "" {
			return t, fmt.Errorf("http target requires endpoint (url)")
		}
	case model.TargetICMP:
		if rt.Endpoint == "" {
			return t, fmt.Errorf("icmp target requires endpoint (host)")
		}
	default:
		return t, fmt.Errorf("unknown kind %q", rt.Kind)
	}
	if rt.IntervalMs <= 0 {
		return t, fmt.Errorf("intervalMs must be > 0")
	}
	if rt.TimeoutMs <= 0 {
		return t, fmt.Errorf("timeoutMs must be > 0")
	}
	if rt.TimeoutMs > rt.IntervalMs {
		return t, fmt.Errorf("timeoutMs must be <= intervalMs")
	}
	t = model.Target{
		ID:         rt.ID,
		Name:       rt.Name,
		Kind:       kind,
		Endpoint:   rt.Endpoint,
		IntervalMs: rt.IntervalMs,
		TimeoutMs:  rt.TimeoutMs,
		Interval:   time.Duration(rt.IntervalMs) * time.Millisecond,
		Timeout:    time.Duration(rt.TimeoutMs) * time.Millisecond,
	}
	return t, nil
}

// List returns a snapshot of the current target set and its version.
func (m *Manager) List() ([]model.Target, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Target, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.targets[id])
	}
	return out, m.lastUpdated
}

// HasChangesSince reports whether the target set has changed since
// clientVersion.
func (m *Manager) HasChangesSince(clientVersion time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdated.After(clientVersion)
}

// Version returns the current TargetSetVersion.
func (m *Manager) Version() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdated
}

func (m *Manager) Get(id int) (model.Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	return t, ok
}

// Upsert adds or replaces a target and persists the change back to
// the config file atomically.
func (m *Manager) Upsert(t model.Target) error {
	if t.ID == 0 {
		return storerr.BadRequest("target id is required")
	}
	if t.IntervalMs <= 0 || t.TimeoutMs <= 0 || t.TimeoutMs > t.IntervalMs {
		return storerr.BadRequest("invalid interval/timeout for target %d", t.ID)
	}
	t.Interval = time.Duration(t.IntervalMs) * time.Millisecond
	t.Timeout = time.Duration(t.TimeoutMs) * time.Millisecond

	m.mu.Lock()
	if _, exists := m.targets[t.ID]; !exists {
		m.order = append(m.order, t.ID)
	}
	m.targets[t.ID] = t
	m.lastUpdated = m.now()
	err := m.persistLocked()
	m.mu.Unlock()
	return err
}

// Delete removes a target and persists the change.
func (m *Manager) Delete(id int) error {
	m.mu.Lock()
	if _, exists := m.targets[id]; !exists {
		m.mu.Unlock()
		return storerr.NotFound("target id=%d not found", id)
	}
	delete(m.targets, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.lastUpdated = m.now()
	err := m.persistLocked()
	m.mu.Unlock()
	return err
}

// persistLocked writes the current set to disk. Caller must hold m.mu.
func (m *Manager) persistLocked() error {
	doc := document{Targets: make([]rawTarget, 0, len(m.order))}
	for _, id := range m.order {
		t := m.targets[id]
		doc.Targets = append(doc.Targets, rawTarget{
			ID:         t.ID,
			Name:       t.Name,
			Kind:       string(t.Kind),
			Endpoint:   t.Endpoint,
			IntervalMs: t.IntervalMs,
			TimeoutMs:  t.TimeoutMs,
		})
	}
	if err := storage.WriteJSONAtomic(m.path, doc); err != nil {
		return storerr.IOFailure(err, "persist targets file %q", m.path)
	}
	return nil
}

// Watch polls the file's mtime/size and debounces bursts of
// modification into a single reload after stabilityWindow has passed
// with no further change, per spec.md §4.1 and §9's design note about
// collapsing editor-save bursts into one reload. Blocks until ctx is
// cancelled.
func (m *Manager) Watch(ctx context.Context) {
	var (
		lastStat    storage.Stat
		pendingSince time.Time
		havePending bool
	)

	lastStat, _ = storage.StatFile(m.path)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := storage.StatFile(m.path)
			if err != nil {
				if !os.IsNotExist(err) {
					m.logger.Printf("warning: target file watch stat failed: %v", err)
				}
				continue
			}
			if st != lastStat {
				lastStat = st
				pendingSince = time.Now()
				havePending = true
				continue
			}
			if havePending && time.Since(pendingSince) >= stabilityWindow {
				havePending = false
				if err := m.reload(); err != nil {
					m.logger.Printf("warning: target reload failed: %v", err)
				} else {
					m.logger.Printf("targets reloaded from %s", m.path)
				}
			}
		}
	}
}
