// Package runs tracks in-flight and recently finished validation runs.
//
// The server records every step result as it happens, so GET /v1/runs can
// show progress while a run is still executing. A background reaper evicts
// finished runs after a retention period; running entries are never evicted.
package runs

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// State is the lifecycle state of a tracked run.
type State string

const (
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// Entry is a snapshot of one run's progress.
type Entry struct {
	RunID       string       `json:"run_id"`
	TreeID      string       `json:"tree_id"`
	TenantID    string       `json:"tenant_id"`
	EntryNodeID string       `json:"entry_node_id"`
	State       State        `json:"state"`
	TotalSteps  int          `json:"total_steps"`
	Completed   int          `json:"completed"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	LastStep    int          `json:"last_step,omitempty"`
	Health      model.Health `json:"health,omitempty"` // set once finished
	StartedAt   time.Time    `json:"started_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// Tracker maintains an in-memory table of runs.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*Entry
	now  func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{runs: make(map[string]*Entry), now: time.Now}
}

// Begin registers a new running run.
func (t *Tracker) Begin(runID, treeID, tenantID, entryNodeID string, totalSteps int) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[runID] = &Entry{
		RunID:       runID,
		TreeID:      treeID,
		TenantID:    tenantID,
		EntryNodeID: entryNodeID,
		State:       StateRunning,
		TotalSteps:  totalSteps,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Record folds a terminal step result into the run's counters. Unknown runs
// are ignored.
func (t *Tracker) Record(runID string, r model.ValidationResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runs[runID]
	if !ok || e.State != StateRunning {
		return
	}
	e.Completed++
	e.LastStep = r.StepNumber
	switch r.State {
	case model.StatePassed:
		e.Passed++
	case model.StateFailed:
		e.Failed++
	case model.StateSkipped:
		e.Skipped++
	}
	e.UpdatedAt = t.now()
}

// Finish marks the run finished with its final health.
func (t *Tracker) Finish(runID string, summary model.RunSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runs[runID]
	if !ok {
		return
	}
	now := t.now()
	e.State = StateFinished
	e.Health = summary.OverallHealth
	e.UpdatedAt = now
	e.FinishedAt = &now
}

// Get returns a snapshot of one run.
func (t *Tracker) Get(runID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.runs[runID]
	if !ok {
		return Entry{}, false
	}
	return snapshot(e), true
}

// List returns every tracked run, most recently started first.
func (t *Tracker) List() []Entry {
	t.mu.RLock()
	entries := make([]Entry, 0, len(t.runs))
	for _, e := range t.runs {
		entries = append(entries, snapshot(e))
	}
	t.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].StartedAt.Equal(entries[j].StartedAt) {
			return entries[i].StartedAt.After(entries[j].StartedAt)
		}
		return entries[i].RunID < entries[j].RunID
	})
	return entries
}

func snapshot(e *Entry) Entry {
	cp := *e
	if e.FinishedAt != nil {
		ft := *e.FinishedAt
		cp.FinishedAt = &ft
	}
	return cp
}

// Evict removes runs that finished more than retention ago and returns how
// many were removed.
func (t *Tracker) Evict(retention time.Duration) int {
	cutoff := t.now().Add(-retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, e := range t.runs {
		if e.FinishedAt != nil && e.FinishedAt.Before(cutoff) {
			delete(t.runs, id)
			removed++
		}
	}
	return removed
}

// StartReaper launches a background goroutine that evicts finished runs older
// than retention every interval. Call Stop() to shut it down.
func (t *Tracker) StartReaper(retention, interval time.Duration) {
	if retention <= 0 {
		retention = time.Hour
	}
	if interval <= 0 {
		interval = time.Minute
	}
	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go func() {
		defer close(t.reaperDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.reaperStop:
				return
			case <-ticker.C:
				if n := t.Evict(retention); n > 0 {
					slog.Debug("runs: evicted finished runs", "count", n)
				}
			}
		}
	}()
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}
