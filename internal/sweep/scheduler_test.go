package sweep

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/events"
	"github.com/alfredjeanlab/navgraph/internal/model"
)

// mockSweeper counts Sweep calls and returns a fixed removal count.
type mockSweeper struct {
	calls   atomic.Int64
	removed int
	maxAge  atomic.Int64
}

func (m *mockSweeper) Sweep(maxAge time.Duration) int {
	m.calls.Add(1)
	m.maxAge.Store(int64(maxAge))
	return m.removed
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.CacheCleared
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(events.CacheCleared))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	m := &mockSweeper{removed: 1}
	pub := &recordingPublisher{}
	sched := NewScheduler(m, time.Hour, 20*time.Millisecond, pub, quietLogger())
	sched.Start()

	time.Sleep(110 * time.Millisecond)
	sched.Stop()

	if calls := m.calls.Load(); calls < 2 {
		t.Fatalf("expected at least 2 sweeps, got %d", calls)
	}
	if got := time.Duration(m.maxAge.Load()); got != time.Hour {
		t.Errorf("maxAge = %s, want 1h", got)
	}

	// No more sweeps after Stop.
	after := m.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if m.calls.Load() != after {
		t.Error("sweeps continued after Stop")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) == 0 || pub.events[0].Reason != "sweep" {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestSchedulerDisabled(t *testing.T) {
	m := &mockSweeper{}
	sched := NewScheduler(m, time.Hour, 0, nil, quietLogger())
	sched.Start()
	time.Sleep(20 * time.Millisecond)
	sched.Stop()
	if m.calls.Load() != 0 {
		t.Errorf("disabled scheduler swept %d times", m.calls.Load())
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(&mockSweeper{}, time.Hour, time.Minute, nil, quietLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSweepOnce_NothingRemovedPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	sched := NewScheduler(&mockSweeper{}, time.Hour, time.Minute, pub, quietLogger())
	if n := sched.SweepOnce(context.Background()); n != 0 {
		t.Errorf("SweepOnce = %d", n)
	}
	if len(pub.events) != 0 {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestSweepOnce_RealCache(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	c := cache.New(cache.WithClock(func() time.Time { return clock }))
	nodes := []model.NodeRecord{{ID: "home", IsEntryPoint: true}}
	if _, err := c.Populate("old", "acme", nodes, nil); err != nil {
		t.Fatal(err)
	}
	clock = now.Add(2 * time.Hour)
	if _, err := c.Populate("fresh", "acme", nodes, nil); err != nil {
		t.Fatal(err)
	}

	sched := NewScheduler(c, time.Hour, time.Minute, nil, quietLogger())
	if n := sched.SweepOnce(context.Background()); n != 1 {
		t.Fatalf("SweepOnce = %d, want 1", n)
	}
	if _, err := c.Get("fresh", "acme"); err != nil {
		t.Errorf("fresh entry evicted: %v", err)
	}
}
