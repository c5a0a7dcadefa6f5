// Package sweep periodically evicts stale cache entries.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/events"
)

// Sweeper evicts entries older than maxAge and reports how many it removed.
// It is satisfied by *cache.Cache.
type Sweeper interface {
	Sweep(maxAge time.Duration) int
}

// Scheduler sweeps a cache on a fixed interval.
type Scheduler struct {
	cache     Sweeper
	maxAge    time.Duration
	interval  time.Duration
	publisher events.Publisher
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that evicts entries older than maxAge every
// interval. publisher may be nil.
func NewScheduler(c Sweeper, maxAge, interval time.Duration, publisher events.Publisher, logger *slog.Logger) *Scheduler {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cache:     c,
		maxAge:    maxAge,
		interval:  interval,
		publisher: publisher,
		logger:    logger,
	}
}

// Start begins periodic sweeping. The first sweep happens one interval after
// Start. A non-positive interval disables the scheduler.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logger.Info("sweep disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sweep (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of evicted entries.
func (s *Scheduler) SweepOnce(ctx context.Context) int {
	removed := s.cache.Sweep(s.maxAge)
	if removed == 0 {
		s.logger.Debug("sweep completed", "removed", 0)
		return 0
	}
	s.logger.Info("sweep completed", "removed", removed, "max_age", s.maxAge)
	if err := s.publisher.Publish(ctx, events.TopicCacheCleared, events.CacheCleared{
		Removed: removed,
		Reason:  "sweep",
	}); err != nil {
		s.logger.Warn("sweep: publish failed", "err", err)
	}
	return removed
}
