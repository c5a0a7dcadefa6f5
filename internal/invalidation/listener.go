// Package invalidation drops cached graphs when their stored trees change.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/navgraph/internal/events"
)

// Invalidator removes cache entries. An empty tenantID removes the tree for
// every tenant. It is satisfied by *cache.Cache.
type Invalidator interface {
	Invalidate(treeID, tenantID string) (int, error)
}

// Reasons attached to published invalidation events.
const (
	ReasonTreeUpdated = "tree updated"
	ReasonTreeDeleted = "tree deleted"
)

// Listener consumes tree change events and invalidates the matching cache
// entries. It never repopulates; the next request loads the new tree.
type Listener struct {
	cache     Invalidator
	publisher events.Publisher
	logger    *slog.Logger
}

// NewListener creates a Listener. publisher may be nil.
func NewListener(c Invalidator, publisher events.Publisher, logger *slog.Logger) *Listener {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{cache: c, publisher: publisher, logger: logger}
}

// Handle invalidates the entries named by ev and returns how many were removed.
func (l *Listener) Handle(ctx context.Context, reason string, ev events.TreeChanged) (int, error) {
	removed, err := l.cache.Invalidate(ev.TreeID, ev.TenantID)
	if err != nil {
		return 0, fmt.Errorf("invalidate %q: %w", ev.TreeID, err)
	}
	l.logger.Info("invalidation: cache entries dropped",
		"tree", ev.TreeID, "tenant", ev.TenantID, "removed", removed, "reason", reason)
	if removed > 0 {
		if err := l.publisher.Publish(ctx, events.TopicCacheInvalidated, events.CacheInvalidated{
			TreeID:   ev.TreeID,
			TenantID: ev.TenantID,
			Removed:  removed,
			Reason:   reason,
		}); err != nil {
			l.logger.Warn("invalidation: publish failed", "err", err)
		}
	}
	return removed, nil
}

// Start listens for tree update and delete events on sub. It blocks until ctx
// is cancelled or a subscription channel closes.
func (l *Listener) Start(ctx context.Context, sub events.Subscriber) error {
	updated, cancelUpdated, err := sub.Subscribe(events.TopicTreeUpdated)
	if err != nil {
		return fmt.Errorf("invalidation: subscribe: %w", err)
	}
	defer cancelUpdated()
	deleted, cancelDeleted, err := sub.Subscribe(events.TopicTreeDeleted)
	if err != nil {
		return fmt.Errorf("invalidation: subscribe: %w", err)
	}
	defer cancelDeleted()

	l.logger.Info("invalidation: subscriber started")

	for {
		var (
			raw    []byte
			ok     bool
			reason string
		)
		select {
		case <-ctx.Done():
			l.logger.Info("invalidation: subscriber stopping")
			return nil
		case raw, ok = <-updated:
			reason = ReasonTreeUpdated
		case raw, ok = <-deleted:
			reason = ReasonTreeDeleted
		}
		if !ok {
			l.logger.Info("invalidation: subscription channel closed")
			return nil
		}

		var ev events.TreeChanged
		if err := json.Unmarshal(raw, &ev); err != nil {
			l.logger.Warn("invalidation: bad event payload", "err", err)
			continue
		}
		if _, err := l.Handle(ctx, reason, ev); err != nil {
			l.logger.Warn("invalidation: " + err.Error())
		}
	}
}
