package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// Published topics
const (
	TopicCachePopulated   = "navgraph.cache.populated"
	TopicCacheInvalidated = "navgraph.cache.invalidated"
	TopicCacheCleared     = "navgraph.cache.cleared"

	TopicRunCompleted  = "navgraph.run.completed"
	TopicStepCompleted = "navgraph.step.completed"
)

// Consumed topics. Tree authoring systems emit these when a stored tree
// changes; TopicTreeAll matches both.
const (
	TopicTreeUpdated = "navgraph.tree.updated"
	TopicTreeDeleted = "navgraph.tree.deleted"
	TopicTreeAll     = "navgraph.tree.>"
)

// Cache events

type CachePopulated struct {
	TreeID    string    `json:"tree_id"`
	TenantID  string    `json:"tenant_id"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	Warnings  int       `json:"warnings"`
	CachedAt  time.Time `json:"cached_at"`
}

type CacheInvalidated struct {
	TreeID   string `json:"tree_id"`
	TenantID string `json:"tenant_id,omitempty"` // empty when every tenant was dropped
	Removed  int    `json:"removed"`
	Reason   string `json:"reason"`
}

type CacheCleared struct {
	Removed int    `json:"removed"`
	Reason  string `json:"reason"` // "clear" or "sweep"
}

// Run events

type RunCompleted struct {
	RunID     string           `json:"run_id"`
	TreeID    string           `json:"tree_id"`
	TenantID  string           `json:"tenant_id"`
	Summary   model.RunSummary `json:"summary"`
	ReportKey string           `json:"report_key,omitempty"`
}

type StepCompleted struct {
	RunID        string           `json:"run_id"`
	TreeID       string           `json:"tree_id"`
	TenantID     string           `json:"tenant_id"`
	StepNumber   int              `json:"step_number"`
	FromNodeID   string           `json:"from_node_id"`
	ToNodeID     string           `json:"to_node_id"`
	State        model.StepState  `json:"state"`
	SkipReason   model.SkipReason `json:"skip_reason,omitempty"`
	Retried      bool             `json:"retried,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// TreeChanged is the payload of TopicTreeUpdated and TopicTreeDeleted.
// An empty TenantID addresses every tenant of the tree.
type TreeChanged struct {
	TreeID   string `json:"tree_id"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
