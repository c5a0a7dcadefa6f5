// Package client provides a transport-agnostic interface for the navgraph
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/plan"
	"github.com/alfredjeanlab/navgraph/internal/runs"
	"github.com/alfredjeanlab/navgraph/internal/store"
)

// NavClient is the interface the navgraph CLI uses to talk to a server.
type NavClient interface {
	// Cache
	LoadTree(ctx context.Context, treeID, tenantID string) (*CacheEntry, error)
	PopulateTree(ctx context.Context, t *model.Tree) (*CacheEntry, error)
	InvalidateTree(ctx context.Context, treeID, tenantID string) (int, error)
	SweepCache(ctx context.Context, maxAge time.Duration) (int, error)
	ClearCache(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (*cache.Stats, error)

	// Planning and validation
	Plan(ctx context.Context, treeID, tenantID, entry string) (*PlanResult, error)
	Validate(ctx context.Context, treeID, tenantID, entry string) (*ValidateResult, error)

	// Stored trees
	ListTrees(ctx context.Context, tenantID string) ([]store.TreeRef, error)
	SaveTree(ctx context.Context, t *model.Tree) error
	DeleteTree(ctx context.Context, treeID, tenantID string) error

	// Runs
	ListRuns(ctx context.Context) ([]runs.Entry, error)
	GetRun(ctx context.Context, runID string) (*runs.Entry, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// CacheEntry describes a populated cache entry.
type CacheEntry struct {
	TreeID    string          `json:"tree_id"`
	TenantID  string          `json:"tenant_id"`
	NodeCount int             `json:"node_count"`
	EdgeCount int             `json:"edge_count"`
	Warnings  []model.Warning `json:"warnings,omitempty"`
	CachedAt  time.Time       `json:"cached_at"`
}

// PlanResult is a validation plan for one (tree, tenant) pair.
type PlanResult struct {
	TreeID   string `json:"tree_id"`
	TenantID string `json:"tenant_id"`
	plan.Plan
}

// ValidateResult is a finished run's report and where it was stored.
type ValidateResult struct {
	model.Report
	ReportKey string `json:"report_key,omitempty"`
}
