package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// ErrTreeNotFound is returned when no tree exists for a (tree, tenant) pair.
var ErrTreeNotFound = errors.New("tree not found")

// TreeSource supplies authored navigation trees. It is consulted only when a
// cache entry is populated.
type TreeSource interface {
	LoadTree(ctx context.Context, treeID, tenantID string) (*model.Tree, error)
}

// TreeRef summarizes a stored tree.
type TreeRef struct {
	TreeID    string    `json:"tree_id"`
	TenantID  string    `json:"tenant_id"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the persistence interface for navigation trees.
type Store interface {
	TreeSource

	// SaveTree replaces the stored nodes and edges of t, creating the tree if needed.
	SaveTree(ctx context.Context, t *model.Tree) error
	DeleteTree(ctx context.Context, treeID, tenantID string) error
	// ListTrees returns stored trees, limited to tenantID when it is non-empty.
	ListTrees(ctx context.Context, tenantID string) ([]TreeRef, error)

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
