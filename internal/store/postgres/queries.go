package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/store"
)

// nodeColumns is the column list used for SELECT statements on nav_nodes.
const nodeColumns = `node_id, label, kind, is_entry_point, metadata`

// edgeColumns is the column list used for SELECT statements on nav_edges.
const edgeColumns = `from_node, to_node, action, comeback_action, is_bidirectional,
	retry_actions, verifications, metadata`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryLoadTree(ctx context.Context, db executor, treeID, tenantID string) (*model.Tree, error) {
	var updatedAt time.Time
	err := db.QueryRowContext(ctx,
		`SELECT updated_at FROM nav_trees WHERE tree_id = $1 AND tenant_id = $2`,
		treeID, tenantID,
	).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTreeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tree %s/%s: %w", tenantID, treeID, err)
	}

	t := &model.Tree{TreeID: treeID, TenantID: tenantID}

	rows, err := db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nav_nodes WHERE tree_id = $1 AND tenant_id = $2 ORDER BY position`,
		treeID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	t.Nodes, err = scanNodes(rows)
	if err != nil {
		return nil, fmt.Errorf("scan nodes: %w", err)
	}

	rows, err = db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM nav_edges WHERE tree_id = $1 AND tenant_id = $2 ORDER BY position`,
		treeID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	t.Edges, err = scanEdges(rows)
	if err != nil {
		return nil, fmt.Errorf("scan edges: %w", err)
	}

	return t, nil
}

// querySaveTree must run inside a transaction; it deletes and rewrites every
// node and edge of the tree.
func querySaveTree(ctx context.Context, db executor, t *model.Tree) error {
	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO nav_trees (tree_id, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (tree_id, tenant_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		t.TreeID, t.TenantID, now,
	); err != nil {
		return fmt.Errorf("upsert tree: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`DELETE FROM nav_nodes WHERE tree_id = $1 AND tenant_id = $2`, t.TreeID, t.TenantID); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`DELETE FROM nav_edges WHERE tree_id = $1 AND tenant_id = $2`, t.TreeID, t.TenantID); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}

	for i, n := range t.Nodes {
		meta, err := jsonbValue(n.Metadata)
		if err != nil {
			return fmt.Errorf("node %d metadata: %w", i, err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO nav_nodes (tree_id, tenant_id, position, `+nodeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.TreeID, t.TenantID, i,
			n.ID, n.Label, string(n.Kind), n.IsEntryPoint, meta,
		); err != nil {
			return fmt.Errorf("insert node %d: %w", i, err)
		}
	}

	for i, e := range t.Edges {
		retry, err := jsonbValue(e.RetryActions)
		if err != nil {
			return fmt.Errorf("edge %d retry actions: %w", i, err)
		}
		verifications, err := jsonbValue(e.Verifications)
		if err != nil {
			return fmt.Errorf("edge %d verifications: %w", i, err)
		}
		meta, err := jsonbValue(e.Metadata)
		if err != nil {
			return fmt.Errorf("edge %d metadata: %w", i, err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO nav_edges (tree_id, tenant_id, position, `+edgeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.TreeID, t.TenantID, i,
			e.From, e.To, e.Action, e.ComebackAction, e.IsBidirectional,
			retry, verifications, meta,
		); err != nil {
			return fmt.Errorf("insert edge %d: %w", i, err)
		}
	}
	return nil
}

func queryDeleteTree(ctx context.Context, db executor, treeID, tenantID string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM nav_trees WHERE tree_id = $1 AND tenant_id = $2`, treeID, tenantID)
	if err != nil {
		return fmt.Errorf("delete tree: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrTreeNotFound
	}
	return nil
}

func queryListTrees(ctx context.Context, db executor, tenantID string) ([]store.TreeRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.tree_id, t.tenant_id, t.updated_at,
			(SELECT count(*) FROM nav_nodes n WHERE n.tree_id = t.tree_id AND n.tenant_id = t.tenant_id),
			(SELECT count(*) FROM nav_edges e WHERE e.tree_id = t.tree_id AND e.tenant_id = t.tenant_id)
		FROM nav_trees t
		WHERE $1 = '' OR t.tenant_id = $1
		ORDER BY t.tenant_id, t.tree_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	return scanTreeRefs(rows)
}
