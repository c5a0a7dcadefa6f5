package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/store"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanNode scans a single row into a model.NodeRecord.
// The row must contain columns in the order defined by nodeColumns.
func scanNode(row scannable) (model.NodeRecord, error) {
	var (
		n    model.NodeRecord
		kind string
		meta []byte
	)
	if err := row.Scan(&n.ID, &n.Label, &kind, &n.IsEntryPoint, &meta); err != nil {
		return n, err
	}
	n.Kind = model.NodeKind(kind)
	if err := decodeJSONB(meta, &n.Metadata); err != nil {
		return n, fmt.Errorf("node %s metadata: %w", n.ID, err)
	}
	return n, nil
}

// scanEdge scans a single row into a model.EdgeRecord.
// The row must contain columns in the order defined by edgeColumns.
func scanEdge(row scannable) (model.EdgeRecord, error) {
	var (
		e                         model.EdgeRecord
		retry, verification, meta []byte
	)
	err := row.Scan(
		&e.From,
		&e.To,
		&e.Action,
		&e.ComebackAction,
		&e.IsBidirectional,
		&retry,
		&verification,
		&meta,
	)
	if err != nil {
		return e, err
	}
	if err := decodeJSONB(retry, &e.RetryActions); err != nil {
		return e, fmt.Errorf("edge %s->%s retry actions: %w", e.From, e.To, err)
	}
	if err := decodeJSONB(verification, &e.Verifications); err != nil {
		return e, fmt.Errorf("edge %s->%s verifications: %w", e.From, e.To, err)
	}
	if err := decodeJSONB(meta, &e.Metadata); err != nil {
		return e, fmt.Errorf("edge %s->%s metadata: %w", e.From, e.To, err)
	}
	return e, nil
}

func scanNodes(rows *sql.Rows) ([]model.NodeRecord, error) {
	defer rows.Close()
	var nodes []model.NodeRecord
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func scanEdges(rows *sql.Rows) ([]model.EdgeRecord, error) {
	defer rows.Close()
	var edges []model.EdgeRecord
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func scanTreeRefs(rows *sql.Rows) ([]store.TreeRef, error) {
	defer rows.Close()
	var refs []store.TreeRef
	for rows.Next() {
		var r store.TreeRef
		if err := rows.Scan(&r.TreeID, &r.TenantID, &r.UpdatedAt, &r.NodeCount, &r.EdgeCount); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// jsonbValue marshals v for a JSONB column; empty values are stored as NULL.
func jsonbValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 {
			return nil, nil
		}
	case []string:
		if len(x) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// decodeJSONB unmarshals a JSONB column into dst; NULL leaves dst untouched.
func decodeJSONB(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
