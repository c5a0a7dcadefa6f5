package model

// NodeKind classifies a navigation node. Kinds are an open set; only
// KindEntry carries structural meaning.
type NodeKind string

const (
	KindEntry  NodeKind = "entry"
	KindScreen NodeKind = "screen"
	KindMenu   NodeKind = "menu"
	KindPage   NodeKind = "page"
)

// NodeRecord is a raw navigation node as returned by a tree source.
type NodeRecord struct {
	ID           string         `json:"id" toml:"id"`
	Label        string         `json:"label,omitempty" toml:"label,omitempty"`
	Kind         NodeKind       `json:"kind,omitempty" toml:"kind,omitempty"`
	IsEntryPoint bool           `json:"is_entry_point,omitempty" toml:"entry_point,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" toml:"metadata,omitempty"`
}

// EdgeRecord is a raw directed transition as returned by a tree source.
type EdgeRecord struct {
	From            string         `json:"from" toml:"from"`
	To              string         `json:"to" toml:"to"`
	Action          string         `json:"action,omitempty" toml:"action,omitempty"`
	ComebackAction  string         `json:"comeback_action,omitempty" toml:"comeback_action,omitempty"`
	IsBidirectional bool           `json:"is_bidirectional,omitempty" toml:"bidirectional,omitempty"`
	RetryActions    []string       `json:"retry_actions,omitempty" toml:"retry_actions,omitempty"`
	Verifications   []string       `json:"verifications,omitempty" toml:"verifications,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty" toml:"metadata,omitempty"`
}

// Tree is the authored set of nodes and edges for one (tree, tenant) pair.
type Tree struct {
	TreeID   string       `json:"tree_id"`
	TenantID string       `json:"tenant_id"`
	Nodes    []NodeRecord `json:"nodes"`
	Edges    []EdgeRecord `json:"edges"`
}
