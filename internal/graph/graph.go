// Package graph builds immutable navigation graphs from raw tree records.
//
// A Graph is never mutated after Build returns. Accessors hand out sorted
// copies, slices and metadata included, so a cached graph can be shared by
// concurrent runs.
package graph

import (
	"sort"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// Node is a navigation state in a built graph.
type Node struct {
	ID           string
	Label        string
	Kind         model.NodeKind
	IsEntryPoint bool
	Metadata     map[string]any
}

// Edge is a directed transition in a built graph.
type Edge struct {
	From          string
	To            string
	Action        string
	RetryActions  []string
	Verifications []string
	// Derived is true for reverse edges synthesized from a bidirectional record.
	Derived  bool
	Weight   int
	Metadata map[string]any
}

func (n *Node) clone() Node {
	c := *n
	c.Metadata = copyMetadata(n.Metadata)
	return c
}

func (e *Edge) clone() Edge {
	c := *e
	c.RetryActions = copyStrings(e.RetryActions)
	c.Verifications = copyStrings(e.Verifications)
	c.Metadata = copyMetadata(e.Metadata)
	return c
}

type edgeKey struct {
	from, to string
}

// Graph is an immutable directed graph with at most one edge per ordered
// (from, to) pair.
type Graph struct {
	nodes    map[string]*Node
	edges    map[edgeKey]*Edge
	out      map[string][]string // from -> sorted target IDs
	warnings []model.Warning
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges, derived ones included.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Edge returns a copy of the edge from -> to.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	e, ok := g.edges[edgeKey{from, to}]
	if !ok {
		return Edge{}, false
	}
	return e.clone(), true
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n.clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Edges returns all edges sorted by source, then target.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e.clone())
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// OutEdges returns the edges leaving id sorted by target ID.
func (g *Graph) OutEdges(id string) []Edge {
	targets := g.out[id]
	edges := make([]Edge, 0, len(targets))
	for _, to := range targets {
		edges = append(edges, g.edges[edgeKey{id, to}].clone())
	}
	return edges
}

// EntryPoints returns the IDs of nodes flagged as entry points, sorted.
func (g *Graph) EntryPoints() []string {
	var ids []string
	for id, n := range g.nodes {
		if n.IsEntryPoint {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Warnings returns the data-quality issues collected during Build.
func (g *Graph) Warnings() []model.Warning {
	out := make([]model.Warning, len(g.warnings))
	copy(out, g.warnings)
	return out
}
