package graph

import (
	"fmt"
	"sort"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// Build turns raw node and edge records into an immutable Graph. It never
// fails: dangling edges, duplicates and missing actions are recorded as
// warnings on the returned graph. An empty node list yields an empty graph.
//
// Authored edges are resolved first (the last duplicate wins), then reverse
// edges are synthesized for bidirectional records. A synthesized edge never
// replaces an authored one.
func Build(nodes []model.NodeRecord, edges []model.EdgeRecord) *Graph {
	g := &Graph{
		nodes: make(map[string]*Node, len(nodes)),
		edges: make(map[edgeKey]*Edge, len(edges)),
		out:   make(map[string][]string),
	}

	for _, rec := range nodes {
		if rec.ID == "" {
			g.warn(model.Warning{Code: model.WarnMissingNodeID, EdgeIndex: -1, Message: fmt.Sprintf("node %q has no id and was dropped", rec.Label)})
			continue
		}
		if _, dup := g.nodes[rec.ID]; dup {
			g.warn(model.Warning{Code: model.WarnDuplicateNode, EdgeIndex: -1, NodeID: rec.ID, Message: fmt.Sprintf("node %q defined more than once; last definition kept", rec.ID)})
		}
		g.nodes[rec.ID] = &Node{
			ID:           rec.ID,
			Label:        rec.Label,
			Kind:         rec.Kind,
			IsEntryPoint: rec.IsEntryPoint,
			Metadata:     copyMetadata(rec.Metadata),
		}
	}

	// Resolve duplicates first so only the winning record of each ordered
	// pair contributes an edge (and possibly a reverse edge).
	winner := make(map[edgeKey]int, len(edges))
	for i, rec := range edges {
		if missing, ok := g.missingEndpoint(rec); ok {
			g.warn(model.Warning{Code: model.WarnDanglingEdge, EdgeIndex: i, NodeID: missing,
				Message: fmt.Sprintf("edge %s -> %s references unknown node %q and was dropped", rec.From, rec.To, missing)})
			continue
		}
		key := edgeKey{rec.From, rec.To}
		if _, dup := winner[key]; dup {
			g.warn(model.Warning{Code: model.WarnDuplicateEdge, EdgeIndex: i,
				Message: fmt.Sprintf("edge %s -> %s defined more than once; last definition kept", rec.From, rec.To)})
		}
		winner[key] = i
	}

	var bidirectional []int
	for i, rec := range edges {
		key := edgeKey{rec.From, rec.To}
		if idx, ok := winner[key]; !ok || idx != i {
			continue
		}
		if rec.Action == "" {
			g.warn(model.Warning{Code: model.WarnMissingAction, EdgeIndex: i,
				Message: fmt.Sprintf("edge %s -> %s has no action", rec.From, rec.To)})
		}
		g.edges[key] = &Edge{
			From:          rec.From,
			To:            rec.To,
			Action:        rec.Action,
			RetryActions:  copyStrings(rec.RetryActions),
			Verifications: copyStrings(rec.Verifications),
			Weight:        1,
			Metadata:      copyMetadata(rec.Metadata),
		}
		if rec.IsBidirectional {
			bidirectional = append(bidirectional, i)
		}
	}

	for _, i := range bidirectional {
		rec := edges[i]
		key := edgeKey{rec.To, rec.From}
		if _, authored := g.edges[key]; authored {
			g.warn(model.Warning{Code: model.WarnReverseShadowed, EdgeIndex: i,
				Message: fmt.Sprintf("reverse edge %s -> %s not synthesized: an authored edge exists", key.from, key.to)})
			continue
		}
		action := rec.ComebackAction
		if action == "" {
			action = rec.Action
		}
		g.edges[key] = &Edge{
			From:         rec.To,
			To:           rec.From,
			Action:       action,
			RetryActions: copyStrings(rec.RetryActions),
			Derived:      true,
			Weight:       1,
			Metadata:     copyMetadata(rec.Metadata),
		}
	}

	for key := range g.edges {
		g.out[key.from] = append(g.out[key.from], key.to)
	}
	for from := range g.out {
		sort.Strings(g.out[from])
	}

	return g
}

func (g *Graph) missingEndpoint(rec model.EdgeRecord) (string, bool) {
	if _, ok := g.nodes[rec.From]; !ok {
		return rec.From, true
	}
	if _, ok := g.nodes[rec.To]; !ok {
		return rec.To, true
	}
	return "", false
}

func (g *Graph) warn(w model.Warning) {
	g.warnings = append(g.warnings, w)
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
