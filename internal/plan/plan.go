// Package plan computes the reachable part of a navigation graph and orders
// its edges into a dependency-annotated validation plan.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/alfredjeanlab/navgraph/internal/graph"
	"github.com/alfredjeanlab/navgraph/internal/model"
)

var (
	// ErrNoEntryPoint is returned when no entry node is flagged and none was given.
	ErrNoEntryPoint = errors.New("no entry point")

	// ErrEntryNotFound is returned when an explicit entry node is not in the graph.
	ErrEntryNotFound = errors.New("entry node not found")
)

// Plan is an ordered list of validation steps starting at one entry node.
type Plan struct {
	EntryNodeID string                 `json:"entry_node_id"`
	Steps       []model.ValidationStep `json:"steps"`
	Warnings    []model.Warning        `json:"warnings,omitempty"`
	// Unreachable lists nodes that cannot be reached from the entry, sorted.
	Unreachable []string `json:"unreachable,omitempty"`
}

// ResolveEntry picks the entry node for a plan. An explicit ID wins; otherwise
// the first entry-flagged node by ID is used and a warning is returned when
// the choice was ambiguous.
func ResolveEntry(g *graph.Graph, explicit string) (string, []model.Warning, error) {
	if explicit != "" {
		if !g.HasNode(explicit) {
			return "", nil, fmt.Errorf("%w: %q", ErrEntryNotFound, explicit)
		}
		return explicit, nil, nil
	}

	entries := g.EntryPoints()
	switch len(entries) {
	case 0:
		return "", nil, ErrNoEntryPoint
	case 1:
		return entries[0], nil, nil
	}
	return entries[0], []model.Warning{{
		Code:      model.WarnMultipleEntryPoints,
		EdgeIndex: -1,
		NodeID:    entries[0],
		Message:   fmt.Sprintf("%d entry points %v; using %q", len(entries), entries, entries[0]),
	}}, nil
}

// Reachable returns the set of nodes reachable from entry by following
// directed edges, entry included.
func Reachable(g *graph.Graph, entry string) map[string]bool {
	seen := map[string]bool{entry: true}
	queue := []string{entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.OutEdges(id) {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// Build produces the validation plan for g. Every edge in the subgraph
// reachable from the entry yields exactly one step.
//
// Edges are numbered level by level. The frontier at each depth is sorted by
// node ID, and the edges leaving it are ordered by (target, source). The
// first step to arrive at a node becomes the dependency of every step leaving
// that node; later arrivals are still planned but do not expand the node
// again, which keeps cyclic graphs finite.
func Build(g *graph.Graph, explicitEntry string) (*Plan, error) {
	entry, warnings, err := ResolveEntry(g, explicitEntry)
	if err != nil {
		return nil, err
	}

	// reachedVia holds the step that first reached each node; 0 marks the entry.
	reachedVia := map[string]int{entry: 0}
	frontier := []string{entry}
	var steps []model.ValidationStep

	for depth := 1; len(frontier) > 0; depth++ {
		var level []graph.Edge
		for _, id := range frontier {
			level = append(level, g.OutEdges(id)...)
		}
		sort.Slice(level, func(i, j int) bool {
			if level[i].To != level[j].To {
				return level[i].To < level[j].To
			}
			return level[i].From < level[j].From
		})

		var next []string
		for _, e := range level {
			step := newStep(g, e, len(steps)+1, depth)
			if via := reachedVia[e.From]; via > 0 {
				dep := via
				step.DependsOnStepNumber = &dep
			}
			steps = append(steps, step)

			if _, seen := reachedVia[e.To]; !seen {
				reachedVia[e.To] = step.StepNumber
				next = append(next, e.To)
			}
		}
		sort.Strings(next)
		frontier = next
	}

	var unreachable []string
	for _, n := range g.Nodes() {
		if _, ok := reachedVia[n.ID]; !ok {
			unreachable = append(unreachable, n.ID)
		}
	}

	return &Plan{
		EntryNodeID: entry,
		Steps:       steps,
		Warnings:    warnings,
		Unreachable: unreachable,
	}, nil
}

func newStep(g *graph.Graph, e graph.Edge, number, depth int) model.ValidationStep {
	from, _ := g.Node(e.From)
	to, _ := g.Node(e.To)
	return model.ValidationStep{
		StepNumber:    number,
		FromNodeID:    e.From,
		FromLabel:     from.Label,
		ToNodeID:      e.To,
		ToLabel:       to.Label,
		Action:        e.Action,
		RetryActions:  e.RetryActions,
		Verifications: e.Verifications,
		Derived:       e.Derived,
		Depth:         depth,
	}
}
