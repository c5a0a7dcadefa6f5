package main

import (
	"fmt"

	"github.com/alfredjeanlab/navgraph/internal/graph"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/treefile"
)

// loadLocalTree reads a tree file for offline commands. An explicit tree ID
// argument must agree with the one declared in the file.
func loadLocalTree(path, treeID string) (*model.Tree, *graph.Graph, error) {
	t, err := treefile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case t.TreeID == "":
		t.TreeID = treeID
	case treeID != "" && t.TreeID != treeID:
		return nil, nil, fmt.Errorf("%s declares tree %q, not %q", path, t.TreeID, treeID)
	}
	if t.TenantID == "" {
		t.TenantID = tenantID
	}
	if t.TreeID == "" {
		t.TreeID = "local"
	}
	if t.TenantID == "" {
		t.TenantID = "local"
	}
	g := graph.Build(t.Nodes, t.Edges)
	if g.NodeCount() == 0 {
		return nil, nil, fmt.Errorf("%s: tree has no nodes", path)
	}
	return t, g, nil
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
