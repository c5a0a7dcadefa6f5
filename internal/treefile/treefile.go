// Package treefile reads and writes navigation trees as TOML documents.
//
// A tree file looks like:
//
//	tree_id = "settings-app"
//	tenant_id = "acme"
//
//	[[nodes]]
//	id = "home"
//	entry_point = true
//
//	[[edges]]
//	from = "home"
//	to = "menu"
//	action = "tap #menu"
//	bidirectional = true
package treefile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/store"
)

// Ext is the file extension of tree files.
const Ext = ".toml"

type document struct {
	TreeID   string             `toml:"tree_id,omitempty"`
	TenantID string             `toml:"tenant_id,omitempty"`
	Nodes    []model.NodeRecord `toml:"nodes"`
	Edges    []model.EdgeRecord `toml:"edges"`
}

// Decode parses a tree document. Unknown keys are an error so that a
// misspelt field is not silently dropped.
func Decode(r io.Reader) (*model.Tree, error) {
	var doc document
	md, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	if keys := unknownKeys(md); len(keys) > 0 {
		return nil, fmt.Errorf("decode tree: unknown keys: %s", strings.Join(keys, ", "))
	}
	return &model.Tree{
		TreeID:   doc.TreeID,
		TenantID: doc.TenantID,
		Nodes:    doc.Nodes,
		Edges:    doc.Edges,
	}, nil
}

// unknownKeys lists undecoded keys outside of free-form metadata tables.
func unknownKeys(md toml.MetaData) []string {
	var keys []string
	for _, k := range md.Undecoded() {
		if slices.Contains(k, "metadata") {
			continue
		}
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

// Load reads the tree file at path.
func Load(path string) (*model.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Encode writes t as a tree document.
func Encode(w io.Writer, t *model.Tree) error {
	return toml.NewEncoder(w).Encode(document{
		TreeID:   t.TreeID,
		TenantID: t.TenantID,
		Nodes:    t.Nodes,
		Edges:    t.Edges,
	})
}

// DirSource serves trees from a directory laid out as
// <Root>/<tenant>/<tree>.toml.
type DirSource struct {
	Root string
}

var _ store.TreeSource = DirSource{}

// LoadTree reads the file for (treeID, tenantID). Identifiers declared inside
// the file must agree with its location; missing ones are filled in.
func (d DirSource) LoadTree(_ context.Context, treeID, tenantID string) (*model.Tree, error) {
	if err := model.ValidateKey(treeID, tenantID); err != nil {
		return nil, err
	}
	path, err := d.resolve(treeID, tenantID)
	if err != nil {
		return nil, err
	}
	t, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, store.ErrTreeNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.TreeID == "" {
		t.TreeID = treeID
	}
	if t.TenantID == "" {
		t.TenantID = tenantID
	}
	if t.TreeID != treeID || t.TenantID != tenantID {
		return nil, fmt.Errorf("%s declares %s/%s", path, t.TenantID, t.TreeID)
	}
	return t, nil
}

// Path returns the file location of (treeID, tenantID).
func (d DirSource) Path(treeID, tenantID string) string {
	return filepath.Join(d.Root, tenantID, treeID+Ext)
}

// resolve returns Path and fails when the result is not beneath Root.
func (d DirSource) resolve(treeID, tenantID string) (string, error) {
	path := d.Path(treeID, tenantID)
	rel, err := filepath.Rel(filepath.Clean(d.Root), path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("tree %s/%s resolves outside %s", tenantID, treeID, d.Root)
	}
	return path, nil
}
