package model

import (
	"errors"
	"strings"
	"testing"
)

func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	return ve.Errors
}

func TestValidateKey(t *testing.T) {
	for _, tc := range []struct {
		name      string
		tree      string
		tenant    string
		wantField string
	}{
		{"valid", "app", "acme", ""},
		{"missing tree", "", "acme", "tree_id"},
		{"whitespace tree", "   ", "acme", "tree_id"},
		{"missing tenant", "app", "", "tenant_id"},
		{"slash in tree", "a/b", "acme", "tree_id"},
		{"newline in tenant", "app", "ac\nme", "tenant_id"},
		{"dot-dot tenant", "app", "..", "tenant_id"},
		{"dot tenant", "app", ".", "tenant_id"},
		{"dot-dot tree", "..", "acme", "tree_id"},
		{"backslash in tree", `..\secret`, "acme", "tree_id"},
		{"dots inside id", "app..v2", "acme", ""},
		{"tree too long", strings.Repeat("x", maxIDLength+1), "acme", "tree_id"},
		{"tree at limit", strings.Repeat("x", maxIDLength), "acme", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateKey(tc.tree, tc.tenant)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			errs := fieldErrors(t, err)
			if len(errs) != 1 || errs[0].Field != tc.wantField {
				t.Errorf("errors = %+v, want one on %s", errs, tc.wantField)
			}
		})
	}
}

func TestValidateKey_BothMissing(t *testing.T) {
	errs := fieldErrors(t, ValidateKey("", ""))
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %+v", errs)
	}
}

func TestValidateTree_Nil(t *testing.T) {
	errs := fieldErrors(t, ValidateTree(nil))
	if errs[0].Field != "tree" {
		t.Errorf("field = %q, want tree", errs[0].Field)
	}
}

func TestValidateTree_NodeIDTooLong(t *testing.T) {
	tr := &Tree{
		TreeID:   "app",
		TenantID: "acme",
		Nodes:    []NodeRecord{{ID: "home"}, {ID: strings.Repeat("n", maxIDLength+1)}},
	}
	errs := fieldErrors(t, ValidateTree(tr))
	if len(errs) != 1 || errs[0].Field != "nodes[1].id" {
		t.Errorf("errors = %+v", errs)
	}
}

func TestValidateTree_DataIssuesAreNotErrors(t *testing.T) {
	tr := &Tree{
		TreeID:   "app",
		TenantID: "acme",
		Nodes:    []NodeRecord{{ID: ""}, {ID: "home"}, {ID: "home"}},
		Edges:    []EdgeRecord{{From: "home", To: "nowhere"}},
	}
	if err := ValidateTree(tr); err != nil {
		t.Fatalf("ValidateTree: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	ve := &ValidationError{Errors: []FieldError{
		{Field: "tree_id", Message: "is required"},
		{Field: "tenant_id", Message: "is required"},
	}}
	want := "validation failed: tree_id: is required; tenant_id: is required"
	if got := ve.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	if (&ValidationError{}).HasErrors() {
		t.Error("empty ValidationError should report no errors")
	}
	if !(&ValidationError{Errors: []FieldError{{Field: "f", Message: "m"}}}).HasErrors() {
		t.Error("expected HasErrors true")
	}
}
