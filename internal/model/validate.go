package model

import (
	"fmt"
	"strings"
)

// maxIDLength bounds tree and tenant identifiers.
const maxIDLength = 200

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateKey checks a (tree, tenant) cache key. Both parts are required.
func ValidateKey(treeID, tenantID string) error {
	var ve ValidationError
	checkID(&ve, "tree_id", treeID)
	checkID(&ve, "tenant_id", tenantID)
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateTree checks the identity of a tree before it is handed to the
// builder. Data-quality issues inside nodes and edges are not errors here;
// the builder reports them as warnings.
func ValidateTree(t *Tree) error {
	if t == nil {
		return &ValidationError{Errors: []FieldError{{Field: "tree", Message: "is required"}}}
	}
	var ve ValidationError
	checkID(&ve, "tree_id", t.TreeID)
	checkID(&ve, "tenant_id", t.TenantID)
	for i, n := range t.Nodes {
		if len(n.ID) > maxIDLength {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("nodes[%d].id", i),
				Message: fmt.Sprintf("must be %d characters or fewer", maxIDLength),
			})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func checkID(ve *ValidationError, field, v string) {
	switch {
	case strings.TrimSpace(v) == "":
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: "is required"})
	case len(v) > maxIDLength:
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: fmt.Sprintf("must be %d characters or fewer", maxIDLength)})
	case v == "." || v == "..":
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: "must not be a relative path element"})
	case strings.ContainsAny(v, "/\\\n\t"):
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: "must not contain path separators or whitespace control characters"})
	}
}
