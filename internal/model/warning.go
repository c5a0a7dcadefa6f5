package model

import "fmt"

// WarningCode identifies a non-fatal data-quality issue.
type WarningCode string

const (
	WarnDanglingEdge        WarningCode = "dangling_edge"
	WarnDuplicateEdge       WarningCode = "duplicate_edge"
	WarnDuplicateNode       WarningCode = "duplicate_node"
	WarnMissingNodeID       WarningCode = "missing_node_id"
	WarnMissingAction       WarningCode = "missing_action"
	WarnReverseShadowed     WarningCode = "reverse_shadowed"
	WarnMultipleEntryPoints WarningCode = "multiple_entry_points"
)

// Warning is a structured data-quality issue collected while building or
// planning. Warnings are data; they never abort processing.
type Warning struct {
	Code      WarningCode `json:"code"`
	EdgeIndex int         `json:"edge_index"` // -1 when the warning is not about an input edge
	NodeID    string      `json:"node_id,omitempty"`
	Message   string      `json:"message"`
}

func (w Warning) String() string {
	if w.EdgeIndex >= 0 {
		return fmt.Sprintf("%s (edge %d): %s", w.Code, w.EdgeIndex, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}
