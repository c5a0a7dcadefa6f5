package model

// ExecPhase tells an executor why it is being called.
type ExecPhase string

const (
	PhaseAction       ExecPhase = "action"
	PhaseVerification ExecPhase = "verification"
	PhaseRetry        ExecPhase = "retry"
)

// ExecContext carries the identity of the step an executor call belongs to.
type ExecContext struct {
	RunID      string    `json:"run_id,omitempty"`
	TreeID     string    `json:"tree_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	StepNumber int       `json:"step_number"`
	Phase      ExecPhase `json:"phase"`
	FromNodeID string    `json:"from_node_id,omitempty"`
	ToNodeID   string    `json:"to_node_id,omitempty"`
}

// Outcome is what an executor reports for a single call.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	TimeMs  int64  `json:"time_ms"`
}
