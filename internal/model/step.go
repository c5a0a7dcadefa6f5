package model

// StepState is the lifecycle state of a validation step within a run.
type StepState string

const (
	StatePending   StepState = "pending"
	StateExecuting StepState = "executing"
	StatePassed    StepState = "passed"
	StateFailed    StepState = "failed"
	StateSkipped   StepState = "skipped"
)

var stepTransitions = map[StepState][]StepState{
	StatePending:   {StateExecuting, StateSkipped},
	StateExecuting: {StatePassed, StateFailed},
}

// IsValid reports whether s is one of the known step states.
func (s StepState) IsValid() bool {
	switch s {
	case StatePending, StateExecuting, StatePassed, StateFailed, StateSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether s is passed, failed or skipped.
func (s StepState) IsTerminal() bool {
	return s == StatePassed || s == StateFailed || s == StateSkipped
}

// CanTransition reports whether a step may move from s to next.
func (s StepState) CanTransition(next StepState) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidationStep is one planned exercise of a single directed edge.
type ValidationStep struct {
	StepNumber    int      `json:"step_number"`
	FromNodeID    string   `json:"from_node_id"`
	FromLabel     string   `json:"from_label,omitempty"`
	ToNodeID      string   `json:"to_node_id"`
	ToLabel       string   `json:"to_label,omitempty"`
	Action        string   `json:"action"`
	RetryActions  []string `json:"retry_actions,omitempty"`
	Verifications []string `json:"verifications,omitempty"`
	Derived       bool     `json:"derived,omitempty"`

	// DependsOnStepNumber is the step that first reached FromNodeID, or nil
	// when FromNodeID is the entry point.
	DependsOnStepNumber *int `json:"depends_on_step_number"`
	Depth               int  `json:"depth"`
}
