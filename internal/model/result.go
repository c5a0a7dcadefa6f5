package model

import "time"

// SkipReason explains why a step was never executed.
type SkipReason string

const (
	SkipDependencyFailed SkipReason = "dependency_failed"
	SkipCancelled        SkipReason = "cancelled"
)

// Health is a coarse classification of a run's success ratio.
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthFair      Health = "fair"
	HealthPoor      Health = "poor"
)

// ActionOutcome records a single executor call made while retrying a step.
type ActionOutcome struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	TimeMs  int64  `json:"time_ms"`
}

// RetryInfo describes the recovery attempt made for a failed step.
type RetryInfo struct {
	InitialError string          `json:"initial_error"`
	Actions      []ActionOutcome `json:"actions"`
	Recovered    bool            `json:"recovered"`
}

// ValidationResult is the terminal outcome of one step.
type ValidationResult struct {
	StepNumber      int        `json:"step_number"`
	State           StepState  `json:"state"`
	Success         bool       `json:"success"`
	Skipped         bool       `json:"skipped"`
	SkipReason      SkipReason `json:"skip_reason,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	Retried         bool       `json:"retried,omitempty"`
	Retry           *RetryInfo `json:"retry,omitempty"`
}

// RunSummary aggregates the results of a whole run.
type RunSummary struct {
	TotalSteps    int     `json:"total_steps"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	Skipped       int     `json:"skipped"`
	Cancelled     int     `json:"cancelled"`
	SuccessRate   float64 `json:"success_rate"`
	OverallHealth Health  `json:"overall_health"`
}

// ClassifyHealth maps successful/(successful+failed) to a Health value.
// Skipped steps are not part of the ratio. With nothing executed the run is poor.
func ClassifyHealth(successful, failed int) Health {
	rate := SuccessRate(successful, failed)
	switch {
	case rate >= 90:
		return HealthExcellent
	case rate >= 75:
		return HealthGood
	case rate >= 50:
		return HealthFair
	default:
		return HealthPoor
	}
}

// SuccessRate returns the percentage of executed steps that passed.
func SuccessRate(successful, failed int) float64 {
	executed := successful + failed
	if executed == 0 {
		return 0
	}
	return float64(successful) * 100 / float64(executed)
}

// Summarize folds terminal results into a RunSummary.
func Summarize(results []ValidationResult) RunSummary {
	s := RunSummary{TotalSteps: len(results)}
	for _, r := range results {
		switch r.State {
		case StatePassed:
			s.Successful++
		case StateFailed:
			s.Failed++
		case StateSkipped:
			s.Skipped++
			if r.SkipReason == SkipCancelled {
				s.Cancelled++
			}
		}
	}
	s.SuccessRate = SuccessRate(s.Successful, s.Failed)
	s.OverallHealth = ClassifyHealth(s.Successful, s.Failed)
	return s
}

// Report is the full record of one validation run.
type Report struct {
	RunID        string             `json:"run_id"`
	TreeID       string             `json:"tree_id"`
	TenantID     string             `json:"tenant_id"`
	EntryNodeID  string             `json:"entry_node_id"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Summary      RunSummary         `json:"summary"`
	Results      []ValidationResult `json:"results"`
	PlanWarnings []Warning          `json:"plan_warnings,omitempty"`
}
