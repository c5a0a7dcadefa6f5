// Package validation runs a plan's steps in order against an executor,
// applying retry and cascading-skip rules and summarizing the outcome.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/executor"
	"github.com/alfredjeanlab/navgraph/internal/model"
)

// DefaultStepTimeout bounds each executor call when Options.StepTimeout is zero.
const DefaultStepTimeout = 30 * time.Second

// DefaultTimeoutGrace is how long a timed-out call is given to return before
// the run moves on without it.
const DefaultTimeoutGrace = 5 * time.Second

// RunContext identifies a run to the executor.
type RunContext struct {
	RunID    string
	TreeID   string
	TenantID string
}

// Options configures a Coordinator.
type Options struct {
	// StepTimeout bounds every single executor call.
	StepTimeout time.Duration
	// TimeoutGrace bounds the wait for a call that is still running after its
	// timeout. Zero means DefaultTimeoutGrace.
	TimeoutGrace time.Duration
	// OnResult, when set, is called once per step as it reaches a terminal state.
	OnResult func(step model.ValidationStep, result model.ValidationResult)
	Logger   *slog.Logger
}

// Coordinator executes validation runs. It holds no per-run state and may be
// shared by concurrent runs.
type Coordinator struct {
	timeout  time.Duration
	grace    time.Duration
	onResult func(model.ValidationStep, model.ValidationResult)
	logger   *slog.Logger
}

// Result is the outcome of a run: one result per step in plan order.
type Result struct {
	Results    []model.ValidationResult
	Summary    model.RunSummary
	StartedAt  time.Time
	FinishedAt time.Time
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		timeout:  opts.StepTimeout,
		grace:    opts.TimeoutGrace,
		onResult: opts.OnResult,
		logger:   opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultStepTimeout
	}
	if c.grace <= 0 {
		c.grace = DefaultTimeoutGrace
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// DependencyBlocked reports whether step must be skipped because the step it
// depends on ended failed or skipped. states maps step numbers to the states
// of earlier steps.
func DependencyBlocked(step model.ValidationStep, states map[int]model.StepState) bool {
	if step.DependsOnStepNumber == nil {
		return false
	}
	switch states[*step.DependsOnStepNumber] {
	case model.StateFailed, model.StateSkipped:
		return true
	}
	return false
}

// Run executes steps strictly in order. Cancelling ctx stops the run between
// steps; every step not yet started is then skipped as cancelled. An executor
// call already in flight is bounded only by the step timeout. Run always
// returns a result for every step.
func (c *Coordinator) Run(ctx context.Context, rc RunContext, steps []model.ValidationStep, exec executor.Executor) Result {
	res := Result{
		Results:   make([]model.ValidationResult, 0, len(steps)),
		StartedAt: time.Now().UTC(),
	}
	states := make(map[int]model.StepState, len(steps))

	for _, step := range steps {
		var r model.ValidationResult
		switch {
		case ctx.Err() != nil:
			r = skipped(step, model.SkipCancelled, "run cancelled")
		case DependencyBlocked(step, states):
			r = skipped(step, model.SkipDependencyFailed,
				fmt.Sprintf("depends on step %d which did not pass", *step.DependsOnStepNumber))
		default:
			r = c.execute(ctx, rc, step, exec)
		}
		states[step.StepNumber] = r.State
		res.Results = append(res.Results, r)

		c.logger.Debug("validation step finished",
			"run", rc.RunID, "step", step.StepNumber, "from", step.FromNodeID, "to", step.ToNodeID,
			"state", r.State, "retried", r.Retried)
		if c.onResult != nil {
			c.onResult(step, r)
		}
	}

	res.FinishedAt = time.Now().UTC()
	res.Summary = model.Summarize(res.Results)
	c.logger.Info("validation run finished",
		"run", rc.RunID, "tree", rc.TreeID, "tenant", rc.TenantID,
		"total", res.Summary.TotalSteps, "passed", res.Summary.Successful,
		"failed", res.Summary.Failed, "skipped", res.Summary.Skipped,
		"health", res.Summary.OverallHealth)
	return res
}

// tracker enforces the step state machine.
type tracker struct {
	step  int
	state model.StepState
}

func (t *tracker) to(next model.StepState) {
	if !t.state.CanTransition(next) {
		panic(fmt.Sprintf("step %d: invalid transition %s -> %s", t.step, t.state, next))
	}
	t.state = next
}

func skipped(step model.ValidationStep, reason model.SkipReason, msg string) model.ValidationResult {
	t := tracker{step: step.StepNumber, state: model.StatePending}
	t.to(model.StateSkipped)
	return model.ValidationResult{
		StepNumber:   step.StepNumber,
		State:        t.state,
		Skipped:      true,
		SkipReason:   reason,
		ErrorMessage: msg,
	}
}

func (c *Coordinator) execute(ctx context.Context, rc RunContext, step model.ValidationStep, exec executor.Executor) model.ValidationResult {
	t := tracker{step: step.StepNumber, state: model.StatePending}
	t.to(model.StateExecuting)

	ec := model.ExecContext{
		RunID:      rc.RunID,
		TreeID:     rc.TreeID,
		TenantID:   rc.TenantID,
		StepNumber: step.StepNumber,
		FromNodeID: step.FromNodeID,
		ToNodeID:   step.ToNodeID,
	}

	r := model.ValidationResult{StepNumber: step.StepNumber}
	ok, msg, elapsed := c.attempt(ctx, step, ec, exec)
	r.ExecutionTimeMs = elapsed

	if !ok && len(step.RetryActions) > 0 {
		info := &model.RetryInfo{InitialError: msg}
		ec.Phase = model.PhaseRetry
		for _, action := range step.RetryActions {
			out := c.call(ctx, exec, action, ec)
			info.Actions = append(info.Actions, model.ActionOutcome{
				Action:  action,
				Success: out.Success,
				Message: out.Message,
				TimeMs:  out.TimeMs,
			})
			r.ExecutionTimeMs += out.TimeMs
		}
		ok, msg, elapsed = c.attempt(ctx, step, ec, exec)
		r.ExecutionTimeMs += elapsed
		info.Recovered = ok
		r.Retried = true
		r.Retry = info
		if !ok {
			c.logger.Warn("validation step failed after retry",
				"run", rc.RunID, "step", step.StepNumber, "error", msg)
		}
	}

	if ok {
		t.to(model.StatePassed)
		r.Success = true
	} else {
		t.to(model.StateFailed)
		r.ErrorMessage = msg
	}
	r.State = t.state
	return r
}

// attempt runs the step action and, when it succeeds, each verification in
// order. The first failure ends the attempt.
func (c *Coordinator) attempt(ctx context.Context, step model.ValidationStep, ec model.ExecContext, exec executor.Executor) (bool, string, int64) {
	ec.Phase = model.PhaseAction
	out := c.call(ctx, exec, step.Action, ec)
	total := out.TimeMs
	if !out.Success {
		return false, failureMessage(out, "action failed"), total
	}

	ec.Phase = model.PhaseVerification
	for _, v := range step.Verifications {
		out = c.call(ctx, exec, v, ec)
		total += out.TimeMs
		if !out.Success {
			return false, failureMessage(out, fmt.Sprintf("verification %q failed", v)), total
		}
	}
	return true, "", total
}

func failureMessage(out model.Outcome, fallback string) string {
	if out.Message != "" {
		return out.Message
	}
	return fallback
}

type callResult struct {
	out model.Outcome
	err error
}

// call invokes the executor once under the step timeout. Errors, panics and
// timeouts come back as unsuccessful outcomes. The call is detached from run
// cancellation so an in-flight step is never torn down half way. After a
// timeout the call gets the grace period to return, so a well-behaved
// executor never overlaps the next call.
func (c *Coordinator) call(ctx context.Context, exec executor.Executor, action string, ec model.ExecContext) model.Outcome {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- callResult{err: fmt.Errorf("executor panic: %v", rec)}
			}
		}()
		out, err := exec.Execute(callCtx, action, ec)
		ch <- callResult{out: out, err: err}
	}()

	select {
	case cr := <-ch:
		if callCtx.Err() != nil {
			return model.Outcome{
				Success: false,
				Message: fmt.Sprintf("timed out after %s", c.timeout),
				TimeMs:  time.Since(start).Milliseconds(),
			}
		}
		if cr.err != nil {
			return model.Outcome{Success: false, Message: cr.err.Error(), TimeMs: elapsedMs(cr.out, start)}
		}
		cr.out.TimeMs = elapsedMs(cr.out, start)
		return cr.out
	case <-callCtx.Done():
		elapsed := time.Since(start).Milliseconds()
		grace := time.NewTimer(c.grace)
		defer grace.Stop()
		select {
		case <-ch:
		case <-grace.C:
			c.logger.Warn("executor ignored cancellation; continuing without it",
				"run", ec.RunID, "step", ec.StepNumber, "phase", ec.Phase, "grace", c.grace)
		}
		return model.Outcome{
			Success: false,
			Message: fmt.Sprintf("timed out after %s", c.timeout),
			TimeMs:  elapsed,
		}
	}
}

func elapsedMs(out model.Outcome, start time.Time) int64 {
	if out.TimeMs > 0 {
		return out.TimeMs
	}
	return time.Since(start).Milliseconds()
}
