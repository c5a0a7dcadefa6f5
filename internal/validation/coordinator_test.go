package validation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// scriptExecutor fails any action listed in fail and records every call.
type scriptExecutor struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	hook  func(action string)
}

func (s *scriptExecutor) Execute(_ context.Context, action string, ec model.ExecContext) (model.Outcome, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf("%d:%s:%s", ec.StepNumber, ec.Phase, action))
	failed := s.fail[action]
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(action)
	}
	if failed {
		return model.Outcome{Success: false, Message: action + " failed", TimeMs: 1}, nil
	}
	return model.Outcome{Success: true, TimeMs: 1}, nil
}

func (s *scriptExecutor) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func dep(n int) *int { return &n }

func step(n int, action string, dependsOn *int) model.ValidationStep {
	return model.ValidationStep{
		StepNumber:          n,
		FromNodeID:          fmt.Sprintf("n%d", n-1),
		ToNodeID:            fmt.Sprintf("n%d", n),
		Action:              action,
		DependsOnStepNumber: dependsOn,
	}
}

func TestDependencyBlocked(t *testing.T) {
	states := map[int]model.StepState{
		1: model.StatePassed,
		2: model.StateFailed,
		3: model.StateSkipped,
	}
	tests := []struct {
		name string
		dep  *int
		want bool
	}{
		{"entry step", nil, false},
		{"passed dependency", dep(1), false},
		{"failed dependency", dep(2), true},
		{"skipped dependency", dep(3), true},
		{"unknown dependency", dep(9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DependencyBlocked(model.ValidationStep{StepNumber: 10, DependsOnStepNumber: tt.dep}, states)
			if got != tt.want {
				t.Errorf("DependencyBlocked = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_AllPass(t *testing.T) {
	exec := &scriptExecutor{}
	c := New(Options{})
	steps := []model.ValidationStep{step(1, "a", nil), step(2, "b", dep(1)), step(3, "c", dep(2))}

	res := c.Run(context.Background(), RunContext{RunID: "run-1"}, steps, exec)

	if len(res.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(res.Results))
	}
	for _, r := range res.Results {
		if r.State != model.StatePassed || !r.Success {
			t.Errorf("step %d: state = %s, success = %v", r.StepNumber, r.State, r.Success)
		}
	}
	if res.Summary.Successful != 3 || res.Summary.OverallHealth != model.HealthExcellent {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.FinishedAt.Before(res.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
}

func TestRun_CascadingSkip(t *testing.T) {
	exec := &scriptExecutor{fail: map[string]bool{"a": true}}
	c := New(Options{})
	steps := []model.ValidationStep{
		step(1, "a", nil),
		step(2, "b", dep(1)),
		step(3, "c", dep(2)),
		step(4, "d", nil),
	}

	res := c.Run(context.Background(), RunContext{}, steps, exec)

	want := []model.StepState{model.StateFailed, model.StateSkipped, model.StateSkipped, model.StatePassed}
	for i, r := range res.Results {
		if r.State != want[i] {
			t.Errorf("step %d: state = %s, want %s", r.StepNumber, r.State, want[i])
		}
	}
	for _, r := range res.Results[1:3] {
		if r.SkipReason != model.SkipDependencyFailed {
			t.Errorf("step %d: skip reason = %q", r.StepNumber, r.SkipReason)
		}
	}
	for _, call := range exec.called() {
		if strings.HasPrefix(call, "2:") || strings.HasPrefix(call, "3:") {
			t.Errorf("executor called for skipped step: %s", call)
		}
	}
	if res.Results[0].ErrorMessage != "a failed" {
		t.Errorf("error message = %q", res.Results[0].ErrorMessage)
	}
	s := res.Summary
	if s.Successful+s.Failed+s.Skipped != s.TotalSteps {
		t.Errorf("summary does not add up: %+v", s)
	}
}

func TestRun_HealthThresholds(t *testing.T) {
	tests := []struct {
		passed, failed int
		want           model.Health
	}{
		{9, 1, model.HealthExcellent},
		{8, 2, model.HealthGood},
		{6, 4, model.HealthFair},
		{4, 6, model.HealthPoor},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			exec := &scriptExecutor{fail: map[string]bool{"bad": true}}
			var steps []model.ValidationStep
			for i := 0; i < tt.passed+tt.failed; i++ {
				action := "good"
				if i < tt.failed {
					action = "bad"
				}
				steps = append(steps, step(i+1, action, nil))
			}

			res := New(Options{}).Run(context.Background(), RunContext{}, steps, exec)

			if res.Summary.OverallHealth != tt.want {
				t.Errorf("health = %s, want %s (summary %+v)", res.Summary.OverallHealth, tt.want, res.Summary)
			}
			if res.Summary.Successful != tt.passed || res.Summary.Failed != tt.failed {
				t.Errorf("summary = %+v", res.Summary)
			}
		})
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &scriptExecutor{}
	exec.hook = func(action string) {
		if action == "s2" {
			cancel()
		}
	}
	var steps []model.ValidationStep
	for i := 1; i <= 5; i++ {
		steps = append(steps, step(i, fmt.Sprintf("s%d", i), nil))
	}

	res := New(Options{}).Run(ctx, RunContext{}, steps, exec)

	if len(res.Results) != 5 {
		t.Fatalf("len(Results) = %d, want 5", len(res.Results))
	}
	for _, r := range res.Results[:2] {
		if r.State != model.StatePassed {
			t.Errorf("step %d: state = %s, want passed", r.StepNumber, r.State)
		}
	}
	for _, r := range res.Results[2:] {
		if r.State != model.StateSkipped || r.SkipReason != model.SkipCancelled {
			t.Errorf("step %d: state = %s reason = %q, want skipped/cancelled", r.StepNumber, r.State, r.SkipReason)
		}
	}
	if got := len(exec.called()); got != 2 {
		t.Errorf("executor calls = %d, want 2", got)
	}
	s := res.Summary
	if s.TotalSteps != 5 || s.Cancelled != 3 || s.Successful+s.Failed+s.Skipped != 5 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &scriptExecutor{}

	res := New(Options{}).Run(ctx, RunContext{}, []model.ValidationStep{step(1, "a", nil)}, exec)

	if res.Results[0].SkipReason != model.SkipCancelled {
		t.Errorf("skip reason = %q", res.Results[0].SkipReason)
	}
	if len(exec.called()) != 0 {
		t.Error("executor should not be called")
	}
	if res.Summary.OverallHealth != model.HealthPoor || res.Summary.SuccessRate != 0 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

// flakyExecutor fails the primary action until a retry action has run.
type flakyExecutor struct {
	scriptExecutor
	recovered bool
}

func (f *flakyExecutor) Execute(ctx context.Context, action string, ec model.ExecContext) (model.Outcome, error) {
	f.mu.Lock()
	if ec.Phase == model.PhaseRetry && action == "reset" {
		f.recovered = true
	}
	ok := f.recovered || ec.Phase != model.PhaseAction
	f.mu.Unlock()
	if _, err := f.scriptExecutor.Execute(ctx, action, ec); err != nil {
		return model.Outcome{}, err
	}
	if !ok {
		return model.Outcome{Success: false, Message: "not there yet"}, nil
	}
	return model.Outcome{Success: true}, nil
}

func TestRun_RetryRecovers(t *testing.T) {
	exec := &flakyExecutor{}
	s := step(1, "tap", nil)
	s.RetryActions = []string{"back", "reset"}

	res := New(Options{}).Run(context.Background(), RunContext{}, []model.ValidationStep{s}, exec)

	r := res.Results[0]
	if r.State != model.StatePassed || !r.Retried {
		t.Fatalf("result = %+v, want passed after retry", r)
	}
	if r.Retry == nil || !r.Retry.Recovered || r.Retry.InitialError != "not there yet" {
		t.Fatalf("retry info = %+v", r.Retry)
	}
	if len(r.Retry.Actions) != 2 || r.Retry.Actions[0].Action != "back" || r.Retry.Actions[1].Action != "reset" {
		t.Errorf("retry actions = %+v", r.Retry.Actions)
	}
	want := []string{"1:action:tap", "1:retry:back", "1:retry:reset", "1:action:tap"}
	got := exec.called()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestRun_RetryStillFails(t *testing.T) {
	exec := &scriptExecutor{fail: map[string]bool{"tap": true}}
	s := step(1, "tap", nil)
	s.RetryActions = []string{"back"}
	next := step(2, "next", dep(1))

	res := New(Options{}).Run(context.Background(), RunContext{}, []model.ValidationStep{s, next}, exec)

	r := res.Results[0]
	if r.State != model.StateFailed || !r.Retried || r.Retry.Recovered {
		t.Errorf("result = %+v, want failed after retry", r)
	}
	if res.Results[1].State != model.StateSkipped {
		t.Errorf("dependent state = %s, want skipped", res.Results[1].State)
	}
}

func TestRun_NoRetryWithoutRetryActions(t *testing.T) {
	exec := &scriptExecutor{fail: map[string]bool{"tap": true}}

	res := New(Options{}).Run(context.Background(), RunContext{}, []model.ValidationStep{step(1, "tap", nil)}, exec)

	if res.Results[0].Retried || res.Results[0].Retry != nil {
		t.Errorf("result = %+v, want no retry", res.Results[0])
	}
	if len(exec.called()) != 1 {
		t.Errorf("calls = %v", exec.called())
	}
}

func TestRun_Verifications(t *testing.T) {
	exec := &scriptExecutor{fail: map[string]bool{"check-title": true}}
	s := step(1, "tap", nil)
	s.Verifications = []string{"check-visible", "check-title", "check-never"}

	res := New(Options{}).Run(context.Background(), RunContext{}, []model.ValidationStep{s}, exec)

	r := res.Results[0]
	if r.State != model.StateFailed || r.ErrorMessage != "check-title failed" {
		t.Errorf("result = %+v", r)
	}
	want := []string{"1:action:tap", "1:verification:check-visible", "1:verification:check-title"}
	if got := exec.called(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

type errExecutor struct{}

func (errExecutor) Execute(context.Context, string, model.ExecContext) (model.Outcome, error) {
	return model.Outcome{}, fmt.Errorf("device unreachable")
}

type panicExecutor struct{}

func (panicExecutor) Execute(context.Context, string, model.ExecContext) (model.Outcome, error) {
	panic("boom")
}

type slowExecutor struct{ delay time.Duration }

func (s slowExecutor) Execute(ctx context.Context, _ string, _ model.ExecContext) (model.Outcome, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return model.Outcome{Success: true}, nil
}

func TestRun_ExecutorFaults(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		exec    interface {
			Execute(context.Context, string, model.ExecContext) (model.Outcome, error)
		}
		wantMsg string
	}{
		{"error", Options{}, errExecutor{}, "device unreachable"},
		{"panic", Options{}, panicExecutor{}, "executor panic: boom"},
		{"timeout", Options{StepTimeout: 20 * time.Millisecond}, slowExecutor{delay: 5 * time.Second}, "timed out after 20ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := []model.ValidationStep{step(1, "a", nil), step(2, "b", nil)}

			res := New(tt.opts).Run(context.Background(), RunContext{}, steps, tt.exec)

			for _, r := range res.Results {
				if r.State != model.StateFailed {
					t.Errorf("step %d: state = %s, want failed", r.StepNumber, r.State)
				}
				if r.ErrorMessage != tt.wantMsg {
					t.Errorf("step %d: error = %q, want %q", r.StepNumber, r.ErrorMessage, tt.wantMsg)
				}
			}
		})
	}
}

func TestRun_ExecContext(t *testing.T) {
	var got []model.ExecContext
	var mu sync.Mutex
	exec := execFunc(func(_ context.Context, _ string, ec model.ExecContext) (model.Outcome, error) {
		mu.Lock()
		got = append(got, ec)
		mu.Unlock()
		return model.Outcome{Success: true}, nil
	})
	rc := RunContext{RunID: "run-x", TreeID: "app", TenantID: "acme"}

	New(Options{}).Run(context.Background(), rc, []model.ValidationStep{step(1, "a", nil)}, exec)

	if len(got) != 1 {
		t.Fatalf("calls = %d", len(got))
	}
	want := model.ExecContext{RunID: "run-x", TreeID: "app", TenantID: "acme", StepNumber: 1, Phase: model.PhaseAction, FromNodeID: "n0", ToNodeID: "n1"}
	if got[0] != want {
		t.Errorf("exec context = %+v, want %+v", got[0], want)
	}
}

type execFunc func(context.Context, string, model.ExecContext) (model.Outcome, error)

func (f execFunc) Execute(ctx context.Context, a string, ec model.ExecContext) (model.Outcome, error) {
	return f(ctx, a, ec)
}

func TestRun_OnResult(t *testing.T) {
	var seen []int
	c := New(Options{OnResult: func(s model.ValidationStep, r model.ValidationResult) {
		if !r.State.IsTerminal() {
			t.Errorf("step %d reported non-terminal state %s", s.StepNumber, r.State)
		}
		seen = append(seen, s.StepNumber)
	}})
	exec := &scriptExecutor{fail: map[string]bool{"a": true}}
	steps := []model.ValidationStep{step(1, "a", nil), step(2, "b", dep(1)), step(3, "c", nil)}

	c.Run(context.Background(), RunContext{}, steps, exec)

	if fmt.Sprint(seen) != "[1 2 3]" {
		t.Errorf("OnResult order = %v", seen)
	}
}

func TestTracker_RejectsInvalidTransition(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on passed -> executing")
		}
	}()
	tr := tracker{step: 1, state: model.StatePassed}
	tr.to(model.StateExecuting)
}

// stubbornExecutor ignores ctx and records how many calls overlap.
type stubbornExecutor struct {
	delay    time.Duration
	release  chan struct{} // when set, calls block until it is closed
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubbornExecutor) Execute(_ context.Context, _ string, _ model.ExecContext) (model.Outcome, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if s.release != nil {
		<-s.release
	} else {
		time.Sleep(s.delay)
	}
	return model.Outcome{Success: true}, nil
}

func TestRun_TimedOutCallsDoNotOverlap(t *testing.T) {
	exec := &stubbornExecutor{delay: 60 * time.Millisecond}
	c := New(Options{StepTimeout: 10 * time.Millisecond, TimeoutGrace: time.Second})
	steps := []model.ValidationStep{step(1, "a", nil), step(2, "b", nil), step(3, "c", nil)}

	res := c.Run(context.Background(), RunContext{}, steps, exec)

	for _, r := range res.Results {
		if r.State != model.StateFailed || !strings.Contains(r.ErrorMessage, "timed out") {
			t.Errorf("step %d: state %s, message %q", r.StepNumber, r.State, r.ErrorMessage)
		}
	}
	if got := exec.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent executor calls = %d, want 1", got)
	}
}

func TestRun_GraceExpires(t *testing.T) {
	exec := &stubbornExecutor{release: make(chan struct{})}
	defer close(exec.release)
	c := New(Options{StepTimeout: 10 * time.Millisecond, TimeoutGrace: 20 * time.Millisecond})

	done := make(chan Result, 1)
	go func() {
		done <- c.Run(context.Background(), RunContext{}, []model.ValidationStep{step(1, "a", nil)}, exec)
	}()

	select {
	case res := <-done:
		if res.Summary.Failed != 1 {
			t.Errorf("summary = %+v, want one failure", res.Summary)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run blocked on an executor that never returns")
	}
}
