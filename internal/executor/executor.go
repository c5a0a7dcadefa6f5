// Package executor defines the contract with the device/automation layer and
// provides shell and HTTP adapters for it.
package executor

import (
	"context"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// Executor runs a single action or verification against a target.
//
// A returned error is a fault in reaching the target (transport failure,
// process could not start); a reachable target that reports a failed check
// returns Success=false with a nil error. Callers treat both as a failed
// attempt.
//
// Execute must return promptly once ctx is done. Calls within a run are
// sequential; an implementation that keeps running past its deadline is only
// waited on for a short grace period and may then overlap later steps.
type Executor interface {
	Execute(ctx context.Context, action string, ec model.ExecContext) (model.Outcome, error)
}

// Func adapts an ordinary function to the Executor interface.
type Func func(ctx context.Context, action string, ec model.ExecContext) (model.Outcome, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, action string, ec model.ExecContext) (model.Outcome, error) {
	return f(ctx, action, ec)
}
