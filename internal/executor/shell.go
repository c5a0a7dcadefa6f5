package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// Default and max timeout for shell actions.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// Shell runs each action as a shell command via "sh -c". A zero exit status
// is success; anything else is a failed check whose message is the command's
// trimmed output.
type Shell struct {
	// Dir is the working directory for commands. Ignored when it is not an
	// existing directory.
	Dir string
	// Timeout bounds each command. Zero means DefaultTimeout; values above
	// MaxTimeout are clamped.
	Timeout time.Duration
	// Env is overlaid on the process environment.
	Env map[string]string
}

// Execute runs action. The command sees the step identity in NAVGRAPH_*
// environment variables.
func (s *Shell) Execute(ctx context.Context, action string, ec model.ExecContext) (model.Outcome, error) {
	if strings.TrimSpace(action) == "" {
		return model.Outcome{Success: false, Message: "empty action"}, nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", action) //nolint:gosec // actions come from the authored tree
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if s.Dir != "" {
		if info, err := os.Stat(s.Dir); err == nil && info.IsDir() {
			cmd.Dir = s.Dir
		}
	}

	cmd.Env = os.Environ()
	for k, v := range stepEnv(ec) {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range s.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}

	if err == nil {
		return model.Outcome{Success: true, Message: output, TimeMs: elapsed}, nil
	}
	if cmdCtx.Err() == context.DeadlineExceeded {
		return model.Outcome{Success: false, Message: fmt.Sprintf("timed out after %s", timeout), TimeMs: elapsed}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := output
		if msg == "" {
			msg = exitErr.Error()
		}
		return model.Outcome{Success: false, Message: msg, TimeMs: elapsed}, nil
	}
	return model.Outcome{TimeMs: elapsed}, fmt.Errorf("run action: %w", err)
}

func stepEnv(ec model.ExecContext) map[string]string {
	return map[string]string{
		"NAVGRAPH_RUN_ID":    ec.RunID,
		"NAVGRAPH_TREE_ID":   ec.TreeID,
		"NAVGRAPH_TENANT_ID": ec.TenantID,
		"NAVGRAPH_STEP":      strconv.Itoa(ec.StepNumber),
		"NAVGRAPH_PHASE":     string(ec.Phase),
		"NAVGRAPH_FROM_NODE": ec.FromNodeID,
		"NAVGRAPH_TO_NODE":   ec.ToNodeID,
	}
}
