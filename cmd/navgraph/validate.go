package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/navgraph/internal/executor"
	"github.com/alfredjeanlab/navgraph/internal/idgen"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/plan"
	"github.com/alfredjeanlab/navgraph/internal/report"
	"github.com/alfredjeanlab/navgraph/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate [tree-id]",
	Short: "Run a validation of a tree",
	Long: `Plan and execute every transition of a tree, then print the report.

With --file the run happens locally: actions are executed as shell commands
in --exec-dir, or POSTed to --agent-url when it is set. Interrupting a local
run skips the remaining steps and still prints the partial report.`,
	GroupID: "validation",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, _ := cmd.Flags().GetString("entry")
		file, _ := cmd.Flags().GetString("file")
		out := cmd.OutOrStdout()

		var (
			r   *model.Report
			key string
		)
		if file != "" {
			var err error
			r, key, err = validateLocal(cmd, file, optionalArg(args), entry)
			if err != nil {
				return err
			}
		} else {
			if len(args) == 0 {
				return fmt.Errorf("tree-id is required without --file")
			}
			res, err := navClient.Validate(context.Background(), args[0], tenantID, entry)
			if err != nil {
				return fmt.Errorf("validating %s: %w", args[0], err)
			}
			r, key = &res.Report, res.ReportKey
		}

		if jsonOutput {
			if err := printJSON(out, r); err != nil {
				return err
			}
		} else {
			printReport(out, r, key)
		}
		failOn, _ := cmd.Flags().GetBool("fail-on-error")
		if failOn && r.Summary.Failed > 0 {
			return fmt.Errorf("%d of %d steps failed", r.Summary.Failed, r.Summary.TotalSteps)
		}
		return nil
	},
}

func validateLocal(cmd *cobra.Command, file, treeID, entry string) (*model.Report, string, error) {
	t, g, err := loadLocalTree(file, treeID)
	if err != nil {
		return nil, "", err
	}
	p, err := plan.Build(g, entry)
	if err != nil {
		return nil, "", err
	}

	stepTimeout, _ := cmd.Flags().GetDuration("step-timeout")
	agentURL, _ := cmd.Flags().GetString("agent-url")
	var exec executor.Executor
	if agentURL != "" {
		exec = executor.NewHTTP(agentURL, authToken)
	} else {
		dir, _ := cmd.Flags().GetString("exec-dir")
		exec = &executor.Shell{Dir: dir, Timeout: stepTimeout}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := idgen.MustRunID()
	res := validation.New(validation.Options{StepTimeout: stepTimeout}).
		Run(ctx, validation.RunContext{RunID: runID, TreeID: t.TreeID, TenantID: t.TenantID}, p.Steps, exec)

	r := &model.Report{
		RunID:        runID,
		TreeID:       t.TreeID,
		TenantID:     t.TenantID,
		EntryNodeID:  p.EntryNodeID,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Summary:      res.Summary,
		Results:      res.Results,
		PlanWarnings: append(g.Warnings(), p.Warnings...),
	}

	var key string
	if dir, _ := cmd.Flags().GetString("report-dir"); dir != "" {
		key, err = report.NewUploader(report.DirDestination{Root: dir}, "", nil).Upload(context.Background(), r)
		if err != nil {
			return nil, "", err
		}
	}
	return r, key, nil
}

func init() {
	validateCmd.Flags().String("entry", "", "entry node ID (default: the tree's entry point)")
	validateCmd.Flags().StringP("file", "f", "", "validate a local TOML tree file")
	validateCmd.Flags().String("exec-dir", "", "working directory for local shell actions")
	validateCmd.Flags().String("agent-url", "", "device agent URL for local runs (default: run actions as shell commands)")
	validateCmd.Flags().Duration("step-timeout", validation.DefaultStepTimeout, "timeout for each local executor call")
	validateCmd.Flags().String("report-dir", "", "write the local run report under this directory")
	validateCmd.Flags().Bool("fail-on-error", false, "exit non-zero when any step fails")
}
