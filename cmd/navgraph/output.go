package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/client"
	"github.com/alfredjeanlab/navgraph/internal/model"
	"github.com/alfredjeanlab/navgraph/internal/plan"
	"github.com/alfredjeanlab/navgraph/internal/runs"
	"github.com/alfredjeanlab/navgraph/internal/store"
	"github.com/alfredjeanlab/navgraph/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printWarnings(w io.Writer, warnings []model.Warning) {
	for _, wr := range warnings {
		fmt.Fprintf(w, "%s %s\n", ui.RenderWarn("warning:"), wr.String())
	}
}

func printCacheEntry(w io.Writer, e *client.CacheEntry) {
	fmt.Fprintf(w, "Cached %s/%s: %d nodes, %d edges\n", e.TenantID, e.TreeID, e.NodeCount, e.EdgeCount)
	printWarnings(w, e.Warnings)
}

func dependsOn(s model.ValidationStep) string {
	if s.DependsOnStepNumber == nil {
		return "-"
	}
	return strconv.Itoa(*s.DependsOnStepNumber)
}

func printPlan(w io.Writer, p *plan.Plan) {
	fmt.Fprintf(w, "Entry: %s  Steps: %d\n", ui.RenderAccent(p.EntryNodeID), len(p.Steps))
	printWarnings(w, p.Warnings)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tDEPTH\tFROM\tTO\tACTION\tDEPENDS")
	for _, s := range p.Steps {
		action := s.Action
		if s.Derived {
			action += " " + ui.RenderMuted("(reverse)")
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", s.StepNumber, s.Depth, s.FromNodeID, s.ToNodeID, action, dependsOn(s))
	}
	tw.Flush()
	if len(p.Unreachable) > 0 {
		fmt.Fprintf(w, "Unreachable: %s\n", ui.RenderMuted(strings.Join(p.Unreachable, ", ")))
	}
}

func printReport(w io.Writer, r *model.Report, reportKey string) {
	fmt.Fprintf(w, "Run %s  %s/%s  entry %s\n", ui.RenderAccent(r.RunID), r.TenantID, r.TreeID, r.EntryNodeID)
	printWarnings(w, r.PlanWarnings)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATE\tTIME\tDETAIL")
	for _, res := range r.Results {
		detail := res.ErrorMessage
		if res.Retried {
			tag := "retried"
			if res.Retry != nil && res.Retry.Recovered {
				tag = "recovered after retry"
			}
			detail = strings.TrimSpace(tag + " " + detail)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", res.StepNumber, ui.RenderState(res.State),
			time.Duration(res.ExecutionTimeMs)*time.Millisecond, detail)
	}
	tw.Flush()
	printSummary(w, r.Summary)
	if reportKey != "" {
		fmt.Fprintf(w, "Report: %s\n", reportKey)
	}
}

func printSummary(w io.Writer, s model.RunSummary) {
	fmt.Fprintf(w, "Total %d  passed %d  failed %d  skipped %d", s.TotalSteps, s.Successful, s.Failed, s.Skipped)
	if s.Cancelled > 0 {
		fmt.Fprintf(w, " (%d cancelled)", s.Cancelled)
	}
	fmt.Fprintf(w, "  success %.1f%%  health %s\n", s.SuccessRate, ui.RenderHealth(s.OverallHealth))
}

func printStats(w io.Writer, s *cache.Stats) {
	fmt.Fprintf(w, "Cached graphs: %d\n", s.Count)
	if s.OldestCachedAt != nil {
		fmt.Fprintf(w, "Oldest: %s\n", s.OldestCachedAt.Format(time.RFC3339))
	}
	if s.NewestCachedAt != nil {
		fmt.Fprintf(w, "Newest: %s\n", s.NewestCachedAt.Format(time.RFC3339))
	}
	if len(s.Keys) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tTREE")
	for _, k := range s.Keys {
		fmt.Fprintf(tw, "%s\t%s\n", k.TenantID, k.TreeID)
	}
	tw.Flush()
}

func printTrees(w io.Writer, refs []store.TreeRef) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "No stored trees.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tTREE\tNODES\tEDGES\tUPDATED")
	for _, r := range refs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.TenantID, r.TreeID, r.NodeCount, r.EdgeCount, r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func printRuns(w io.Writer, entries []runs.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTREE\tSTATE\tPROGRESS\tPASSED\tFAILED\tSKIPPED\tHEALTH")
	for _, e := range entries {
		health := "-"
		if e.Health != "" {
			health = ui.RenderHealth(e.Health)
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%d/%d\t%d\t%d\t%d\t%s\n",
			e.RunID, e.TenantID, e.TreeID, e.State, e.Completed, e.TotalSteps, e.Passed, e.Failed, e.Skipped, health)
	}
	tw.Flush()
}
