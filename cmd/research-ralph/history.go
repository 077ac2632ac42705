// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-ralph/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [project]",
	Short: "Show past loop runs of a project",
	Long: `History lists the runs recorded in the project's history.db, newest
first. With --run it shows every iteration of one run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveProject(args)
		if err != nil {
			return err
		}
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")

		journal, err := history.Open(dir)
		if err != nil {
			return err
		}
		defer journal.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if runID != "" {
			run, err := journal.Run(ctx, runID)
			if err != nil {
				return err
			}
			its, err := journal.Iterations(ctx, runID)
			if err != nil {
				return err
			}
			writeRunDetail(out, run, its)
			return nil
		}

		runs, err := journal.Runs(ctx, limit)
		if err != nil {
			return err
		}
		writeRuns(out, runs)
		return nil
	},
}

func runOutcome(r history.Run) string {
	switch {
	case r.FinishedAt.IsZero():
		return "interrupted"
	case r.Completed:
		return "complete"
	default:
		return "stopped"
	}
}

func writeRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-26s  %-16s  %-6s  %-5s  %-11s  %-10s  %s\n",
		"Run", "Started", "Agent", "Iter", "Outcome", "Phase", "Error")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, r := range runs {
		msg := r.Error
		if len(msg) > 30 {
			msg = msg[:27] + "..."
		}
		fmt.Fprintf(w, "%-26s  %-16s  %-6s  %-5s  %-11s  %-10s  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Agent,
			fmt.Sprintf("%d/%d", r.Iterations, r.MaxIterations), runOutcome(r), r.FinalPhase, msg)
	}
}

func writeRunDetail(w io.Writer, r history.Run, its []history.Iteration) {
	fmt.Fprintf(w, "Run:      %s\n", r.ID)
	fmt.Fprintf(w, "Agent:    %s\n", r.Agent)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Outcome:  %s after %d/%d iterations\n", runOutcome(r), r.Iterations, r.MaxIterations)
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-4s  %-7s  %-10s  %-5s  %-7s  %-9s  %s\n",
		"#", "Result", "Phase", "Delta", "Changed", "Duration", "Error")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, it := range its {
		result := "ok"
		switch {
		case it.Complete:
			result = "done"
		case !it.Success:
			result = string(it.ErrorKind)
		}
		changed := "no"
		if it.DocumentChanged {
			changed = "yes"
		}
		fmt.Fprintf(w, "%-4d  %-7s  %-10s  %-5d  %-7s  %-9s  %s\n",
			it.Iteration, result, it.Phase, it.PapersDelta, changed, it.Duration.Round(time.Second), it.Error)
	}
}

func init() {
	historyCmd.Flags().String("run", "", "show the iterations of one run")
	historyCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")

	rootCmd.AddCommand(historyCmd)
}
