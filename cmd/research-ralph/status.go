// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-ralph/internal/rrd"
	"github.com/pdiddy/research-ralph/pkg/types"
)

const (
	ideasFile = "product-ideas.json"

	// statusTopPapers caps the ranked papers in the text report.
	statusTopPapers = 10
)

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show the phase and progress of a research project",
	Long: `Status prints the project's phase, paper counts, timing and an ETA
while analyzing, the best scored papers, and hints about what the next run
will do.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveProject(args)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")

		store := rrd.NewStore(dir)
		if problems := store.Validate(); len(problems) > 0 {
			return fmt.Errorf("invalid RRD file:\n  - %s\nuse reset to start the project over",
				strings.Join(problems, "\n  - "))
		}
		summary, err := store.Summary()
		if err != nil {
			return err
		}
		doc, err := store.Load()
		if err != nil {
			return err
		}

		report := buildStatusReport(dir, doc, summary, time.Now())
		return writeStatus(cmd.OutOrStdout(), report, format)
	},
}

// statusReport is everything status prints, in every format.
type statusReport struct {
	types.Summary `yaml:",inline"`

	Path string `json:"path" yaml:"path"`

	StartedAt          string  `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	ElapsedSeconds     int     `json:"elapsed_seconds,omitempty" yaml:"elapsed_seconds,omitempty"`
	AvgSecondsPerPaper float64 `json:"avg_seconds_per_paper,omitempty" yaml:"avg_seconds_per_paper,omitempty"`
	ETASeconds         int     `json:"eta_seconds,omitempty" yaml:"eta_seconds,omitempty"`
	Remaining          int     `json:"remaining,omitempty" yaml:"remaining,omitempty"`

	// Papers are presented papers once complete, analyzed papers before.
	Papers []types.RankedPaper `json:"papers,omitempty" yaml:"papers,omitempty"`
	Hints  []string            `json:"hints,omitempty" yaml:"hints,omitempty"`
}

func buildStatusReport(dir string, doc *types.RRD, summary types.Summary, now time.Time) statusReport {
	r := statusReport{Summary: summary, Path: dir}

	if started, ok := doc.ResearchStartedAt(); ok {
		r.StartedAt = doc.Timing.ResearchStartedAt
		if elapsed := now.Sub(started); elapsed > 0 {
			r.ElapsedSeconds = int(elapsed / time.Second)
		}
	}
	if eta, remaining, ok := doc.AnalysisETA(); ok {
		r.AvgSecondsPerPaper = *doc.Timing.Analysis.AvgSecondsPerPaper
		r.ETASeconds = int(eta / time.Second)
		r.Remaining = remaining
	}

	switch {
	case doc.Phase == types.PhaseComplete:
		r.Papers = types.RankPapers(doc.PresentedPapers())
		r.Hints = append(r.Hints, "Research complete! View report: cat "+filepath.Join(dir, reportFile))
		if _, err := os.Stat(filepath.Join(dir, ideasFile)); err == nil {
			r.Hints = append(r.Hints, "View ideas: cat "+filepath.Join(dir, ideasFile))
		}
	case summary.Analyzing > 0:
		r.Papers = types.RankPapers(doc.AnalyzedPapers())
		r.Hints = append(r.Hints, "Papers stuck in 'analyzing' status will be re-analyzed on next run")
	case summary.Phase == types.PhaseAnalysis && summary.PoolSize < summary.TargetPapers:
		r.Papers = types.RankPapers(doc.AnalyzedPapers())
		r.Hints = append(r.Hints, fmt.Sprintf("Pool (%d) < Target (%d) - will revert to DISCOVERY",
			summary.PoolSize, summary.TargetPapers))
	default:
		r.Papers = types.RankPapers(doc.AnalyzedPapers())
	}
	return r
}

func writeStatus(w io.Writer, r statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		writeStatusText(w, r)
		return nil
	default:
		return fmt.Errorf("unsupported format %q: use text, yaml, or json", format)
	}
}

func writeStatusText(w io.Writer, r statusReport) {
	s := r.Summary
	fmt.Fprintf(w, "Project:    %s\n", s.Project)
	fmt.Fprintf(w, "Path:       %s\n", r.Path)
	fmt.Fprintf(w, "Phase:      %s\n", s.Phase)
	fmt.Fprintf(w, "Progress:   %d/%d analyzed (%.0f%%)\n", s.Analyzed, s.TargetPapers, s.CompletionPct)
	fmt.Fprintf(w, "Pool:       %d papers (%d pending, %d analyzing)\n", s.PoolSize, s.Pending, s.Analyzing)
	fmt.Fprintf(w, "Presented:  %d\n", s.Presented)
	fmt.Fprintf(w, "Rejected:   %d\n", s.Rejected)
	fmt.Fprintf(w, "Insights:   %d\n", s.Insights)

	if r.StartedAt != "" {
		fmt.Fprintln(w, "\nTiming")
		fmt.Fprintf(w, "  Started:   %s\n", r.StartedAt)
		fmt.Fprintf(w, "  Elapsed:   %s\n", formatDuration(r.ElapsedSeconds))
		if r.ETASeconds > 0 {
			fmt.Fprintf(w, "  Avg/paper: %s\n", formatDuration(int(r.AvgSecondsPerPaper)))
			fmt.Fprintf(w, "  ETA:       %s (%d papers remaining)\n", formatDuration(r.ETASeconds), r.Remaining)
		}
	}

	if len(r.Papers) > 0 {
		fmt.Fprintf(w, "\n%-4s  %-8s  %-9s  %-10s  %s\n", "Rank", "Combined", "Execution", "Blue Ocean", "Paper")
		fmt.Fprintln(w, strings.Repeat("-", 80))
		for i, p := range r.Papers {
			if i == statusTopPapers {
				fmt.Fprintf(w, "... %d more\n", len(r.Papers)-statusTopPapers)
				break
			}
			execution, blueOcean := "-", "-"
			if p.HasBreakdown {
				execution = fmt.Sprintf("%d/30", p.Execution)
				blueOcean = fmt.Sprintf("%d/20", p.BlueOcean)
			}
			title := p.Title
			if title == "" {
				title = p.ID
			}
			if len(title) > 45 {
				title = title[:42] + "..."
			}
			fmt.Fprintf(w, "%-4d  %-8s  %-9s  %-10s  %s\n",
				i+1, fmt.Sprintf("%d/50", p.Combined), execution, blueOcean, title)
		}
	}

	if len(r.Hints) > 0 {
		fmt.Fprintln(w)
		for _, h := range r.Hints {
			fmt.Fprintln(w, h)
		}
	}
}

// formatDuration renders seconds as 45s, 12m 5s, or 3h 20m.
func formatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

func init() {
	statusCmd.Flags().String("format", "text", "output format: text, yaml, or json")

	rootCmd.AddCommand(statusCmd)
}
