// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/research-ralph/internal/history"
	"github.com/pdiddy/research-ralph/internal/loop"
	"github.com/pdiddy/research-ralph/internal/rrd"
	"github.com/pdiddy/research-ralph/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [project]",
	Short: "Run the research loop until the project completes",
	Long: `Run invokes the configured agent repeatedly against the project's
rrd.json. Each iteration the agent reads prompt.md, advances the research,
and writes its progress back to rrd.json. The loop stops when the research
is complete, a non-retryable failure occurs, too many failures happen in a
row, or the iteration cap is reached.

--papers changes requirements.target_papers first. That is only allowed
while the project is in DISCOVERY with nothing analyzed, unless --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	dir, err := resolveProject(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	papers, _ := cmd.Flags().GetInt("papers")
	force, _ := cmd.Flags().GetBool("force")
	iterations, _ := cmd.Flags().GetInt("iterations")
	agentFlag, _ := cmd.Flags().GetString("agent")
	quiet, _ := cmd.Flags().GetBool("quiet")

	kind := cfg.DefaultAgent
	if agentFlag != "" {
		kind = types.AgentKind(agentFlag)
		if !kind.Valid() {
			return fmt.Errorf("unknown agent %q: use claude, amp, or codex", agentFlag)
		}
	}

	store := rrd.NewStore(dir)
	doc, err := prepareRun(out, store, papers, force)
	if err != nil {
		return err
	}

	maxIterations := iterations
	if maxIterations <= 0 {
		maxIterations = doc.Requirements.TargetPapers + 6
	}
	fmt.Fprintf(out, "Project:  %s\n", doc.Project)
	fmt.Fprintf(out, "Path:     %s\n", store.ProjectDir())
	fmt.Fprintf(out, "Agent:    %s\n", kind)
	fmt.Fprintf(out, "Phase:    %s\n", doc.Phase)
	fmt.Fprintf(out, "Papers:   %d/%d analyzed\n", doc.Statistics.TotalAnalyzed, doc.Requirements.TargetPapers)
	fmt.Fprintf(out, "Max iterations: %d\n", maxIterations)

	if doc.Phase == types.PhaseComplete {
		fmt.Fprintln(out, "\nResearch already complete!")
		fmt.Fprintf(out, "  View report: cat %s\n", filepath.Join(dir, reportFile))
		return nil
	}

	opts := []loop.Option{
		loop.WithAgent(kind),
		loop.WithMaxIterations(iterations),
		loop.WithEnv(agentEnv),
		loop.WithLogger(logger),
		loop.OnIterationStart(func(i int, phase types.Phase) {
			fmt.Fprintf(out, "\n=== Iteration %d (%s) ===\n", i, phase)
		}),
		loop.OnIterationEnd(func(r types.IterationResult) {
			printIteration(out, r)
		}),
	}
	if !quiet {
		opts = append(opts, loop.OnOutputLine(func(line string) {
			fmt.Fprintln(out, line)
		}))
	}

	journal, err := history.Open(dir)
	if err != nil {
		logger.Warn("run history disabled", zap.Error(err))
	} else {
		defer journal.Close()
		opts = append(opts, loop.WithRecorder(journal))
	}

	l, err := loop.New(cfg, dir, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Prompt:   %s\n", l.PromptPath())

	res, err := l.Run(ctx)
	printLoopResult(out, res)
	if err != nil {
		return err
	}
	if !res.Completed {
		return errors.New(res.ErrorMessage)
	}
	return nil
}

// reportFile is the report the agent writes when research completes.
const reportFile = "research-report.md"

// errTargetPapersLocked is returned when --papers is refused.
var errTargetPapersLocked = errors.New("cannot change target_papers: research already in progress")

// prepareRun validates the project and applies a --papers change. It
// returns the document the run starts from.
func prepareRun(w io.Writer, store *rrd.Store, papers int, force bool) (*types.RRD, error) {
	if problems := store.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid RRD file:\n  - %s", strings.Join(problems, "\n  - "))
	}

	if papers > 0 {
		updated, err := store.UpdateTargetPapers(papers, force)
		if err != nil {
			return nil, err
		}
		if !updated {
			doc, err := store.Load()
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(w, "Cannot change target_papers - research already in progress\n")
			fmt.Fprintf(w, "  Phase: %s, Analyzed: %d\n", doc.Phase, doc.Statistics.TotalAnalyzed)
			fmt.Fprintf(w, "  Current target: %d\n\n", doc.Requirements.TargetPapers)
			fmt.Fprintln(w, "Options:")
			fmt.Fprintln(w, "  1. Run without --papers to continue with the existing target")
			fmt.Fprintln(w, "  2. Use --force --papers N to override")
			fmt.Fprintln(w, "  3. Use reset to start fresh")
			return nil, errTargetPapersLocked
		}
		fmt.Fprintf(w, "Target papers set to %d\n", papers)
	}

	return store.Load()
}

func printIteration(w io.Writer, r types.IterationResult) {
	switch {
	case r.IsComplete:
		fmt.Fprintf(w, "--- iteration %d: research complete (%s)\n", r.Iteration, r.Duration.Round(time.Second))
	case r.Success:
		fmt.Fprintf(w, "--- iteration %d: ok, phase %s, +%d analyzed (%s)\n",
			r.Iteration, r.Phase, r.PapersDelta, r.Duration.Round(time.Second))
	default:
		fmt.Fprintf(w, "--- iteration %d: failed [%s] %s\n", r.Iteration, r.AgentResult.ErrorKind, r.ErrorMessage)
	}
}

func printLoopResult(w io.Writer, res types.LoopResult) {
	fmt.Fprintln(w)
	if res.Completed {
		fmt.Fprintf(w, "Research complete after %d iteration(s).\n", res.IterationsRun)
	} else {
		fmt.Fprintf(w, "Research stopped after %d iteration(s): %s\n", res.IterationsRun, res.ErrorMessage)
	}
	fmt.Fprintf(w, "Phase: %s  analyzed: %d  presented: %d  rejected: %d\n",
		res.FinalPhase, res.Statistics.TotalAnalyzed, res.Statistics.TotalPresented, res.Statistics.TotalRejected)
	if res.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", res.RunID)
	}
}

func init() {
	runCmd.Flags().Int("papers", 0, "set requirements.target_papers before running (0 = keep)")
	runCmd.Flags().Bool("force", false, "allow --papers after DISCOVERY")
	runCmd.Flags().Int("iterations", 0, "maximum iterations (0 = target_papers + 6)")
	runCmd.Flags().String("agent", "", "agent to run: claude, amp, or codex (default from config)")
	runCmd.Flags().Bool("quiet", false, "do not stream agent output")

	rootCmd.AddCommand(runCmd)
}
