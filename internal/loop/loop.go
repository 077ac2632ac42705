// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package loop drives a research project to completion by invoking the
// external agent repeatedly. Each iteration corrects an inconsistent phase,
// runs the agent, and decides from the result and the reloaded document
// whether to continue, retry, or stop. All durable state lives in rrd.json;
// the loop itself only ever writes the ANALYSIS to DISCOVERY correction.
package loop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-ralph/internal/agent"
	"github.com/pdiddy/research-ralph/internal/rrd"
	"github.com/pdiddy/research-ralph/pkg/types"
)

const (
	// extraIterations is added to target_papers when no cap is given.
	extraIterations = 6

	// iterationDelay separates successful iterations that did not complete.
	iterationDelay = 2 * time.Second

	promptFile       = "prompt.md"
	errorOutputLimit = 200
)

// Invoker runs the agent once. *agent.Runner implements it.
type Invoker interface {
	IsAvailable() bool
	InstallHint() string
	Run(ctx context.Context, researchDir, promptPath string, timeout time.Duration) types.AgentResult
	RunStreaming(ctx context.Context, researchDir, promptPath string, onLine func(string)) types.AgentResult
}

// Recorder journals runs. *history.Journal implements it. Recorder failures
// are logged and never stop the loop.
type Recorder interface {
	BeginRun(ctx context.Context, agent types.AgentKind, maxIterations int) (string, error)
	RecordIteration(ctx context.Context, runID string, r types.IterationResult) error
	FinishRun(ctx context.Context, runID string, res types.LoopResult) error
}

// Loop runs the agent against one project.
type Loop struct {
	cfg        types.Config
	projectDir string
	store      *rrd.Store

	agentKind     types.AgentKind
	invoker       Invoker
	env           []string
	maxIterations int
	promptPath    string

	onIterationStart func(iteration int, phase types.Phase)
	onIterationEnd   func(result types.IterationResult)
	onOutputLine     func(line string)

	recorder Recorder
	runID    string
	logger   *zap.Logger

	// sleep waits between iterations; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithAgent overrides cfg.DefaultAgent.
func WithAgent(kind types.AgentKind) Option {
	return func(l *Loop) { l.agentKind = kind }
}

// WithMaxIterations caps the number of iterations. Zero or less means
// target_papers + 6, computed when Run starts.
func WithMaxIterations(n int) Option {
	return func(l *Loop) { l.maxIterations = n }
}

// WithPromptPath overrides the prompt template location.
func WithPromptPath(path string) Option {
	return func(l *Loop) { l.promptPath = path }
}

// WithEnv passes extra KEY=VALUE entries to the agent process.
func WithEnv(env []string) Option {
	return func(l *Loop) { l.env = append(l.env, env...) }
}

// WithInvoker replaces the agent runner.
func WithInvoker(inv Invoker) Option {
	return func(l *Loop) { l.invoker = inv }
}

// WithRecorder journals every run and iteration.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// OnIterationStart is called with the iteration index and the phase after
// correction, before the agent runs.
func OnIterationStart(fn func(iteration int, phase types.Phase)) Option {
	return func(l *Loop) { l.onIterationStart = fn }
}

// OnIterationEnd is called with every iteration result, before any sleep.
func OnIterationEnd(fn func(result types.IterationResult)) Option {
	return func(l *Loop) { l.onIterationEnd = fn }
}

// OnOutputLine receives agent output line by line when cfg.LiveOutput is
// set. Without it the agent runs blocking with cfg.AgentTimeout.
func OnOutputLine(fn func(line string)) Option {
	return func(l *Loop) { l.onOutputLine = fn }
}

// New returns a Loop for the project in projectDir. It does not read the
// document; Run and Validate do.
func New(cfg types.Config, projectDir string, opts ...Option) (*Loop, error) {
	l := &Loop{
		cfg:        cfg,
		projectDir: projectDir,
		store:      rrd.NewStore(projectDir),
		agentKind:  cfg.DefaultAgent,
		promptPath: cfg.PromptPath,
		logger:     zap.NewNop(),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.promptPath == "" {
		l.promptPath = defaultPromptPath(projectDir)
	}
	if l.invoker == nil {
		runner, err := agent.NewRunner(l.agentKind, agent.WithEnv(l.env), agent.WithLogger(l.logger))
		if err != nil {
			return nil, err
		}
		l.invoker = runner
	}
	if l.cfg.MaxConsecutiveFailures < 1 {
		l.cfg.MaxConsecutiveFailures = types.DefaultMaxConsecutiveFailures
	}
	if l.cfg.AgentTimeout <= 0 {
		l.cfg.AgentTimeout = types.DefaultAgentTimeout
	}
	l.logger = l.logger.With(zap.String("project", filepath.Base(projectDir)))
	return l, nil
}

// defaultPromptPath looks for prompt.md next to the project directory, then
// inside it. When neither exists the first candidate is returned so that
// Validate reports it.
func defaultPromptPath(projectDir string) string {
	candidates := []string{
		filepath.Join(filepath.Dir(projectDir), promptFile),
		filepath.Join(projectDir, promptFile),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[0]
}

// PromptPath returns the prompt template the agent will receive.
func (l *Loop) PromptPath() string { return l.promptPath }

// Validate checks everything Run needs before the first iteration and
// returns all problems found. An empty slice means Run can start.
func (l *Loop) Validate() []string {
	var problems []string
	problems = append(problems, l.store.Validate()...)

	if !l.invoker.IsAvailable() {
		problems = append(problems, fmt.Sprintf("Agent '%s' not found. %s", l.agentKind, l.invoker.InstallHint()))
	}
	if _, err := os.Stat(l.promptPath); err != nil {
		problems = append(problems, fmt.Sprintf("prompt.md not found: %s", l.promptPath))
	}
	return problems
}

// Run iterates until the research completes, a failure aborts it, or the
// iteration cap is reached. Expected agent failures are reported in the
// result only. The error is non-nil when the document could not be read or
// written, or ctx ended; the result then still describes the run so far.
// A project already in COMPLETE is reported as completed without starting
// the agent or journaling a run.
func (l *Loop) Run(ctx context.Context) (types.LoopResult, error) {
	if problems := l.Validate(); len(problems) > 0 {
		return types.LoopResult{
			FinalPhase:   types.PhaseDiscovery,
			ErrorMessage: strings.Join(problems, "; "),
		}, nil
	}

	doc, err := l.store.Load()
	if err != nil {
		return l.abort(0, err)
	}
	if doc.Phase == types.PhaseComplete {
		l.logger.Info("research already complete; agent not started")
		return l.result(0, true, ""), nil
	}
	maxIterations := l.maxIterations
	if maxIterations <= 0 {
		maxIterations = doc.Requirements.TargetPapers + extraIterations
	}
	if err := l.store.EnsureProgressFile(); err != nil {
		return l.abort(0, err)
	}

	l.runID = ""
	runID := l.beginRun(ctx, maxIterations)
	l.logger.Info("research loop started",
		zap.String("agent", string(l.agentKind)),
		zap.Int("max_iterations", maxIterations),
		zap.String("run_id", runID),
	)

	res, err := l.iterate(ctx, maxIterations)
	res.RunID = runID
	l.finishRun(ctx, runID, res)

	l.logger.Info("research loop finished",
		zap.Bool("completed", res.Completed),
		zap.Int("iterations", res.IterationsRun),
		zap.String("phase", string(res.FinalPhase)),
		zap.String("error", res.ErrorMessage),
	)
	return res, err
}

func (l *Loop) iterate(ctx context.Context, maxIterations int) (types.LoopResult, error) {
	consecutiveFailures := 0

	for i := 1; i <= maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return l.abort(i-1, err)
		}

		it, err := l.runIteration(ctx, i, &consecutiveFailures)
		if err != nil {
			return l.abort(i, err)
		}
		if it.IsComplete {
			return l.result(i, true, ""), nil
		}
		if !it.ShouldContinue {
			return l.result(i, false, it.ErrorMessage), nil
		}

		if i == maxIterations {
			break
		}
		delay := iterationDelay
		if !it.Success {
			delay, _ = agent.RetryDelay(it.AgentResult.ErrorKind)
		}
		if delay > 0 {
			if err := l.sleep(ctx, delay); err != nil {
				return l.abort(i, err)
			}
		}
	}

	return l.result(maxIterations, false, fmt.Sprintf("Max iterations (%d) reached.", maxIterations)), nil
}

// runIteration performs one pass. The returned error is a persistence or
// cancellation failure that ends the run.
func (l *Loop) runIteration(ctx context.Context, iteration int, consecutiveFailures *int) (types.IterationResult, error) {
	start := l.now()

	doc, err := l.store.Load()
	if err != nil {
		return types.IterationResult{}, err
	}
	if err := l.correctPhase(doc); err != nil {
		return types.IterationResult{}, err
	}
	phase := doc.Phase
	analyzedBefore := doc.Statistics.TotalAnalyzed
	fingerprintBefore, _ := l.store.Fingerprint()

	if l.onIterationStart != nil {
		l.onIterationStart(iteration, phase)
	}
	l.logger.Debug("iteration started", zap.Int("iteration", iteration), zap.String("phase", string(phase)))

	result := l.invoke(ctx)

	fingerprintAfter, _ := l.store.Fingerprint()
	it := types.IterationResult{
		Iteration:       iteration,
		AgentResult:     result,
		Phase:           phase,
		DocumentChanged: fingerprintBefore != fingerprintAfter,
	}

	if !result.Success {
		if err := ctx.Err(); err != nil {
			it.ErrorMessage = err.Error()
			it.Duration = l.now().Sub(start)
			l.endIteration(ctx, it)
			return it, err
		}
		l.handleFailure(&it, consecutiveFailures)
		it.Duration = l.now().Sub(start)
		l.endIteration(ctx, it)
		return it, nil
	}

	*consecutiveFailures = 0

	doc, err = l.store.Load()
	if err != nil {
		it.ErrorMessage = err.Error()
		it.Duration = l.now().Sub(start)
		l.endIteration(ctx, it)
		return it, err
	}
	it.Success = true
	it.Phase = doc.Phase
	it.PapersDelta = doc.Statistics.TotalAnalyzed - analyzedBefore
	it.IsComplete = isResearchComplete(result, doc)
	it.ShouldContinue = !it.IsComplete
	it.Duration = l.now().Sub(start)

	switch {
	case result.IsComplete() && !it.IsComplete:
		l.logger.Warn("completion signal ignored: work outstanding",
			zap.Int("iteration", iteration),
			zap.Int("outstanding", doc.OutstandingCount()),
			zap.Int("analyzed", doc.Statistics.TotalAnalyzed),
		)
	case !result.IsComplete() && result.ClaimsComplete():
		l.logger.Info("agent reports completion without the completion signal", zap.Int("iteration", iteration))
	}
	if !it.DocumentChanged {
		l.logger.Warn("agent did not modify rrd.json", zap.Int("iteration", iteration))
	}

	l.endIteration(ctx, it)
	return it, nil
}

// correctPhase moves an ANALYSIS project back to DISCOVERY while its pool is
// smaller than target_papers, and persists the change immediately.
func (l *Loop) correctPhase(doc *types.RRD) error {
	if doc.Phase != types.PhaseAnalysis || len(doc.PapersPool) >= doc.Requirements.TargetPapers {
		return nil
	}
	l.logger.Info("phase corrected to DISCOVERY",
		zap.Int("pool_size", len(doc.PapersPool)),
		zap.Int("target_papers", doc.Requirements.TargetPapers),
	)
	doc.Phase = types.PhaseDiscovery
	return l.store.Save(doc)
}

func (l *Loop) invoke(ctx context.Context) types.AgentResult {
	if l.cfg.LiveOutput && l.onOutputLine != nil {
		return l.invoker.RunStreaming(ctx, l.projectDir, l.promptPath, l.onOutputLine)
	}
	return l.invoker.Run(ctx, l.projectDir, l.promptPath, l.cfg.AgentTimeout)
}

func (l *Loop) handleFailure(it *types.IterationResult, consecutiveFailures *int) {
	*consecutiveFailures++

	kind := it.AgentResult.ErrorKind
	if kind == "" {
		kind = agent.ClassifyError(it.AgentResult.Output)
		it.AgentResult.ErrorKind = kind
	}
	_, retry := agent.RetryDelay(kind)

	tooMany := *consecutiveFailures >= l.cfg.MaxConsecutiveFailures
	it.ShouldContinue = retry && !tooMany
	it.ErrorMessage = fmt.Sprintf("%s: %s", kind, truncate(it.AgentResult.Output, errorOutputLimit))
	if tooMany {
		it.ErrorMessage = fmt.Sprintf("Too many consecutive failures (%d)", *consecutiveFailures)
	}

	l.logger.Warn("agent invocation failed",
		zap.Int("iteration", it.Iteration),
		zap.String("error_kind", string(kind)),
		zap.Int("exit_code", it.AgentResult.ExitCode),
		zap.Int("consecutive_failures", *consecutiveFailures),
		zap.Bool("retry", it.ShouldContinue),
	)
}

// isResearchComplete requires an explicit completion (signal or COMPLETE
// phase), no pending or analyzing papers, and at least one analyzed paper.
func isResearchComplete(result types.AgentResult, doc *types.RRD) bool {
	declared := result.IsComplete() || doc.Phase == types.PhaseComplete
	return declared && doc.OutstandingCount() == 0 && doc.Statistics.TotalAnalyzed > 0
}

func (l *Loop) endIteration(ctx context.Context, it types.IterationResult) {
	if l.recorder != nil && l.runID != "" {
		if err := l.recorder.RecordIteration(context.WithoutCancel(ctx), l.runID, it); err != nil {
			l.logger.Warn("journal: recording iteration failed", zap.Error(err))
		}
	}
	if l.onIterationEnd != nil {
		l.onIterationEnd(it)
	}
}

// result builds the final LoopResult from a fresh load of the document.
func (l *Loop) result(iterations int, completed bool, message string) types.LoopResult {
	res := types.LoopResult{
		Completed:     completed,
		IterationsRun: iterations,
		FinalPhase:    types.PhaseDiscovery,
		ErrorMessage:  message,
	}
	if doc, err := l.store.Load(); err == nil {
		res.FinalPhase = doc.Phase
		res.Statistics = doc.Statistics
	}
	return res
}

func (l *Loop) abort(iterations int, err error) (types.LoopResult, error) {
	l.logger.Error("research loop aborted", zap.Int("iteration", iterations), zap.Error(err))
	return l.result(iterations, false, err.Error()), err
}

func (l *Loop) beginRun(ctx context.Context, maxIterations int) string {
	if l.recorder == nil {
		return ""
	}
	id, err := l.recorder.BeginRun(ctx, l.agentKind, maxIterations)
	if err != nil {
		l.logger.Warn("journal: starting run failed", zap.Error(err))
		return ""
	}
	l.runID = id
	return id
}

func (l *Loop) finishRun(ctx context.Context, runID string, res types.LoopResult) {
	if l.recorder == nil || runID == "" {
		return
	}
	// Recorded even when ctx is already cancelled.
	if err := l.recorder.FinishRun(context.WithoutCancel(ctx), runID, res); err != nil {
		l.logger.Warn("journal: finishing run failed", zap.Error(err))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
