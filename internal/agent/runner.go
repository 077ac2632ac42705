// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent launches the external research agent (Claude Code, Amp or
// Codex CLI) with a prepared prompt and reports the outcome as a value.
// Invocation failures never surface as Go errors; they are captured in
// types.AgentResult and classified for the retry policy.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-ralph/pkg/types"
)

const (
	// PromptPlaceholder is replaced by the research directory in the prompt.
	PromptPlaceholder = "{{RESEARCH_DIR}}"

	// ExitCodeTimeout is reported when an invocation exceeds its timeout.
	ExitCodeTimeout = 124

	exitCodeLaunchFailure = 1
)

// command is one fully prepared agent invocation.
type command struct {
	Name  string
	Args  []string
	Stdin string
	Env   []string
}

// executor abstracts process execution for testing.
type executor interface {
	LookPath(file string) (string, error)

	// Run starts cmd, calls onLine for every line of combined
	// stdout/stderr in the calling goroutine, and returns the exit code once
	// the process has exited and its output is drained. A non-nil error
	// means the process could not be started or ctx ended first.
	Run(ctx context.Context, cmd command, onLine func(string)) (int, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Run(ctx context.Context, c command, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	out, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// A grandchild holding the pipe open must not outlive the context.
	stop := context.AfterFunc(ctx, func() { out.Close() })
	defer stop()

	readLines(out, onLine)

	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if waitErr != nil {
		return -1, waitErr
	}
	return 0, nil
}

// readLines delivers each line of r without its trailing newline. A final
// line without a newline is delivered too. Read errors end the stream.
func readLines(r io.Reader, onLine func(string)) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			onLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// Runner invokes one agent profile.
type Runner struct {
	kind    types.AgentKind
	profile profile
	exec    executor
	env     []string
	logger  *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithEnv appends KEY=VALUE entries to the agent process environment.
func WithEnv(env []string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner returns a Runner for kind.
func NewRunner(kind types.AgentKind, opts ...Option) (*Runner, error) {
	return newRunner(kind, &osExecutor{}, opts...)
}

func newRunner(kind types.AgentKind, exec executor, opts ...Option) (*Runner, error) {
	p, ok := profiles[kind]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q: must be claude, amp, or codex", kind)
	}
	r := &Runner{
		kind:    kind,
		profile: p,
		exec:    exec,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// IsAvailable reports whether the agent binary is on PATH.
func (r *Runner) IsAvailable() bool {
	_, err := r.exec.LookPath(r.profile.bin)
	return err == nil
}

// InstallHint tells the user where to get the agent CLI.
func (r *Runner) InstallHint() string { return r.profile.hint }

// Run invokes the agent and blocks until it exits or timeout elapses. The
// output is captured in full and returned in the result.
func (r *Runner) Run(ctx context.Context, researchDir, promptPath string, timeout time.Duration) types.AgentResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.invoke(ctx, researchDir, promptPath, nil)
}

// RunStreaming invokes the agent and calls onLine synchronously for every
// output line as it is produced. The result is returned after the process
// has exited and all output has been delivered. Only ctx bounds the run.
func (r *Runner) RunStreaming(ctx context.Context, researchDir, promptPath string, onLine func(string)) types.AgentResult {
	return r.invoke(ctx, researchDir, promptPath, onLine)
}

func (r *Runner) invoke(ctx context.Context, researchDir, promptPath string, onLine func(string)) types.AgentResult {
	prompt, err := renderPrompt(promptPath, researchDir)
	if err != nil {
		return failure(err.Error(), exitCodeLaunchFailure, types.ErrorUnknown)
	}

	var lastMessagePath string
	if r.profile.lastMessageFile {
		f, err := os.CreateTemp("", "research-ralph-last-message-*.txt")
		if err != nil {
			return failure(fmt.Sprintf("creating last message file: %v", err), exitCodeLaunchFailure, types.ErrorUnknown)
		}
		lastMessagePath = f.Name()
		f.Close()
		defer os.Remove(lastMessagePath)
	}

	cmd := command{
		Name: r.profile.bin,
		Args: r.profile.args(prompt, lastMessagePath),
		Env:  r.env,
	}
	if r.profile.promptOnStdin {
		cmd.Stdin = prompt
	}

	r.logger.Debug("launching agent",
		zap.String("agent", string(r.kind)),
		zap.String("research_dir", researchDir),
		zap.Bool("streaming", onLine != nil),
	)

	var out strings.Builder
	exitCode, err := r.exec.Run(ctx, cmd, func(line string) {
		out.WriteString(line)
		out.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.logger.Warn("agent timed out", zap.String("agent", string(r.kind)))
			return failure("Agent timed out", ExitCodeTimeout, types.ErrorTimeout)
		}
		r.logger.Warn("agent launch failed", zap.String("agent", string(r.kind)), zap.Error(err))
		return failure(err.Error(), exitCodeLaunchFailure, types.ErrorUnknown)
	}

	if lastMessagePath != "" {
		if data, err := os.ReadFile(lastMessagePath); err == nil {
			out.Write(data)
		}
	}

	result := types.AgentResult{
		Output:   out.String(),
		ExitCode: exitCode,
		Success:  exitCode == 0,
	}
	if !result.Success {
		result.ErrorKind = ClassifyError(result.Output)
	}
	r.logger.Debug("agent exited",
		zap.String("agent", string(r.kind)),
		zap.Int("exit_code", exitCode),
		zap.String("error_kind", string(result.ErrorKind)),
	)
	return result
}

func failure(output string, exitCode int, kind types.ErrorKind) types.AgentResult {
	return types.AgentResult{
		Output:    output,
		ExitCode:  exitCode,
		Success:   false,
		ErrorKind: kind,
	}
}

// renderPrompt reads the prompt template and substitutes the research
// directory for every occurrence of PromptPlaceholder.
func renderPrompt(promptPath, researchDir string) (string, error) {
	data, err := os.ReadFile(promptPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("prompt file not found: %s", promptPath)
		}
		return "", fmt.Errorf("reading prompt %s: %w", promptPath, err)
	}
	return strings.ReplaceAll(string(data), PromptPlaceholder, researchDir), nil
}
