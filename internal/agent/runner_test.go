// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-ralph/pkg/types"
)

// mockExecutor records the last command and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool
	lines         []string
	exitCode      int
	err           error
	runFunc       func(ctx context.Context, cmd command, onLine func(string)) (int, error)

	calls []command
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) Run(ctx context.Context, cmd command, onLine func(string)) (int, error) {
	m.calls = append(m.calls, cmd)
	if m.runFunc != nil {
		return m.runFunc(ctx, cmd, onLine)
	}
	for _, l := range m.lines {
		onLine(l)
	}
	return m.exitCode, m.err
}

func writePrompt(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mustRunner(t *testing.T, kind types.AgentKind, m *mockExecutor, opts ...Option) *Runner {
	t.Helper()
	r, err := newRunner(kind, m, opts...)
	require.NoError(t, err)
	return r
}

// --- construction ---

func TestNewRunner_UnknownKind(t *testing.T) {
	_, err := NewRunner(types.AgentKind("gemini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini")
}

func TestIsAvailable(t *testing.T) {
	m := &mockExecutor{availableBins: map[string]bool{"amp": true}}

	assert.True(t, mustRunner(t, types.AgentAmp, m).IsAvailable())
	assert.False(t, mustRunner(t, types.AgentClaude, m).IsAvailable())
}

func TestInstallHint(t *testing.T) {
	for _, kind := range types.AgentKinds {
		r := mustRunner(t, kind, &mockExecutor{})
		assert.True(t, strings.HasPrefix(r.InstallHint(), "Install from: https://"), kind)
		assert.Equal(t, string(kind), r.profile.bin)
	}
}

// --- command construction ---

func TestRun_CommandPerProfile(t *testing.T) {
	promptPath := writePrompt(t, "Research in {{RESEARCH_DIR}} and log to {{RESEARCH_DIR}}/progress.txt")
	wantPrompt := "Research in /work/proj and log to /work/proj/progress.txt"

	tests := []struct {
		kind      types.AgentKind
		wantStdin string
		check     func(t *testing.T, args []string)
	}{
		{
			kind: types.AgentClaude,
			check: func(t *testing.T, args []string) {
				assert.Equal(t, []string{
					"-p", wantPrompt,
					"--dangerously-skip-permissions",
					"--allowedTools", "Bash,Read,Edit,Write,Grep,Glob,WebFetch,WebSearch",
				}, args)
			},
		},
		{
			kind:      types.AgentAmp,
			wantStdin: wantPrompt,
			check: func(t *testing.T, args []string) {
				assert.Equal(t, []string{"--dangerously-allow-all"}, args)
			},
		},
		{
			kind:      types.AgentCodex,
			wantStdin: wantPrompt,
			check: func(t *testing.T, args []string) {
				require.Len(t, args, 5)
				assert.Equal(t, []string{"exec", "--dangerously-bypass-approvals-and-sandbox", "--output-last-message"}, args[:3])
				assert.NotEmpty(t, args[3])
				assert.Equal(t, "-", args[4])
			},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			m := &mockExecutor{}
			r := mustRunner(t, tt.kind, m, WithEnv([]string{"ANTHROPIC_API_KEY=k"}))

			res := r.Run(context.Background(), "/work/proj", promptPath, time.Minute)
			require.True(t, res.Success)

			require.Len(t, m.calls, 1)
			cmd := m.calls[0]
			assert.Equal(t, string(tt.kind), cmd.Name)
			assert.Equal(t, tt.wantStdin, cmd.Stdin)
			assert.Equal(t, []string{"ANTHROPIC_API_KEY=k"}, cmd.Env)
			tt.check(t, cmd.Args)
		})
	}
}

func TestRun_CodexLastMessageAppendedAndRemoved(t *testing.T) {
	var lastMessagePath string
	m := &mockExecutor{
		runFunc: func(_ context.Context, cmd command, onLine func(string)) (int, error) {
			lastMessagePath = cmd.Args[3]
			onLine("working")
			require.NoError(t, os.WriteFile(lastMessagePath, []byte("final answer "+types.CompletionSignal), 0o644))
			return 0, nil
		},
	}
	r := mustRunner(t, types.AgentCodex, m)

	res := r.Run(context.Background(), "/work", writePrompt(t, "go"), time.Minute)
	require.True(t, res.Success)
	assert.Equal(t, "working\nfinal answer "+types.CompletionSignal, res.Output)
	assert.True(t, res.IsComplete())
	assert.NoFileExists(t, lastMessagePath)
}

func TestRun_CodexLastMessageRemovedOnFailure(t *testing.T) {
	var lastMessagePath string
	m := &mockExecutor{
		runFunc: func(_ context.Context, cmd command, _ func(string)) (int, error) {
			lastMessagePath = cmd.Args[3]
			return 0, errors.New("exec: no such file")
		},
	}
	r := mustRunner(t, types.AgentCodex, m)

	res := r.RunStreaming(context.Background(), "/work", writePrompt(t, "go"), func(string) {})
	assert.False(t, res.Success)
	require.NotEmpty(t, lastMessagePath)
	assert.NoFileExists(t, lastMessagePath)
}

// --- outcomes ---

func TestRun_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		exec     *mockExecutor
		want     types.AgentResult
		noPrompt bool
	}{
		{
			name: "success",
			exec: &mockExecutor{lines: []string{"analyzed 2 papers", types.CompletionSignal}},
			want: types.AgentResult{
				Output:   "analyzed 2 papers\n" + types.CompletionSignal + "\n",
				ExitCode: 0,
				Success:  true,
			},
		},
		{
			name: "non-zero exit is classified",
			exec: &mockExecutor{lines: []string{"Error 403 Forbidden"}, exitCode: 1},
			want: types.AgentResult{
				Output:    "Error 403 Forbidden\n",
				ExitCode:  1,
				ErrorKind: types.ErrorForbidden,
			},
		},
		{
			name: "launch failure",
			exec: &mockExecutor{err: errors.New("exec: \"claude\": permission denied")},
			want: types.AgentResult{
				Output:    "exec: \"claude\": permission denied",
				ExitCode:  1,
				ErrorKind: types.ErrorUnknown,
			},
		},
		{
			name:     "missing prompt",
			exec:     &mockExecutor{},
			noPrompt: true,
			want: types.AgentResult{
				ExitCode:  1,
				ErrorKind: types.ErrorUnknown,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promptPath := writePrompt(t, "prompt")
			if tt.noPrompt {
				promptPath = filepath.Join(t.TempDir(), "missing.md")
			}
			r := mustRunner(t, types.AgentClaude, tt.exec)

			got := r.Run(context.Background(), "/work", promptPath, time.Minute)
			if tt.noPrompt {
				assert.Contains(t, got.Output, "prompt file not found")
				assert.Empty(t, tt.exec.calls)
				got.Output = ""
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	m := &mockExecutor{
		runFunc: func(ctx context.Context, _ command, onLine func(string)) (int, error) {
			onLine("partial")
			<-ctx.Done()
			return -1, ctx.Err()
		},
	}
	r := mustRunner(t, types.AgentAmp, m)

	got := r.Run(context.Background(), "/work", writePrompt(t, "p"), 10*time.Millisecond)
	assert.Equal(t, types.AgentResult{
		Output:    "Agent timed out",
		ExitCode:  ExitCodeTimeout,
		ErrorKind: types.ErrorTimeout,
	}, got)
}

func TestRun_CancelledIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &mockExecutor{
		runFunc: func(ctx context.Context, _ command, _ func(string)) (int, error) {
			cancel()
			return -1, ctx.Err()
		},
	}
	r := mustRunner(t, types.AgentClaude, m)

	got := r.Run(ctx, "/work", writePrompt(t, "p"), time.Minute)
	assert.False(t, got.Success)
	assert.Equal(t, types.ErrorUnknown, got.ErrorKind)
	assert.Equal(t, 1, got.ExitCode)
}

func TestRunStreaming_DeliversLinesInOrder(t *testing.T) {
	m := &mockExecutor{lines: []string{"one", "two", "three"}, exitCode: 2}
	r := mustRunner(t, types.AgentAmp, m)

	var seen []string
	got := r.RunStreaming(context.Background(), "/work", writePrompt(t, "p"), func(line string) {
		seen = append(seen, line)
	})

	assert.Equal(t, []string{"one", "two", "three"}, seen)
	assert.Equal(t, "one\ntwo\nthree\n", got.Output)
	assert.Equal(t, 2, got.ExitCode)
	assert.False(t, got.Success)
	assert.Equal(t, types.ErrorUnknown, got.ErrorKind)
}

func TestRunAndRunStreaming_Equivalent(t *testing.T) {
	promptPath := writePrompt(t, "p")
	lines := []string{"HTTP 429 Too Many Requests", "giving up"}

	blocking := mustRunner(t, types.AgentClaude, &mockExecutor{lines: lines, exitCode: 1}).
		Run(context.Background(), "/work", promptPath, time.Minute)
	streaming := mustRunner(t, types.AgentClaude, &mockExecutor{lines: lines, exitCode: 1}).
		RunStreaming(context.Background(), "/work", promptPath, func(string) {})

	assert.Equal(t, blocking, streaming)
	assert.Equal(t, types.ErrorRateLimit, blocking.ErrorKind)
}

// --- osExecutor ---

func TestReadLines(t *testing.T) {
	var got []string
	readLines(strings.NewReader("a\r\nb\n\nlast"), func(l string) { got = append(got, l) })
	assert.Equal(t, []string{"a", "b", "", "last"}, got)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestOSExecutor_CombinedOutputAndExitCode(t *testing.T) {
	requireShell(t)

	var lines []string
	code, err := (&osExecutor{}).Run(context.Background(), command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2; echo $RALPH_TEST_VAR; exit 3"},
		Env:  []string{"RALPH_TEST_VAR=from-env"},
	}, func(l string) { lines = append(lines, l) })

	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, []string{"out", "err", "from-env"}, lines)
}

func TestOSExecutor_Stdin(t *testing.T) {
	requireShell(t)

	var lines []string
	code, err := (&osExecutor{}).Run(context.Background(), command{
		Name:  "sh",
		Args:  []string{"-c", "cat"},
		Stdin: "line one\nline two\n",
	}, func(l string) { lines = append(lines, l) })

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"line one", "line two"}, lines)
}

func TestOSExecutor_DeadlineKillsProcess(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := (&osExecutor{}).Run(ctx, command{Name: "sh", Args: []string{"-c", "sleep 5"}}, func(string) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestOSExecutor_MissingBinary(t *testing.T) {
	_, err := (&osExecutor{}).Run(context.Background(), command{Name: "research-ralph-no-such-binary"}, func(string) {})
	assert.Error(t, err)
}
