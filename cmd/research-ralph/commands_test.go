// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-ralph/internal/rrd"
	"github.com/pdiddy/research-ralph/pkg/types"
)

// execute runs the root command with args and returns its combined output.
// Flag values are reset afterwards so tests do not leak into each other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeProject(t *testing.T, doc *types.RRD) string {
	t.Helper()
	dir := t.TempDir()
	data, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rrd.json"), data, 0o644))
	return dir
}

func projectDoc(phase types.Phase, target int, pool []types.Paper, analyzed int) *types.RRD {
	return &types.RRD{
		Project: "Research: agent memory",
		Requirements: types.Requirements{
			FocusArea:    "long-term memory for LLM agents",
			Keywords:     []string{"memory", "agents"},
			TargetPapers: target,
		},
		Phase:      phase,
		PapersPool: pool,
		Statistics: types.Statistics{TotalAnalyzed: analyzed},
	}
}

func TestRunCommand_RefusesTargetChangeAfterDiscovery(t *testing.T) {
	pool := []types.Paper{
		{ID: "p1", Title: "Paper 1", Status: types.StatusPresented},
		{ID: "p2", Title: "Paper 2", Status: types.StatusPending},
	}
	dir := writeProject(t, projectDoc(types.PhaseAnalysis, 5, pool, 1))

	out, err := execute(t, "run", dir, "--papers", "50", "--quiet")
	require.ErrorIs(t, err, errTargetPapersLocked)

	assert.Contains(t, out, "Cannot change target_papers")
	assert.Contains(t, out, "Phase: ANALYSIS, Analyzed: 1")
	assert.Contains(t, out, "Current target: 5")
	assert.NotContains(t, out, "=== Iteration")
	assert.NotContains(t, out, "Research stopped")
	assert.NoFileExists(t, filepath.Join(dir, "history.db"), "no run may start")

	doc, err := rrd.NewStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Requirements.TargetPapers)
}

func TestRunCommand_AlreadyComplete(t *testing.T) {
	pool := []types.Paper{
		{ID: "p1", Title: "Paper 1", Status: types.StatusPresented},
		{ID: "p2", Title: "Paper 2", Status: types.StatusPresented},
	}
	dir := writeProject(t, projectDoc(types.PhaseComplete, 2, pool, 2))

	out, err := execute(t, "run", dir, "--papers", "0", "--quiet")
	require.NoError(t, err)

	assert.Contains(t, out, "Path:     "+dir)
	assert.Contains(t, out, "Phase:    COMPLETE")
	assert.Contains(t, out, "Research already complete!")
	assert.Contains(t, out, filepath.Join(dir, reportFile))
	assert.NotContains(t, out, "=== Iteration")
	assert.NoFileExists(t, filepath.Join(dir, "history.db"))
}

func TestPrepareRun(t *testing.T) {
	t.Run("target change in discovery", func(t *testing.T) {
		dir := writeProject(t, projectDoc(types.PhaseDiscovery, 5, nil, 0))
		var buf bytes.Buffer
		doc, err := prepareRun(&buf, rrd.NewStore(dir), 12, false)
		require.NoError(t, err)
		assert.Equal(t, 12, doc.Requirements.TargetPapers)
		assert.Equal(t, "Target papers set to 12\n", buf.String())
	})

	t.Run("forced change after discovery", func(t *testing.T) {
		dir := writeProject(t, projectDoc(types.PhaseAnalysis, 5, nil, 3))
		var buf bytes.Buffer
		doc, err := prepareRun(&buf, rrd.NewStore(dir), 8, true)
		require.NoError(t, err)
		assert.Equal(t, 8, doc.Requirements.TargetPapers)
	})

	t.Run("no change requested", func(t *testing.T) {
		dir := writeProject(t, projectDoc(types.PhaseAnalysis, 5, nil, 3))
		var buf bytes.Buffer
		doc, err := prepareRun(&buf, rrd.NewStore(dir), 0, false)
		require.NoError(t, err)
		assert.Equal(t, 5, doc.Requirements.TargetPapers)
		assert.Empty(t, buf.String())
	})

	t.Run("invalid document", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rrd.json"), []byte("{not json"), 0o644))
		_, err := prepareRun(&bytes.Buffer{}, rrd.NewStore(dir), 0, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid RRD file")
	})
}

func TestNewCommand(t *testing.T) {
	parent := t.TempDir()

	out, err := execute(t, "new", "memory", "--dir", parent, "--topic", "agent memory", "--keywords", "memory,agents")
	require.NoError(t, err)
	assert.Contains(t, out, "Research project created: "+filepath.Join(parent, "memory"))
	assert.Contains(t, out, "Target papers: 20")

	store := rrd.NewStore(filepath.Join(parent, "memory"))
	doc, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "Research: agent memory", doc.Project)
	assert.Equal(t, []string{"memory", "agents"}, doc.Requirements.Keywords)
	assert.Equal(t, 20, doc.Requirements.TargetPapers)
	assert.Equal(t, types.PhaseDiscovery, doc.Phase)
	assert.Empty(t, store.Validate())
	assert.FileExists(t, filepath.Join(parent, "memory", "progress.txt"))

	_, err = execute(t, "new", "memory", "--dir", parent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project already exists")
}

func TestNewCommand_DefaultPapersFromEnv(t *testing.T) {
	t.Setenv("RESEARCH_RALPH_DEFAULT_PAPERS", "7")
	parent := t.TempDir()

	_, err := execute(t, "new", "memory", "--dir", parent)
	require.NoError(t, err)

	doc, err := rrd.NewStore(filepath.Join(parent, "memory")).Load()
	require.NoError(t, err)
	assert.Equal(t, 7, doc.Requirements.TargetPapers)
	assert.Equal(t, "memory", doc.Requirements.FocusArea)
}

func TestCreateProject_InvalidName(t *testing.T) {
	parent := t.TempDir()
	for _, name := range []string{"", ".", "..", "a/b"} {
		t.Run(name, func(t *testing.T) {
			_, err := createProject(parent, name, "", nil, 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid project name")
		})
	}
}
