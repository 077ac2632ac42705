// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-ralph/internal/project"
	"github.com/pdiddy/research-ralph/internal/rrd"
	"github.com/pdiddy/research-ralph/pkg/types"
)

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create an empty research project in DISCOVERY",
	Long: `New writes a minimal rrd.json and progress.txt into research_dir/<name>
(or --dir/<name>). The target paper count defaults to default_papers from the
configuration. Edit rrd.json to refine the requirements before the first run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("dir")
		topic, _ := cmd.Flags().GetString("topic")
		keywords, _ := cmd.Flags().GetStringSlice("keywords")
		papers, _ := cmd.Flags().GetInt("papers")

		if parent == "" {
			parent = cfg.ResearchDir
		}
		if papers <= 0 {
			papers = cfg.DefaultPapers
		}

		dir, err := createProject(parent, args[0], topic, keywords, papers)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Research project created: %s\n", dir)
		fmt.Fprintf(out, "  Target papers: %d\n\n", papers)
		fmt.Fprintln(out, "Next step:")
		fmt.Fprintf(out, "  research-ralph run %s\n", args[0])
		return nil
	},
}

// createProject writes a fresh DISCOVERY document into parent/name.
func createProject(parent, name, topic string, keywords []string, target int) (string, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid project name %q", name)
	}
	if topic == "" {
		topic = name
	}

	dir := filepath.Join(project.ExpandHome(parent), name)
	store := rrd.NewStore(dir)
	if store.Exists() {
		return "", fmt.Errorf("project already exists: %s", store.Path())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	doc := &types.RRD{
		Project:     "Research: " + topic,
		Description: topic,
		Requirements: types.Requirements{
			FocusArea:    topic,
			Keywords:     keywords,
			TargetPapers: target,
		},
		Phase: types.PhaseDiscovery,
	}
	if err := store.Save(doc); err != nil {
		return "", err
	}
	if err := store.EnsureProgressFile(); err != nil {
		return "", err
	}
	return dir, nil
}

func init() {
	newCmd.Flags().String("dir", "", "parent directory (default: research_dir)")
	newCmd.Flags().String("topic", "", "research topic (default: the project name)")
	newCmd.Flags().StringSlice("keywords", nil, "comma-separated search keywords")
	newCmd.Flags().Int("papers", 0, "target papers (0 = default_papers from config)")

	rootCmd.AddCommand(newCmd)
}
