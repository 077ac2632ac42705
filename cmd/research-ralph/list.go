// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-ralph/internal/project"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List research projects in the working directory and research_dir",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		infos, err := project.List(cwd, cfg.ResearchDir)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		return writeProjects(cmd.OutOrStdout(), infos, jsonOutput)
	},
}

func writeProjects(w io.Writer, infos []project.Info, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No research projects found.")
		return nil
	}

	fmt.Fprintf(w, "%-30s  %-14s  %-9s  %-7s  %s\n", "Project", "Phase", "Progress", "Pending", "Modified")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, p := range infos {
		name := p.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		progress := fmt.Sprintf("%d/%d", p.Analyzed, p.Target)
		fmt.Fprintf(w, "%-30s  %-14s  %-9s  %-7d  %s\n",
			name, p.Phase, progress, p.Pending, p.ModTime.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\n%d projects\n", len(infos))
	return nil
}

func init() {
	listCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(listCmd)
}
