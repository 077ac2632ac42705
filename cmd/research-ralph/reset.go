// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-ralph/internal/rrd"
)

var resetCmd = &cobra.Command{
	Use:   "reset [project]",
	Short: "Back up a project and return it to DISCOVERY",
	Long: `Reset copies rrd.json and progress.txt to timestamped backups, then
clears the paper pool, insights, and statistics and starts a fresh progress
log. Requirements and configuration are kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveProject(args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Fprintf(out, "Reset %s? All papers and insights will be cleared. [y/N] ", filepath.Base(dir))
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		backup, err := rrd.NewStore(dir).Reset()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Backup written to %s\n", backup)
		fmt.Fprintln(out, "Project reset to DISCOVERY.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	rootCmd.AddCommand(resetCmd)
}
