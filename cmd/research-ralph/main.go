// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-ralph CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/research-ralph/internal/logging"
	"github.com/pdiddy/research-ralph/internal/project"
	"github.com/pdiddy/research-ralph/internal/secrets"
	"github.com/pdiddy/research-ralph/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is resolved once in PersistentPreRunE.
	cfg    types.Config
	logger = zap.NewNop()

	// agentEnv carries API keys from .secrets/ into the agent process.
	agentEnv []string
)

var rootCmd = &cobra.Command{
	Use:   "research-ralph",
	Short: "Drive an AI coding agent through autonomous paper research",
	Long: `research-ralph runs an external coding agent (Claude Code, Amp, or Codex)
in a loop against a research project. The project state lives in rrd.json;
the agent discovers and analyzes papers, and the loop decides after each
iteration whether to continue, retry, or stop.

A project is any directory containing rrd.json. Projects are found by path,
below the working directory, or below research_dir.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = loadConfig(); err != nil {
			return err
		}
		if logger, err = logging.New(cfg.Log, os.Stderr); err != nil {
			return err
		}

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		agentEnv = secrets.AgentEnv(s)
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./research-ralph.yaml or ~/.config/research-ralph/research-ralph.yaml)")
	rootCmd.PersistentFlags().String("research-dir", "", "directory holding research projects")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")

	_ = viper.BindPFlag("research_dir", rootCmd.PersistentFlags().Lookup("research-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	def := types.DefaultConfig()
	viper.SetDefault("research_dir", def.ResearchDir)
	viper.SetDefault("default_agent", string(def.DefaultAgent))
	viper.SetDefault("default_papers", def.DefaultPapers)
	viper.SetDefault("live_output", def.LiveOutput)
	viper.SetDefault("max_consecutive_failures", def.MaxConsecutiveFailures)
	viper.SetDefault("agent_timeout", def.AgentTimeout)
	viper.SetDefault("prompt_path", def.PromptPath)
	viper.SetDefault("log.level", def.Log.Level)
	viper.SetDefault("log.format", def.Log.Format)

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-ralph")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-ralph"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_RALPH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the layered configuration into a validated Config.
func loadConfig() (types.Config, error) {
	var c types.Config
	if err := viper.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// resolveProject maps the optional project argument to a directory.
func resolveProject(args []string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return project.Resolve(name, cwd, cfg.ResearchDir)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
