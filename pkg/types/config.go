// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

const (
	DefaultAgentTimeout           = 10 * time.Minute
	DefaultPapers                 = 20
	DefaultMaxConsecutiveFailures = 3
)

// LogConfig holds settings for the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format selects the encoder: console or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config is the application configuration. It is resolved once by the CLI
// (flags, environment, config file) and passed to every component that
// needs it; components never load configuration on their own.
type Config struct {
	// ResearchDir is where research projects are looked up by name.
	ResearchDir string `json:"research_dir" yaml:"research_dir" mapstructure:"research_dir"`

	// DefaultAgent is the agent used when none is given on the command line.
	DefaultAgent AgentKind `json:"default_agent" yaml:"default_agent" mapstructure:"default_agent"`

	// DefaultPapers is the target paper count for new projects.
	DefaultPapers int `json:"default_papers" yaml:"default_papers" mapstructure:"default_papers"`

	// LiveOutput streams agent output line by line while it runs.
	LiveOutput bool `json:"live_output" yaml:"live_output" mapstructure:"live_output"`

	// MaxConsecutiveFailures aborts the loop after this many failed
	// iterations in a row.
	MaxConsecutiveFailures int `json:"max_consecutive_failures" yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`

	// AgentTimeout bounds a single blocking agent invocation.
	AgentTimeout time.Duration `json:"agent_timeout" yaml:"agent_timeout" mapstructure:"agent_timeout"`

	// PromptPath is the research prompt template. Empty means prompt.md
	// next to the project directory.
	PromptPath string `json:"prompt_path,omitempty" yaml:"prompt_path,omitempty" mapstructure:"prompt_path"`

	Log LogConfig `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ResearchDir:            "~/research",
		DefaultAgent:           AgentClaude,
		DefaultPapers:          DefaultPapers,
		LiveOutput:             true,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		AgentTimeout:           DefaultAgentTimeout,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if !c.DefaultAgent.Valid() {
		return fmt.Errorf("invalid default_agent %q: must be claude, amp, or codex", c.DefaultAgent)
	}
	if c.DefaultPapers < 1 {
		return fmt.Errorf("default_papers must be >= 1, got %d", c.DefaultPapers)
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be >= 1, got %d", c.MaxConsecutiveFailures)
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("agent_timeout must be positive, got %v", c.AgentTimeout)
	}
	return nil
}
