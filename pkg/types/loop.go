// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// IterationResult describes one pass of the research loop.
type IterationResult struct {
	Iteration   int         `json:"iteration" yaml:"iteration"`
	Success     bool        `json:"success" yaml:"success"`
	AgentResult AgentResult `json:"agent_result" yaml:"agent_result"`

	// Phase is the phase after the iteration (the corrected phase on failure).
	Phase Phase `json:"phase" yaml:"phase"`

	// PapersDelta is the change in statistics.total_analyzed.
	PapersDelta int `json:"papers_delta" yaml:"papers_delta"`

	ShouldContinue bool   `json:"should_continue" yaml:"should_continue"`
	IsComplete     bool   `json:"is_complete" yaml:"is_complete"`
	ErrorMessage   string `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	// DocumentChanged reports whether rrd.json differed after the agent ran.
	DocumentChanged bool `json:"document_changed" yaml:"document_changed"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// LoopResult is the single value a loop run returns.
type LoopResult struct {
	Completed     bool       `json:"completed" yaml:"completed"`
	IterationsRun int        `json:"iterations_run" yaml:"iterations_run"`
	FinalPhase    Phase      `json:"final_phase" yaml:"final_phase"`
	Statistics    Statistics `json:"statistics" yaml:"statistics"`
	ErrorMessage  string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	// RunID identifies the journal entry for this run, when journaling is on.
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}
