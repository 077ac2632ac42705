// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"regexp"
	"strings"
)

// AgentKind identifies the external agent CLI driven by the loop.
type AgentKind string

const (
	AgentClaude AgentKind = "claude"
	AgentAmp    AgentKind = "amp"
	AgentCodex  AgentKind = "codex"
)

// AgentKinds lists the supported agents in display order.
var AgentKinds = []AgentKind{AgentClaude, AgentAmp, AgentCodex}

// Valid reports whether k names a supported agent.
func (k AgentKind) Valid() bool {
	for _, known := range AgentKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrorKind classifies a failed agent invocation.
type ErrorKind string

const (
	ErrorForbidden    ErrorKind = "forbidden"
	ErrorRateLimit    ErrorKind = "rate_limit"
	ErrorBotChallenge ErrorKind = "bot_challenge"
	ErrorTimeout      ErrorKind = "timeout"
	ErrorNetwork      ErrorKind = "network"
	ErrorUnknown      ErrorKind = "unknown"
)

// CompletionSignal is the literal marker an agent prints when it believes
// all research work is finished.
const CompletionSignal = "<promise>COMPLETE</promise>"

// AgentResult is the outcome of one agent invocation. Failures are carried
// here as values, never as Go errors.
type AgentResult struct {
	// Output is the combined stdout/stderr of the agent process.
	Output string `json:"output" yaml:"output"`

	// ExitCode is the process exit code (124 on timeout).
	ExitCode int `json:"exit_code" yaml:"exit_code"`

	// Success is true iff the process exited with code 0.
	Success bool `json:"success" yaml:"success"`

	// ErrorKind is set for failed invocations; empty when unclassified.
	ErrorKind ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// IsComplete reports whether the output carries the completion signal.
func (r AgentResult) IsComplete() bool {
	return strings.Contains(r.Output, CompletionSignal)
}

var (
	completionPhrases = []*regexp.Regexp{
		regexp.MustCompile(`research.*complete`),
		regexp.MustCompile(`all.*papers.*analyzed`),
		regexp.MustCompile(`research is complete`),
	}
	negationPhrases = []*regexp.Regexp{
		regexp.MustCompile(`not.*complete`),
		regexp.MustCompile(`isn't complete`),
		regexp.MustCompile(`is not complete`),
		regexp.MustCompile(`aren't.*analyzed`),
		regexp.MustCompile(`not.*analyzed`),
	}
)

// ClaimsComplete reports whether the output says in plain English that the
// research is done, without also negating it. It never triggers completion
// on its own.
func (r AgentResult) ClaimsComplete() bool {
	lower := strings.ToLower(r.Output)
	claimed := false
	for _, re := range completionPhrases {
		if re.MatchString(lower) {
			claimed = true
			break
		}
	}
	if !claimed {
		return false
	}
	for _, re := range negationPhrases {
		if re.MatchString(lower) {
			return false
		}
	}
	return true
}
