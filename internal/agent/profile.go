// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import "github.com/pdiddy/research-ralph/pkg/types"

const claudeAllowedTools = "Bash,Read,Edit,Write,Grep,Glob,WebFetch,WebSearch"

// profile describes how one agent CLI is launched. Profiles differ only in
// binary name, argument template, how the prompt is delivered, and whether
// a last-message file must be read after exit.
type profile struct {
	bin  string
	hint string

	// promptOnStdin feeds the prompt on standard input instead of argv.
	promptOnStdin bool

	// lastMessageFile makes the runner create a temp file, pass its path to
	// args, and append its contents to the captured output after exit.
	lastMessageFile bool

	args func(prompt, lastMessagePath string) []string
}

var profiles = map[types.AgentKind]profile{
	types.AgentClaude: {
		bin:  "claude",
		hint: "Install from: https://claude.ai/code",
		args: func(prompt, _ string) []string {
			return []string{
				"-p", prompt,
				"--dangerously-skip-permissions",
				"--allowedTools", claudeAllowedTools,
			}
		},
	},
	types.AgentAmp: {
		bin:           "amp",
		hint:          "Install from: https://ampcode.com",
		promptOnStdin: true,
		args: func(_, _ string) []string {
			return []string{"--dangerously-allow-all"}
		},
	},
	types.AgentCodex: {
		bin:             "codex",
		hint:            "Install from: https://openai.com/codex",
		promptOnStdin:   true,
		lastMessageFile: true,
		args: func(_, lastMessagePath string) []string {
			return []string{
				"exec",
				"--dangerously-bypass-approvals-and-sandbox",
				"--output-last-message", lastMessagePath,
				"-",
			}
		},
	},
}
