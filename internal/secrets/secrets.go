// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Keys the agents understand are handed to the agent process environment by
// AgentEnv: anthropic-api-key, openai-api-key, amp-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// agentEnvVars maps secret file names to the environment variables read by
// the agent CLIs.
var agentEnvVars = map[string]string{
	"anthropic-api-key": "ANTHROPIC_API_KEY",
	"openai-api-key":    "OPENAI_API_KEY",
	"amp-api-key":       "AMP_API_KEY",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// AgentEnv returns KEY=VALUE entries for the secrets the agent CLIs read,
// sorted by variable name. Variables already set in the environment are
// left to the environment.
func AgentEnv(secrets map[string]string) []string {
	var env []string
	for name, value := range secrets {
		envVar, ok := agentEnvVars[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(envVar); set {
			continue
		}
		env = append(env, envVar+"="+value)
	}
	sort.Strings(env)
	return env
}
