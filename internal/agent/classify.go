// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"strings"
	"time"

	"github.com/pdiddy/research-ralph/pkg/types"
)

type rule struct {
	match func(lower string) bool
	kind  types.ErrorKind
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// rules are evaluated top to bottom; the first match wins.
var rules = []rule{
	{
		match: func(s string) bool { return containsAny(s, "403", "forbidden") },
		kind:  types.ErrorForbidden,
	},
	{
		match: func(s string) bool {
			return containsAny(s, "429", "too many requests") ||
				(strings.Contains(s, "rate") && strings.Contains(s, "limit"))
		},
		kind: types.ErrorRateLimit,
	},
	{
		match: func(s string) bool { return containsAny(s, "bot", "challenge", "captcha", "blocked") },
		kind:  types.ErrorBotChallenge,
	},
	{
		match: func(s string) bool { return containsAny(s, "timeout", "timed out") },
		kind:  types.ErrorTimeout,
	},
	{
		match: func(s string) bool { return containsAny(s, "network", "connection", "dns") },
		kind:  types.ErrorNetwork,
	},
}

// ClassifyError maps the combined output of a failed invocation to an
// ErrorKind by case-insensitive substring rules.
func ClassifyError(output string) types.ErrorKind {
	lower := strings.ToLower(output)
	for _, r := range rules {
		if r.match(lower) {
			return r.kind
		}
	}
	return types.ErrorUnknown
}

type retryPolicy struct {
	delay time.Duration
	retry bool
}

var retryPolicies = map[types.ErrorKind]retryPolicy{
	types.ErrorForbidden:    {0, false},
	types.ErrorBotChallenge: {0, false},
	types.ErrorRateLimit:    {30 * time.Second, true},
	types.ErrorTimeout:      {2 * time.Second, true},
	types.ErrorNetwork:      {2 * time.Second, true},
	types.ErrorUnknown:      {5 * time.Second, true},
}

// RetryDelay returns how long to wait before retrying a failure of the
// given kind and whether a retry is worthwhile at all. Kinds outside the
// table are treated as unknown.
func RetryDelay(kind types.ErrorKind) (time.Duration, bool) {
	p, ok := retryPolicies[kind]
	if !ok {
		p = retryPolicies[types.ErrorUnknown]
	}
	return p.delay, p.retry
}
