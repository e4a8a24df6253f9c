// Package uxerror translates raw errors into user-facing messages with
// recovery hints for the terminal front ends.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"agentmux/internal/adapter/tui/theme"
	"agentmux/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error for a transcript or a terminal.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", theme.SymbolBullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

// Sentinels come first so errors.Is sees through wrapping before any
// string heuristics run.
var patterns = []errorPattern{
	{
		match: is(domain.ErrUnknownAgent),
		produce: constantError("Unknown Agent", "The query was routed to an agent that is not registered.",
			[]string{"Run /agents to list registered agents", "Check the agent ids in your config"}),
	},
	{
		match: is(domain.ErrSessionNotFound),
		produce: constantError("Session Not Found", "No stored session has that id.",
			[]string{"Run /history to list recent sessions", "Check that store.enabled is true"}),
	},
	{
		match: is(domain.ErrNoProvider),
		produce: constantError("No Reasoning Provider", "Routing fell back to keyword matching because no LLM is configured.",
			[]string{"Set llm.default_provider in config", "Provide the provider api key via AGENTMUX_LLM_PROVIDER_<NAME>_API_KEY"}),
	},
	{
		match: is(domain.ErrKnowledgeNotFound),
		produce: constantError("Knowledge Base Unavailable", "The knowledge directory could not be read.",
			[]string{"Check knowledge.dir in config", "Set knowledge.backend to none to disable retrieval"}),
	},
	{
		match: is(domain.ErrTimeout),
		produce: constantError("Request Timed Out", "An agent took too long to answer.",
			[]string{"Try a narrower question", "Raise execution.responder_timeout in config"}),
	},
	{
		match:   is(domain.ErrCancelled),
		produce: constantError("Cancelled", "The request was cancelled before it finished.", nil),
	},
	{
		match:   is(domain.ErrInvalidInput),
		produce: passthrough("Invalid Input"),
	},
	{
		match:   is(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "Too many requests were sent.", []string{"Wait a moment before retrying"}),
	},

	{
		match: containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the LLM provider.",
			[]string{"Check your network connection", "Verify the provider base_url in config"}),
	},
	{
		match: containsAny("deadline exceeded", "timeout", "timed out"),
		produce: constantError("Request Timed Out", "The request took too long to complete.",
			[]string{"Try again", "Raise router.timeout or execution.responder_timeout in config"}),
	},
	{
		match: containsAny("401", "unauthorized", "invalid api key", "authentication failed", "invalid x-api-key"),
		produce: constantError("Authentication Failed", "The provider rejected the API key.",
			[]string{"Check the AGENTMUX_LLM_PROVIDER_<NAME>_API_KEY variable", "Verify the key has not expired"}),
	},
	{
		match: containsAny("429", "rate limit", "too many requests"),
		produce: constantError("Rate Limited", "Too many requests were sent to the provider.",
			[]string{"Wait a moment before retrying", "Enable llm.failover to spread load"}),
	},
	{
		match: containsAny("402", "quota", "billing", "insufficient"),
		produce: constantError("Quota Exceeded", "The provider quota or billing limit has been reached.",
			[]string{"Check the provider billing dashboard"}),
	},
}

// Humanize converts err into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with --log-level debug for more details"},
		Raw:     err.Error(),
	}
}

// FromMessage humanizes an error that only survived as text, such as
// Result.ExecutionError.
func FromMessage(msg string) FriendlyError {
	if msg == "" {
		return Humanize(nil)
	}
	return Humanize(errors.New(msg))
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: message, Hints: hints, Raw: err.Error()}
	}
}

func passthrough(title string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: err.Error(), Raw: err.Error()}
	}
}
