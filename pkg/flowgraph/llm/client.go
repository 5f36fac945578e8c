// Package llm provides completion clients used by graph nodes.
//
// Nodes depend on the Client interface. Gemini talks to the Gemini API
// through google.golang.org/genai, ClaudeCLI shells out to a local claude
// binary, and MockClient scripts responses for tests.
//
// Every provider failure is returned as an *Error. Underlying causes are
// wrapped with the flowgraph errors package so callers can ask
// errors.Categorize whether a failure was transient, permanent, or
// canceled.
package llm

import (
	"context"
	"fmt"
)

// Client produces completions.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Error is a failed provider call.
type Error struct {
	Op       string
	Provider string
	Err      error
}

// NewError wraps err as a failure of op on provider.
func NewError(provider, op string, err error) *Error {
	return &Error{Op: op, Provider: provider, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}
