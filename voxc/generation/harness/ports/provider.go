package harnessports

import (
	"context"
	"errors"
	"fmt"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role    string // "user", "assistant"
	Content string
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // pinned system preamble, always sent first
	Messages []PromptMessage   // ordered chat history (already windowed) ending with the new user message
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling, limits and response format for one call.
type Options struct {
	Model        string
	MaxNewTokens int
	Temperature  float32
	// JSONResponse asks the collaborator for a JSON object response when supported.
	JSONResponse bool
	// TimeoutMs applies to the provider call only (not the whole turn)
	TimeoutMs int
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text  string
	Model string
	Raw   any    // raw provider payload for debugging/telemetry
	Usage *Usage // optional usage information
}

// Provider is the abstraction for the remote chat-completion collaborator.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}

// ErrEmptyCompletion is returned by providers when the collaborator answered with no choices or no text.
var ErrEmptyCompletion = errors.New("collaborator returned an empty completion")

// ProviderError carries the collaborator's HTTP status so callers can tell rejections from transport faults.
type ProviderError struct {
	Collaborator string
	StatusCode   int
	Message      string
	Err          error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Collaborator, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Collaborator, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Rejected reports whether the collaborator refused the request (4xx).
func (e *ProviderError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
