// ABOUTME: Model Call Gateway contract consumed by the orchestration engine
// ABOUTME: Defines the call request/response shapes and typed, retryability-aware errors

package model

import (
	"context"
	"errors"
	"fmt"
)

// Message roles on the wire to a provider. The system prompt travels on its
// own CallRequest field, never as a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one history entry sent to a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallRequest carries everything a provider needs for one completion.
type CallRequest struct {
	Provider     string
	Model        string
	Messages     []ChatMessage
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CallResponse is a successful completion.
type CallResponse struct {
	Content string
	Usage   Usage
}

// Gateway is the opaque model-call capability: send a prompt plus context,
// receive text and usage, or fail. Provider HTTP clients live behind this
// interface and are not part of this repository.
type Gateway interface {
	Complete(ctx context.Context, req CallRequest) (*CallResponse, error)
}

// Error is a typed model call failure carrying retryability hints.
type Error struct {
	Provider  string
	Operation string
	Status    int // provider HTTP status when known, 0 otherwise
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Provider, e.Operation)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether an error should be retried. Typed gateway
// errors carry an explicit hint; context cancellation never retries;
// anything untyped (transport-level) is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var modelErr *Error
	if errors.As(err, &modelErr) {
		return modelErr.Retryable
	}
	return true
}

// Transient wraps an error as a retryable gateway failure.
func Transient(provider, operation string, err error) *Error {
	return &Error{Provider: provider, Operation: operation, Retryable: true, Err: err}
}

// Terminal wraps an error as a non-retryable gateway failure
// (authentication, quota, malformed request).
func Terminal(provider, operation string, err error) *Error {
	return &Error{Provider: provider, Operation: operation, Retryable: false, Err: err}
}
