// ABOUTME: JSON-RPC 2.0 error object and the standard code set
// ABOUTME: Normalizes store/engine failures into the wire envelope

package rpc

import (
	"errors"

	"github.com/2389/symposium/internal/engine"
	"github.com/2389/symposium/internal/store"
)

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// invalidParams builds a -32602 error.
func invalidParams(message string) *Error {
	return &Error{Code: CodeInvalidParams, Message: message}
}

// internalError wraps an unexpected failure as -32603 with a data field so
// the underlying cause never leaks as a raw fault.
func internalError(err error) *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error", Data: err.Error()}
}

// normalizeError maps handler failures onto the wire taxonomy. Validation
// failures from the store and engine surface as invalid params; anything
// unrecognized is an internal error.
func normalizeError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrDuplicateSession),
		errors.Is(err, engine.ErrEmptyPrompt),
		errors.Is(err, engine.ErrNeedParticipants),
		errors.Is(err, engine.ErrAlreadyRunning),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrNotPaused):
		return invalidParams(err.Error())
	default:
		return internalError(err)
	}
}
