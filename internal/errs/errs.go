// Package errs defines the sentinel errors shared across the pipeline.
// Callers classify failures with errors.Is rather than inspecting message
// text.
package errs

import "errors"

var (
	// ErrValidation indicates missing or malformed request input. It is
	// raised before any external call is attempted.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound indicates a referenced notebook or knowledge item does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrProvider indicates an embedding, LLM, reranker, or vector index
	// call failed.
	ErrProvider = errors.New("provider call failed")

	// ErrCredentials indicates provider credentials are missing or
	// rejected. Surfaced separately from ErrProvider so callers can show
	// a user-actionable message.
	ErrCredentials = errors.New("API credentials not configured")
)
