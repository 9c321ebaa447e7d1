package chat

import (
	"fmt"

	"github.com/aionmedia/aion/internal/memory"
)

// ErrNotFound is returned when a conversation, fact or setting does not exist
// (or is not visible to the requesting user).
var ErrNotFound = memory.ErrNotFound

// ValidationError rejects malformed caller input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError means the service cannot call the model, e.g. no credential anywhere.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Reason }

// GenerationError wraps a failed model call. The user message is already persisted.
type GenerationError struct {
	Err        error
	StatusCode int
	Retryable  bool
}

func (e *GenerationError) Error() string { return "generate response: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// StorageError wraps a relational store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
