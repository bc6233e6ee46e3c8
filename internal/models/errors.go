// Package models defines the shared error taxonomy for Sokoflow.
package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	ErrStateNotFound     = errors.New("conversation state not found")
	ErrEmptyMessage      = errors.New("message text cannot be empty")
	ErrEmptyTenant       = errors.New("tenant_id cannot be empty")
	ErrEmptyConversation = errors.New("conversation_id cannot be empty")
	ErrUnknownTenant     = errors.New("tenant not registered")
)

// InvalidStateError reports a conversation state invariant violation. It
// always names the offending field and is never silently recovered.
type InvalidStateError struct {
	Field  string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid conversation state: field %s: %s", e.Field, e.Reason)
}

// ClassifierFailureError indicates an external classifier was unreachable or
// returned an unusable result. Callers recover via the heuristic fallback
// classifier; this error is never surfaced to the customer.
type ClassifierFailureError struct {
	Classifier string
	Err        error
}

func (e *ClassifierFailureError) Error() string {
	return fmt.Sprintf("classifier %s failed: %v", e.Classifier, e.Err)
}

func (e *ClassifierFailureError) Unwrap() error { return e.Err }

// LockHeldError indicates another worker already holds the processing lock
// for a message fingerprint. It is an expected control-flow signal: callers
// skip the message and do not retry inline.
type LockHeldError struct {
	Fingerprint string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("processing lock already held for fingerprint %s", e.Fingerprint)
}

// StageExecutionError wraps a panic or error raised inside a pipeline stage.
// The orchestrator converts it into an escalation with a generic
// customer-facing fallback message.
type StageExecutionError struct {
	Stage string
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error { return e.Err }
