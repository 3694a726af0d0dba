// Package errors provides the pipeline's unified typed error taxonomy.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error along the propagation axis the orchestrator
// cares about: does it retry, skip, or abort the phase.
type Kind string

const (
	Transient Kind = "transient"
	NotFound Kind = "not_found"
	Forbidden Kind = "forbidden"
	ParseError Kind = "parse_error"
	SchemaViolation Kind = "schema_violation"
	CircuitOpen Kind = "circuit_open"
	ConfigError Kind = "config_error"
	Internal Kind = "internal"
)

// PipelineError is a structured error carrying the kind, a human message,
// free-form details for structured logging, and the wrapped cause.
type PipelineError struct {
	Kind Kind `json:"kind"`
	Message string `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err error `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair and returns the same error for chaining.
func (e *PipelineError) WithDetails(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the orchestrator should retry with backoff
// before deciding the unit has failed.
func (e *PipelineError) Retryable() bool {
	return e.Kind == Transient
}

// Fatal reports whether the error must abort the whole phase (and drive
// the pipeline to Failed) rather than being recorded as a per-unit skip.
func (e *PipelineError) Fatal() bool {
	switch e.Kind {
	case ConfigError, Internal:
		return true
	default:
		return false
	}
}

// New creates a PipelineError with no wrapped cause.
func New(kind Kind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// Wrap creates a PipelineError around an existing error.
func Wrap(kind Kind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *PipelineError,
// defaulting to Internal for anything else so every error is classifiable.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Internal
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// IsFatal reports whether err must abort the phase.
func IsFatal(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Fatal()
	}
	return true
}

// Constructors for each taxonomy kind, following a per-category
// helper-function style.

func TransientErr(message string, err error) *PipelineError {
	return Wrap(Transient, message, err)
}

func NotFoundErr(resource, id string) *PipelineError {
	return New(NotFound, "resource not found").
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func ForbiddenErr(reason string) *PipelineError {
	return New(Forbidden, reason)
}

func ParseErr(message string, err error) *PipelineError {
	return Wrap(ParseError, message, err)
}

func SchemaViolationErr(schemaID string, err error) *PipelineError {
	return Wrap(SchemaViolation, "contract validation failed", err).
		WithDetails("schema_id", schemaID)
}

func CircuitOpenErr(host string) *PipelineError {
	return New(CircuitOpen, "circuit breaker open").WithDetails("host", host)
}

func ConfigErr(message string, err error) *PipelineError {
	return Wrap(ConfigError, message, err)
}

func InternalErr(message string, err error) *PipelineError {
	return Wrap(Internal, message, err)
}
