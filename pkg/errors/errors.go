// Package errors provides structured error types for the instruction task.
// Errors carry a code, a category, key-value context and remediation hints
// so the operator console can say exactly which resource is at fault.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies errors for consistent handling and display.
type Category string

const (
	CategoryConfig   Category = "config"   // Configuration loading/validation
	CategoryStimulus Category = "stimulus" // Stimulus folders and feature tables
	CategoryPlan     Category = "plan"     // Trial plan construction
	CategoryDevice   Category = "device"   // Markers, eye tracker, display, input
	CategorySession  Category = "session"  // Session lifecycle (abort, crash)
	CategoryIO       Category = "io"       // Checkpoints, exports, logs
	CategoryInternal Category = "internal" // Invariant violations
)

// TaskError is a structured error with context and suggestions.
type TaskError struct {
	// Code is a unique identifier for this error type (e.g. "STIMULUS_FOLDER_EMPTY").
	Code string

	// Category classifies this error for consistent handling.
	Category Category

	// Message describes what went wrong.
	Message string

	// Context names the resources involved (category, pair, path...).
	Context map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Suggestions are remediation steps for the operator.
	Suggestions []string
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if len(e.Context) > 0 {
		sb.WriteString(" (")
		sb.WriteString(e.ContextString())
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a TaskError with the same Code.
func (e *TaskError) Is(target error) bool {
	if t, ok := target.(*TaskError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a TaskError with the given code, category and message.
func New(code string, category Category, message string) *TaskError {
	return &TaskError{
		Code:     code,
		Category: category,
		Message:  message,
		Context:  make(map[string]string),
	}
}

// Newf is New with a formatted message.
func Newf(code string, category Category, format string, args ...interface{}) *TaskError {
	return New(code, category, fmt.Sprintf(format, args...))
}

// Wrap wraps err in a TaskError.
func Wrap(err error, code string, category Category, message string) *TaskError {
	return New(code, category, message).WithCause(err)
}

// WithContext adds a context key-value pair and returns the error for chaining.
func (e *TaskError) WithContext(key, value string) *TaskError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *TaskError) WithCause(cause error) *TaskError {
	e.Cause = cause
	return e
}

// WithSuggestion appends a remediation hint.
func (e *TaskError) WithSuggestion(suggestion string) *TaskError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// HasContext returns true if the error has context information.
func (e *TaskError) HasContext() bool {
	return len(e.Context) > 0
}

// HasSuggestions returns true if the error has suggestions.
func (e *TaskError) HasSuggestions() bool {
	return len(e.Suggestions) > 0
}

// ContextString returns the context entries as sorted key="value" pairs.
func (e *TaskError) ContextString() string {
	if len(e.Context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, e.Context[k]))
	}
	return strings.Join(parts, ", ")
}

// AsTaskError finds the first TaskError in err's chain.
func AsTaskError(err error) (*TaskError, bool) {
	var te *TaskError
	if err != nil && stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsCode checks if err's chain holds a TaskError with the given code.
func IsCode(err error, code string) bool {
	if te, ok := AsTaskError(err); ok {
		return te.Code == code
	}
	return false
}

// IsCategory checks if err's chain holds a TaskError with the given category.
func IsCategory(err error, category Category) bool {
	if te, ok := AsTaskError(err); ok {
		return te.Category == category
	}
	return false
}

// -----------------------------------------------------------------------------
// Category Constructors
// -----------------------------------------------------------------------------
// Each constructor attaches the registered suggestions for its code.

// Config creates a configuration error.
func Config(code, message string) *TaskError {
	return AttachSuggestions(New(code, CategoryConfig, message))
}

// Configf creates a configuration error with a formatted message.
func Configf(code, format string, args ...interface{}) *TaskError {
	return Config(code, fmt.Sprintf(format, args...))
}

// ConfigWrap wraps cause as a configuration error.
func ConfigWrap(cause error, code, message string) *TaskError {
	return AttachSuggestions(Wrap(cause, code, CategoryConfig, message))
}

// Stimulus creates a stimulus inventory error.
func Stimulus(code, message string) *TaskError {
	return AttachSuggestions(New(code, CategoryStimulus, message))
}

// Plan creates a plan construction error.
func Plan(code, message string) *TaskError {
	return AttachSuggestions(New(code, CategoryPlan, message))
}

// Device creates a device error.
func Device(code, message string) *TaskError {
	return AttachSuggestions(New(code, CategoryDevice, message))
}

// DeviceWrap wraps cause as a device error.
func DeviceWrap(cause error, code, message string) *TaskError {
	return AttachSuggestions(Wrap(cause, code, CategoryDevice, message))
}

// Session creates a session lifecycle error.
func Session(code, message string) *TaskError {
	return AttachSuggestions(New(code, CategorySession, message))
}

// IO creates an IO error.
func IO(code, message string) *TaskError {
	return AttachSuggestions(New(code, CategoryIO, message))
}

// IOWrap wraps cause as an IO error.
func IOWrap(cause error, code, message string) *TaskError {
	return AttachSuggestions(Wrap(cause, code, CategoryIO, message))
}

// Internal creates an internal error.
func Internal(code, message string) *TaskError {
	return New(code, CategoryInternal, message)
}
