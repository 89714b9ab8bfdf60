// Package errors provides structured error handling for erpflow.
// Errors carry a stable code, key-value context, and a captured stack trace
// so that callers can branch on failure class instead of message text.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Event log errors (1xx)
	CodeLogIntegrity     Code = "E101"
	CodeLogSealed        Code = "E102"
	CodeLogParseFailed   Code = "E103"
	CodeInvalidTimestamp Code = "E104"

	// Analysis errors (2xx)
	CodePhaseFailed           Code = "E201"
	CodeReferenceModelInvalid Code = "E202"
	CodeRunCancelled          Code = "E203"
	CodeUnknownPhase          Code = "E204"

	// Migration / ETLV errors (3xx)
	CodeExtractFailed    Code = "E301"
	CodeTransformFailed  Code = "E302"
	CodeValidationFailed Code = "E303"
	CodeLoadFailed       Code = "E304"
	CodeLiveNotSupported Code = "E305"

	// Safety / approval errors (4xx)
	CodePermissionDenied Code = "E401"
	CodeSelfApproval     Code = "E402"
	CodeRequestNotFound  Code = "E403"
	CodeRequestTerminal  Code = "E404"
	CodeDuplicateVote    Code = "E405"

	// Storage / checkpoint errors (5xx)
	CodeCheckpointIO  Code = "E501"
	CodeAuditWrite    Code = "E502"
	CodeConfigInvalid Code = "E503"
	CodeExportFailed  Code = "E504"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all erpflow errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// LogIntegrity reports a non-monotonic timestamp within a trace.
// Callers must treat this as a programming fault, not a recoverable condition.
func LogIntegrity(caseID, activity string) *Error {
	return New(CodeLogIntegrity, "event timestamp precedes previous event in trace").
		WithContext("case_id", caseID).
		WithContext("activity", activity)
}

// ReferenceModelInvalid reports a malformed reference model.
func ReferenceModelInvalid(modelID, reason string) *Error {
	return New(CodeReferenceModelInvalid, "reference model is malformed").
		WithContext("model_id", modelID).
		WithContext("reason", reason)
}

// LiveNotSupported reports an extractor that cannot run in live mode.
func LiveNotSupported(extractorID string) *Error {
	return New(CodeLiveNotSupported, "live extraction not supported").
		WithContext("extractor_id", extractorID)
}

// PermissionDenied reports a tier permission refusal.
func PermissionDenied(operation string, tier int, reason string) *Error {
	return New(CodePermissionDenied, "operation not permitted").
		WithContext("operation", operation).
		WithContext("tier", tier).
		WithContext("reason", reason)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
