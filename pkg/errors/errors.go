package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Sentinel values used across the engine.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternalError = errors.New("internal error")
	ErrUnavailable   = errors.New("service unavailable")

	// Domain-specific sentinel values
	ErrSessionNotFound  = errors.New("analysis session not found")
	ErrSessionExists    = errors.New("analysis session already exists")
	ErrSessionFinalized = errors.New("analysis session already finalized")
	ErrPrivacyViolation = errors.New("privacy compliance violation")
	ErrNotConnected     = errors.New("message broker not connected")
)

// Error is a structured error carrying contextual fields and the
// location it was created at.
type Error struct {
	original error
	message  string
	fields   map[string]interface{}
	file     string
	line     int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message.
func New(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: err,
		message:  message,
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
	}
}

func firstFieldMap(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 && fields[0] != nil {
		return fields[0]
	}
	return make(map[string]interface{})
}

// WithField returns a copy of the error with an extra context field.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+1),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}
	for k, v := range e.fields {
		result.fields[k] = v
	}
	result.fields[key] = value
	return result
}

// WithCode returns a copy of the error with a categorization code.
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := *e
	result.Code = code
	return &result
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}
	if e.message == "" {
		return e.original.Error()
	}
	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created.
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	parts := strings.Split(e.file, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], e.line)
}

// GetFields returns the error's context fields.
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// Is reports whether any error in err's tree matches target.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if errors.Is(e.original, target) {
		return true
	}
	return e == target
}

// NewSessionNotFound creates a new ErrSessionNotFound with context.
func NewSessionNotFound(sessionID string) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: ErrSessionNotFound,
		message:  fmt.Sprintf("analysis session not found: %s", sessionID),
		fields:   map[string]interface{}{"session_id": sessionID},
		file:     file,
		line:     line,
		Code:     "SESSION_NOT_FOUND",
	}
}

// NewPrivacyViolation creates a new ErrPrivacyViolation with the
// failed checks attached. Privacy failures must never be silently
// dropped, so callers are expected to log and act on this error.
func NewPrivacyViolation(details string, violations []string) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: ErrPrivacyViolation,
		message:  fmt.Sprintf("privacy compliance violation: %s", details),
		fields:   map[string]interface{}{"violations": violations},
		file:     file,
		line:     line,
		Code:     "PRIVACY_VIOLATION",
	}
}

// IsErrorType checks if an error is of a specific error type.
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the code from a structured error.
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ""
}
