// Package errors provides standardized error handling for pdh commands.
// It classifies failures the way the CLI reacts to them: configuration
// errors abort the command, authorization errors surface a hint about the
// API key, transient errors are retried inside the client, and data errors
// are reported without retry.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorConfig represents errors in user-supplied configuration or flags
	ErrorConfig
	// ErrorAuth represents authorization failures against the remote API
	ErrorAuth
	// ErrorData represents malformed or incomplete data that cannot be retried
	ErrorData
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorConfig:
		return "config"
	case ErrorAuth:
		return "auth"
	case ErrorData:
		return "data"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Configuration errors
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrInvalidPattern = errors.New("invalid regular expression")
	ErrInvalidField   = errors.New("unknown field")

	// Remote API errors
	ErrUnauthorized = errors.New("unauthorized: check the configured API key")
	ErrRateLimited  = errors.New("rate limited by remote API")
	ErrNotFound     = errors.New("resource not found")

	// Data errors
	ErrNoRecords       = errors.New("no records returned")
	ErrBadScriptOutput = errors.New("rule script produced invalid output")
	ErrParsingFailed   = errors.New("parsing failed")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// InvalidSortFieldError reports a sort key that none of the records carry.
// It keeps the set of fields that were available so the message can tell
// the user what would have worked.
type InvalidSortFieldError struct {
	Field string
	Valid []string
}

// Error implements the error interface
func (e *InvalidSortFieldError) Error() string {
	valid := append([]string(nil), e.Valid...)
	sort.Strings(valid)
	return fmt.Sprintf("invalid sort field %q: valid fields are [%s]", e.Field, strings.Join(valid, ", "))
}

// InvalidSortField builds a configuration-class error for a bad sort key.
func InvalidSortField(field string, valid []string) error {
	inner := &InvalidSortFieldError{Field: field, Valid: valid}
	return newClassified(ErrorConfig, inner, "SortEngine", "Sort", inner.Error())
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"temporar",
		"unavailable",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsConfig checks if an error is a configuration problem the user must fix
func IsConfig(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorConfig
	}

	var sf *InvalidSortFieldError
	if errors.As(err, &sf) {
		return true
	}

	return errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidPattern) ||
		errors.Is(err, ErrInvalidField)
}

// IsAuth checks if an error is an authorization failure
func IsAuth(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorAuth
	}

	return errors.Is(err, ErrUnauthorized)
}

// IsData checks if an error reports malformed or incomplete data
func IsData(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorData
	}

	return errors.Is(err, ErrBadScriptOutput) ||
		errors.Is(err, ErrParsingFailed)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsConfig(err) {
		return ErrorConfig
	}
	if IsAuth(err) {
		return ErrorAuth
	}
	if IsData(err) {
		return ErrorData
	}
	return ErrorTransient
}

// ExitCode maps an error to the process exit status: 0 for nil, 2 for
// configuration errors, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsConfig(err) {
		return 2
	}
	return 1
}

// newClassified creates a new classified error
// This is an internal helper - use the Wrap* functions instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapConfig wraps an error as a configuration problem with context
func WrapConfig(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorConfig, wrappedErr, component, method, wrappedErr.Error())
}

// WrapAuth wraps an error as an authorization failure with context
func WrapAuth(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorAuth, wrappedErr, component, method, wrappedErr.Error())
}

// WrapData wraps an error as a data problem with context
func WrapData(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorData, wrappedErr, component, method, wrappedErr.Error())
}
