/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the structured error taxonomy shared by every
// component of the decision core (spec §7).
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError along the taxonomy the decision core
// uses to decide propagation policy and HTTP status mapping.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeDatabase      ErrorType = "database"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeEvaluation    ErrorType = "evaluation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeTransient     ErrorType = "transient"
	ErrorTypePolicy        ErrorType = "policy"
	ErrorTypeDroppedLog    ErrorType = "dropped_log"
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation:    http.StatusBadRequest,
	ErrorTypeAuth:          http.StatusUnauthorized,
	ErrorTypeNotFound:      http.StatusNotFound,
	ErrorTypeConflict:      http.StatusConflict,
	ErrorTypeTimeout:       http.StatusRequestTimeout,
	ErrorTypeRateLimit:     http.StatusTooManyRequests,
	ErrorTypeDatabase:      http.StatusInternalServerError,
	ErrorTypeNetwork:       http.StatusInternalServerError,
	ErrorTypeInternal:      http.StatusInternalServerError,
	ErrorTypeEvaluation:    http.StatusInternalServerError,
	ErrorTypeConfiguration: http.StatusInternalServerError,
	ErrorTypeTransient:     http.StatusServiceUnavailable,
	ErrorTypePolicy:        http.StatusForbidden,
	ErrorTypeDroppedLog:    http.StatusOK,
}

// AppError is the single structured error type threaded through the
// decision core. It carries enough context to answer a caller (Message,
// StatusCode), to log internally (Type, Details, Cause), and to chain
// (Unwrap).
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error

	// Locus pinpoints where in a rule document evaluation failed
	// (spec §4.2 "precise locus: rule name, step"). Empty outside the
	// interpreter.
	Locus string
}

func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusFor(t),
	}
}

func Wrap(cause error, t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusFor(t),
		Cause:      cause,
	}
}

func Wrapf(cause error, t ErrorType, format string, args ...any) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func statusFor(t ErrorType) int {
	if code, ok := statusByType[t]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(" (")
		b.WriteString(e.Details)
		b.WriteString(")")
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

func (e *AppError) WithLocus(locus string) *AppError {
	e.Locus = locus
	return e
}

// Predefined constructors, one per recurring failure shape in the core.

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewSchemaValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewAuthError(message string) *AppError {
	return New(ErrorTypeAuth, message)
}

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, fmt.Sprintf("operation timed out: %s", operation))
}

func NewRuleNotFoundError(tool, version string) *AppError {
	return New(ErrorTypeConfiguration, fmt.Sprintf("rule not found for tool %q version %q", tool, version))
}

func NewRuleInvalidError(tool, version, reason string) *AppError {
	return New(ErrorTypeConfiguration, fmt.Sprintf("rule invalid for tool %q version %q", tool, version)).WithDetails(reason)
}

func NewEvaluationError(ruleName, step, reason string) *AppError {
	return New(ErrorTypeEvaluation, reason).WithLocus(fmt.Sprintf("%s/%s", ruleName, step))
}

func NewPolicyViolationError(tool, caller string) *AppError {
	return New(ErrorTypePolicy, fmt.Sprintf("caller %q is not permitted to invoke tool %q", caller, tool))
}

func NewTransientError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeTransient, "transient failure during %s", operation)
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// GetType returns the AppError type of err, or ErrorTypeInternal for
// anything else.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP-equivalent status code for err.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages are the safe, caller-facing strings for error types whose
// internal Message must not leak (spec §7 "user-visible behavior").
var ErrorMessages = struct {
	ResourceNotFound       string
	AuthenticationFailed   string
	OperationTimeout       string
	RateLimitExceeded      string
	ConcurrentModification string
	PolicyViolation        string
}{
	ResourceNotFound:       "The requested resource was not found",
	AuthenticationFailed:   "Authentication failed",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded",
	ConcurrentModification: "The resource was modified concurrently",
	PolicyViolation:        "The caller is not permitted to perform this operation",
}

// SafeErrorMessage returns a message safe to return to an external
// caller: validation messages pass through verbatim (they describe the
// caller's own input), everything else is mapped to a generic phrase.
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred"
	}
	switch appErr.Type {
	case ErrorTypeValidation:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeAuth:
		return ErrorMessages.AuthenticationFailed
	case ErrorTypeTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeRateLimit:
		return ErrorMessages.RateLimitExceeded
	case ErrorTypeConflict:
		return ErrorMessages.ConcurrentModification
	case ErrorTypePolicy:
		return ErrorMessages.PolicyViolation
	default:
		return "An internal error occurred"
	}
}

// LogFields renders err as a structured field map suitable for a
// zap/logr sink.
func LogFields(err error) map[string]any {
	fields := map[string]any{"error": err.Error()}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fields
	}
	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Locus != "" {
		fields["error_locus"] = appErr.Locus
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain concatenates zero or more errors, filtering nils, into a single
// error whose message joins the members with " -> ". Returns nil if
// every member is nil.
func Chain(errs ...error) error {
	var present []error
	for _, e := range errs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	default:
		msgs := make([]string, len(present))
		for i, e := range present {
			msgs[i] = e.Error()
		}
		return errors.New(strings.Join(msgs, " -> "))
	}
}

// ErrorCode maps an ErrorType to the stable wire error code spec.md §6
// declares for the HTTP envelope.
func ErrorCode(t ErrorType) string {
	switch t {
	case ErrorTypeValidation:
		return "SCHEMA_VALIDATION_ERROR"
	case ErrorTypeConfiguration:
		return "RULE_NOT_FOUND"
	case ErrorTypeEvaluation:
		return "EVALUATION_ERROR"
	case ErrorTypePolicy:
		return "POLICY_VIOLATION"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeTransient, ErrorTypeDatabase, ErrorTypeNetwork:
		return "UPSTREAM_FAILURE"
	default:
		return "INTERNAL_ERROR"
	}
}
