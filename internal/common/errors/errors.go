// Package errors provides the standardized error types shared by the Lambda
// entrypoint and the job worker transport.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidEvent              ErrorCode = "INVALID_EVENT"
	ErrCodeRetrieveAndGenerateFailed ErrorCode = "RETRIEVE_AND_GENERATE_FAILED"
	ErrCodeResponseShapeInvalid      ErrorCode = "RESPONSE_SHAPE_INVALID"
	ErrCodeNoSupportingCitation      ErrorCode = "NO_SUPPORTING_CITATION"
	ErrCodeSerializationFailed       ErrorCode = "SERIALIZATION_FAILED"
	ErrCodeWorkerDisabled            ErrorCode = "WORKER_DISABLED"
	ErrCodeInternal                  ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code, so sentinel comparisons like
// errors.Is(err, &StandardError{Code: ErrCodeInvalidEvent}) work.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// NewInvalidEventError is the typed bad-request variant for a malformed invocation event.
func NewInvalidEventError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidEvent,
		Message:   "Invalid invocation event",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetrieveAndGenerateFailedError wraps a failure of the external call.
// The SDK has already retried by the time this is built, so it is final.
func NewRetrieveAndGenerateFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrieveAndGenerateFailed,
		Message:   "Knowledge base retrieve-and-generate call failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewResponseShapeInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResponseShapeInvalid,
		Message:   "Unexpected retrieve-and-generate response shape",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoSupportingCitationError reports a generated answer with no usable citation.
func NewNoSupportingCitationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoSupportingCitation,
		Message:   "No supporting citation in generated response",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSerializationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSerializationFailed,
		Message:   "Failed to serialize response payload",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewWorkerDisabledError(taskType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkerDisabled,
		Message:   "Worker disabled by configuration",
		Details:   fmt.Sprintf("taskType: %s", taskType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize ensures we always have a StandardError. Wrapped StandardErrors
// are found through the chain; anything else becomes INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &StandardError{Code: code})
}

// ConvertToBPMNError maps a StandardError onto the error code thrown to the engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		ErrorVariables: map[string]interface{}{
			"errorCategory":  GetErrorCategory(stdErr.Code),
			"errorTimestamp": stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory groups codes for logging and for the worker's
// throw-versus-fail decision.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidEvent:
		return "VALIDATION"
	case ErrCodeNoSupportingCitation, ErrCodeWorkerDisabled:
		return "BUSINESS"
	default:
		return "TECHNICAL"
	}
}
