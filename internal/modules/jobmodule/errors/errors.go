// Package errors provides structured error handling for the job module.
// It defines error types, sentinel errors, and helpers used to classify
// failures consistently between the registry, the scheduler and the HTTP
// surface.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an error for callers and for HTTP mapping.
type ErrorType string

const (
	// ErrorTypeUpload indicates a rejected upload (unsupported, unreadable, oversize)
	ErrorTypeUpload ErrorType = "upload"
	// ErrorTypeValidation indicates a settings validation failure
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeState indicates a request against a job in the wrong state
	ErrorTypeState ErrorType = "state"
	// ErrorTypeResource indicates worker pool saturation
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeTranscode indicates an engine-level failure
	ErrorTypeTranscode ErrorType = "transcode"
	// ErrorTypeStorage indicates upload or artifact storage failures
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeInternal indicates internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors for the job lifecycle
var (
	ErrUploadRejected    = errors.New("upload rejected")
	ErrUnreadableMedia   = errors.New("unreadable media")
	ErrUploadTooLarge    = errors.New("upload too large")
	ErrInvalidOption     = errors.New("invalid option")
	ErrInvalidTrimRange  = errors.New("invalid trim range")
	ErrInvalidSpeed      = errors.New("invalid speed")
	ErrUnknownJob        = errors.New("unknown job")
	ErrAlreadyProcessing = errors.New("job already processing")
	ErrNotIdle           = errors.New("job is not idle")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrBusy              = errors.New("worker pool busy")
	ErrTranscodeFailed   = errors.New("transcode failed")
	ErrNotFound          = errors.New("not found")
	ErrCancelled         = errors.New("cancelled")
	ErrShuttingDown      = errors.New("scheduler shutting down")
)

// JobError provides structured error information with context
type JobError struct {
	Type    ErrorType              // Error classification
	Op      string                 // Operation that failed (e.g., "update_settings", "start")
	JobID   string                 // Related job ID if applicable
	Field   string                 // Offending settings field for validation errors
	Err     error                  // Underlying error
	Details map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *JobError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	if e.JobID != "" {
		return fmt.Sprintf("%s error in %s for job %s: %s", e.Type, e.Op, e.JobID, msg)
	}
	return fmt.Sprintf("%s error in %s: %s", e.Type, e.Op, msg)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *JobError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *JobError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new JobError
func New(errType ErrorType, op string, err error) *JobError {
	return &JobError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithJob adds job context to the error
func (e *JobError) WithJob(jobID string) *JobError {
	e.JobID = jobID
	return e
}

// WithField names the offending settings field
func (e *JobError) WithField(field string) *JobError {
	e.Field = field
	return e
}

// WithDetail adds a key-value detail to the error
func (e *JobError) WithDetail(key string, value interface{}) *JobError {
	e.Details[key] = value
	return e
}

// Reason is the message shown to API callers: the underlying cause without
// the operation prefix.
func (e *JobError) Reason() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return e.Err.Error()
}

// Error creation helpers

// UploadError creates an upload rejection error
func UploadError(op string, err error) *JobError {
	return New(ErrorTypeUpload, op, err)
}

// ValidationError creates a settings validation error for a field
func ValidationError(op, field string, err error) *JobError {
	return New(ErrorTypeValidation, op, err).WithField(field)
}

// StateError creates a wrong-state error
func StateError(op, jobID string, err error) *JobError {
	return New(ErrorTypeState, op, err).WithJob(jobID)
}

// TranscodeError creates a transcoding operation error
func TranscodeError(op string, err error) *JobError {
	return New(ErrorTypeTranscode, op, err)
}

// StorageError creates a storage-related error
func StorageError(op string, err error) *JobError {
	return New(ErrorTypeStorage, op, err)
}

// InternalError creates an internal system error
func InternalError(op string, err error) *JobError {
	return New(ErrorTypeInternal, op, err)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var jErr *JobError
	if errors.As(err, &jErr) {
		return jErr.Type
	}
	return ErrorTypeInternal
}

// GetOperation extracts the operation from an error
func GetOperation(err error) string {
	var jErr *JobError
	if errors.As(err, &jErr) {
		return jErr.Op
	}
	return "unknown"
}

// GetJobID extracts the job ID from an error
func GetJobID(err error) string {
	var jErr *JobError
	if errors.As(err, &jErr) {
		return jErr.JobID
	}
	return ""
}

// GetField extracts the offending field from a validation error
func GetField(err error) string {
	var jErr *JobError
	if errors.As(err, &jErr) {
		return jErr.Field
	}
	return ""
}

// Code returns the stable taxonomy name for an error, as exposed to API
// callers.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUploadTooLarge), errors.Is(err, ErrUnreadableMedia), errors.Is(err, ErrUploadRejected):
		return "UploadRejected"
	case errors.Is(err, ErrInvalidOption):
		return "InvalidOption"
	case errors.Is(err, ErrInvalidTrimRange):
		return "InvalidTrimRange"
	case errors.Is(err, ErrInvalidSpeed):
		return "InvalidSpeed"
	case errors.Is(err, ErrUnknownJob):
		return "UnknownJob"
	case errors.Is(err, ErrAlreadyProcessing):
		return "AlreadyProcessing"
	case errors.Is(err, ErrNotIdle), errors.Is(err, ErrInvalidTransition):
		return "NotIdle"
	case errors.Is(err, ErrBusy), errors.Is(err, ErrShuttingDown):
		return "Busy"
	case errors.Is(err, ErrTranscodeFailed):
		return "TranscodeFailed"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "Internal"
	}
}

// ReasonOf returns the caller-facing message for err: the field-prefixed
// cause for a JobError, the plain message otherwise.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var jErr *JobError
	if errors.As(err, &jErr) {
		return jErr.Reason()
	}
	return err.Error()
}
