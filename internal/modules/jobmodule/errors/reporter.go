// Package errors provides error reporting mechanisms for background operations
package errors

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrorReporter provides a mechanism for background goroutines to report errors
type ErrorReporter interface {
	// ReportError reports a non-fatal error from a background operation
	ReportError(ctx context.Context, err error)

	// ReportPanic reports a panic from a background operation
	ReportPanic(ctx context.Context, recovered interface{}, stack []byte)

	// GetErrors returns the most recent reported errors, oldest first
	GetErrors() []ReportedError
}

// ReportedError contains error information from background operations
type ReportedError struct {
	Error     error
	Operation string
	JobID     string
	IsPanic   bool
	Stack     string
	Timestamp int64
}

// DefaultErrorReporter implements ErrorReporter with logging and collection
type DefaultErrorReporter struct {
	logger    hclog.Logger
	errors    []ReportedError
	errorsMux sync.RWMutex
	maxErrors int
}

var timeNow = time.Now

// NewErrorReporter creates a new error reporter
func NewErrorReporter(logger hclog.Logger) ErrorReporter {
	return &DefaultErrorReporter{
		logger:    logger,
		errors:    make([]ReportedError, 0),
		maxErrors: 1000,
	}
}

// ReportError reports a non-fatal error from a background operation
func (r *DefaultErrorReporter) ReportError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	op := GetOperation(err)
	jobID := GetJobID(err)

	r.logger.Error("background operation error",
		"error", err,
		"type", GetType(err),
		"operation", op,
		"job_id", jobID,
	)

	r.append(ReportedError{
		Error:     err,
		Operation: op,
		JobID:     jobID,
		Timestamp: timeNow().Unix(),
	})
}

// ReportPanic reports a panic from a background operation
func (r *DefaultErrorReporter) ReportPanic(ctx context.Context, recovered interface{}, stack []byte) {
	r.logger.Error("panic in background operation",
		"panic", recovered,
		"stack", string(stack),
	)

	r.append(ReportedError{
		Error:     PanicError(recovered),
		Operation: "panic",
		IsPanic:   true,
		Stack:     string(stack),
		Timestamp: timeNow().Unix(),
	})
}

func (r *DefaultErrorReporter) append(e ReportedError) {
	r.errorsMux.Lock()
	defer r.errorsMux.Unlock()

	if len(r.errors) >= r.maxErrors {
		r.errors = r.errors[1:]
	}
	r.errors = append(r.errors, e)
}

// GetErrors returns the most recent reported errors, oldest first
func (r *DefaultErrorReporter) GetErrors() []ReportedError {
	r.errorsMux.RLock()
	defer r.errorsMux.RUnlock()

	result := make([]ReportedError, len(r.errors))
	copy(result, r.errors)
	return result
}

// PanicError converts a recovered value into an error.
func PanicError(recovered interface{}) error {
	switch v := recovered.(type) {
	case error:
		return fmt.Errorf("panic: %w", v)
	case string:
		return fmt.Errorf("panic: %s", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// SafeGo runs a function in a goroutine with panic recovery and error reporting
func SafeGo(reporter ErrorReporter, logger hclog.Logger, name string, fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				reporter.ReportPanic(context.Background(), r, debug.Stack())
			}
		}()

		logger.Debug("starting background operation", "name", name)

		if err := fn(); err != nil {
			err = InternalError(name, err).
				WithDetail("goroutine", name)
			reporter.ReportError(context.Background(), err)
		}

		logger.Debug("completed background operation", "name", name)
	}()
}
