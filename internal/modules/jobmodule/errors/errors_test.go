package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

func TestJobError(t *testing.T) {
	err := New(ErrorTypeState, "start", ErrAlreadyProcessing)
	if err.Type != ErrorTypeState {
		t.Errorf("expected type %s, got %s", ErrorTypeState, err.Type)
	}

	err = err.WithJob("ab12cd34").WithDetail("status", "processing")
	if err.JobID != "ab12cd34" {
		t.Errorf("expected job ID 'ab12cd34', got %s", err.JobID)
	}
	if err.Details["status"] != "processing" {
		t.Errorf("expected status detail, got %v", err.Details["status"])
	}

	expected := "state error in start for job ab12cd34: job already processing"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
	if err.Reason() != "job already processing" {
		t.Errorf("unexpected reason %q", err.Reason())
	}
}

func TestValidationErrorField(t *testing.T) {
	err := ValidationError("resolve", "quality", fmt.Errorf("%w: 480p", ErrInvalidOption))
	if !errors.Is(err, ErrInvalidOption) {
		t.Error("expected error to match ErrInvalidOption")
	}
	if GetField(err) != "quality" {
		t.Errorf("expected field 'quality', got %q", GetField(err))
	}
	if err.Reason() != "quality: invalid option: 480p" {
		t.Errorf("unexpected reason %q", err.Reason())
	}
}

func TestErrorWrapping(t *testing.T) {
	err := StateError("get", "x1", ErrUnknownJob)
	if !errors.Is(err, ErrUnknownJob) {
		t.Error("expected error to match ErrUnknownJob")
	}
	if GetType(err) != ErrorTypeState {
		t.Errorf("expected type %s, got %s", ErrorTypeState, GetType(err))
	}
	if GetOperation(err) != "get" {
		t.Errorf("expected operation 'get', got %s", GetOperation(err))
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if GetJobID(wrapped) != "x1" {
		t.Errorf("expected job id through fmt wrapping, got %q", GetJobID(wrapped))
	}

	if GetType(errors.New("plain")) != ErrorTypeInternal {
		t.Error("expected internal type for plain errors")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{UploadError("upload", ErrUploadTooLarge), "UploadRejected"},
		{UploadError("probe", ErrUnreadableMedia), "UploadRejected"},
		{ValidationError("resolve", "rotation", ErrInvalidOption), "InvalidOption"},
		{ValidationError("resolve", "trim_end", ErrInvalidTrimRange), "InvalidTrimRange"},
		{ValidationError("resolve", "speed", ErrInvalidSpeed), "InvalidSpeed"},
		{StateError("start", "a", ErrUnknownJob), "UnknownJob"},
		{StateError("start", "a", ErrAlreadyProcessing), "AlreadyProcessing"},
		{New(ErrorTypeResource, "start", ErrBusy), "Busy"},
		{TranscodeError("run", ErrTranscodeFailed), "TranscodeFailed"},
		{StorageError("open", ErrNotFound), "NotFound"},
		{errors.New("boom"), "Internal"},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := Code(tt.err); got != tt.code {
			t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}

func TestErrorReporter(t *testing.T) {
	reporter := NewErrorReporter(hclog.NewNullLogger())

	reporter.ReportError(context.Background(), nil)
	if len(reporter.GetErrors()) != 0 {
		t.Fatal("nil errors must not be recorded")
	}

	reporter.ReportError(context.Background(), TranscodeError("run", ErrTranscodeFailed).WithJob("j1"))
	reporter.ReportPanic(context.Background(), "boom", []byte("stack"))

	errs := reporter.GetErrors()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].JobID != "j1" || errs[0].Operation != "run" {
		t.Errorf("unexpected first error %+v", errs[0])
	}
	if !errs[1].IsPanic || errs[1].Error.Error() != "panic: boom" {
		t.Errorf("unexpected panic record %+v", errs[1])
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	reporter := NewErrorReporter(hclog.NewNullLogger())
	done := make(chan struct{})

	SafeGo(reporter, hclog.NewNullLogger(), "explode", func() error {
		defer close(done)
		panic("kaboom")
	})

	<-done
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(reporter.GetErrors()) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("panic was not reported")
}

func TestReasonOf(t *testing.T) {
	if ReasonOf(nil) != "" {
		t.Error("expected empty reason for nil")
	}
	wrapped := fmt.Errorf("worker: %w", TranscodeError("transcode", fmt.Errorf("%w: exit status 1", ErrTranscodeFailed)))
	if got := ReasonOf(wrapped); got != "transcode failed: exit status 1" {
		t.Errorf("unexpected reason %q", got)
	}
	if got := ReasonOf(errors.New("plain")); got != "plain" {
		t.Errorf("unexpected reason %q", got)
	}
}
