package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed        = errors.New("file upload to storage failed")
	ErrInvalidPages        = errors.New("invalid page selection")
	ErrRunNotCompleted     = errors.New("conversion run has not completed")

	ErrMissingDependency  = errors.New("missing dependency")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrWorkerFailure      = errors.New("worker failure")
)

// MissingDependencyError reports a required field absent from the store
// handed to a stage. Page is -1 when the whole field is missing.
type MissingDependencyError struct {
	Stage string
	Field string
	Page  int
}

func (e *MissingDependencyError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("stage %s: missing required field %q", e.Stage, e.Field)
	}
	return fmt.Sprintf("stage %s: missing required field %q for page %d", e.Stage, e.Field, e.Page)
}

func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

// IntegrityViolationError reports a broken internal guarantee. It is a
// defect in code or data and is never retried. Page is -1 when unknown.
type IntegrityViolationError struct {
	Component string
	Page      int
	Detail    string
}

func (e *IntegrityViolationError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("%s: integrity violation: %s", e.Component, e.Detail)
	}
	return fmt.Sprintf("%s: integrity violation on page %d: %s", e.Component, e.Page, e.Detail)
}

func (e *IntegrityViolationError) Is(target error) bool { return target == ErrIntegrityViolation }

// WorkerFailureError wraps an error raised while a worker executed one slice
// of a stage.
type WorkerFailureError struct {
	Stage     string
	Slice     int
	FirstPage int
	LastPage  int
	Err       error
}

func (e *WorkerFailureError) Error() string {
	return fmt.Sprintf("stage %s: slice %d (pages %d-%d) failed: %v", e.Stage, e.Slice, e.FirstPage, e.LastPage, e.Err)
}

func (e *WorkerFailureError) Unwrap() error { return e.Err }

func (e *WorkerFailureError) Is(target error) bool { return target == ErrWorkerFailure }
