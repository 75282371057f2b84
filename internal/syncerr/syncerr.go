// Package syncerr defines the error categories shared by the subtitle sync packages.
//
// Every error produced by the sync core wraps exactly one of the sentinels below, so
// callers classify failures with errors.Is.
package syncerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input data: subtitle count mismatch, malformed logs, stale metadata.
	ErrValidation = errors.New("validation error")

	// ErrConsistency marks an algorithmic defect, e.g. an unrecognized operation signature.
	// It is always fatal for the file and never retried.
	ErrConsistency = errors.New("consistency error")

	// ErrNotFound marks a missing commit, file, or log boundary.
	ErrNotFound = errors.New("not found")

	// ErrTransientIO marks snapshot or file access failures that may succeed on retry.
	ErrTransientIO = errors.New("transient io error")
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// Consistency returns an error wrapping ErrConsistency.
func Consistency(format string, args ...any) error {
	return wrap(ErrConsistency, format, args...)
}

// NotFound returns an error wrapping ErrNotFound.
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

// TransientIO wraps cause as a retryable io failure.
func TransientIO(cause error, format string, args ...any) error {
	return &kindError{kind: ErrTransientIO, msg: fmt.Sprintf(format, args...), cause: cause}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// Kind returns the category sentinel of err, or nil for uncategorized errors.
func Kind(err error) error {
	for _, kind := range []error{ErrConsistency, ErrValidation, ErrNotFound, ErrTransientIO} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func wrap(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}
