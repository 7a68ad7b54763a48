package jobs

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of pipeline failure and warning kinds.
type ErrorKind string

const (
	KindValidationFailed       ErrorKind = "VALIDATION_FAILED"
	KindExtractionTimeout      ErrorKind = "EXTRACTION_TIMEOUT"
	KindExtractionFailed       ErrorKind = "EXTRACTION_FAILED"
	KindDuplicateCheckDegraded ErrorKind = "DUPLICATE_CHECK_DEGRADED"
	KindDuplicateCheckFailed   ErrorKind = "DUPLICATE_CHECK_FAILED"
	KindCourseLimitExceeded    ErrorKind = "COURSE_LIMIT_EXCEEDED"
	KindTransactionConflict    ErrorKind = "TRANSACTION_CONFLICT"
	KindStale                  ErrorKind = "STALE"
	KindCanceled               ErrorKind = "CANCELED"
	KindInternal               ErrorKind = "INTERNAL"
)

// Warning kinds are recorded on the job without failing it.
const (
	WarningExtractionSlow = "EXTRACTION_SLOW"
)

// Failure is an error carrying the kind a job should fail with.
type Failure struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Cause     error
}

func (f *Failure) Error() string {
	if f == nil {
		return "<nil>"
	}
	if f.Cause != nil && f.Message == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Cause)
	}
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

func Fail(kind ErrorKind, msg string, cause error) *Failure {
	return &Failure{Kind: kind, Message: msg, Cause: cause}
}

func Retryable(kind ErrorKind, msg string, cause error) *Failure {
	return &Failure{Kind: kind, Message: msg, Cause: cause, Retryable: true}
}

// AsFailure extracts a Failure from err, defaulting to KindInternal.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindInternal, Message: err.Error(), Cause: err}
}

func IsRetryable(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Retryable
}
