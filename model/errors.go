package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies ingestion and query failures for retry and
// rollback decisions.
type ErrorKind string

const (
	ErrorKindEmptyDocument         ErrorKind = "EmptyDocument"
	ErrorKindUnreadable            ErrorKind = "Unreadable"
	ErrorKindTimeoutExceeded       ErrorKind = "TimeoutExceeded"
	ErrorKindModelUnavailable      ErrorKind = "ModelUnavailable"
	ErrorKindStoreUnavailable      ErrorKind = "StoreUnavailable"
	ErrorKindValidationFailed      ErrorKind = "ValidationFailed"
	ErrorKindQueryDeadlineExceeded ErrorKind = "QueryDeadlineExceeded"
	ErrorKindInvariantViolation    ErrorKind = "InvariantViolation"
)

// Retryable reports whether a failure of this kind may be retried.
// Validation failures and invariant violations never are; empty or
// unreadable documents will not improve on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTimeoutExceeded, ErrorKindModelUnavailable, ErrorKindStoreUnavailable:
		return true
	default:
		return false
	}
}

// IngestError is a classified error raised by an ingestion phase.
type IngestError struct {
	Kind       ErrorKind
	DocumentID string
	Phase      string
	Err        error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s/%s]: %v", e.Kind, e.DocumentID, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s [%s/%s]", e.Kind, e.DocumentID, e.Phase)
}

func (e *IngestError) Unwrap() error { return e.Err }

// NewIngestError wraps err with its kind and ingestion context.
func NewIngestError(kind ErrorKind, documentID, phase string, err error) *IngestError {
	return &IngestError{Kind: kind, DocumentID: documentID, Phase: phase, Err: err}
}

// QueryError is a classified error raised on the search path.
type QueryError struct {
	Kind      ErrorKind
	Operation string
	Err       error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s [%s]", e.Kind, e.Operation)
}

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError wraps err with its kind and the failing operation.
func NewQueryError(kind ErrorKind, operation string, err error) *QueryError {
	return &QueryError{Kind: kind, Operation: operation, Err: err}
}

// KindOf extracts the ErrorKind from err, or empty string if unclassified.
func KindOf(err error) ErrorKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}

// ErrorRecord is one entry in the append-only error tracking file.
type ErrorRecord struct {
	DocumentID string    `json:"document_id"`
	Phase      string    `json:"phase"`
	ErrorKind  ErrorKind `json:"error_kind"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Retryable  bool      `json:"retryable"`
}
