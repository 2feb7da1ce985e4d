package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error carries an operation name plus the repository classification of a Firestore failure.
type Error struct {
	Op          string
	Err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("firestore %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error       { return e.Err }
func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError classifies err by its gRPC code. Cancellation passes through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	e := &Error{Op: op, Err: err}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.NotFound:
		e.notFound = true
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		e.conflict = true
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		e.unavailable = true
	}
	return e
}

// NotFound builds a not-found error for op.
func NotFound(op string, err error) error {
	return &Error{Op: op, Err: err, notFound: true}
}

// Conflict builds a conflict error for op.
func Conflict(op string, err error) error {
	return &Error{Op: op, Err: err, conflict: true}
}

// IsNotFound reports whether err is a Firestore not-found.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.notFound
	}
	return status.Code(err) == codes.NotFound
}
