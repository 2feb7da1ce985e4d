package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/loomhouse/api/internal/repositories"
)

// Error classifies Sheets API failures for the services layer.
type Error struct {
	Op          string
	Err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

var _ repositories.RepositoryError = (*Error)(nil)

func (e *Error) Error() string       { return fmt.Sprintf("sheets %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error       { return e.Err }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return e.unavailable }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e := &Error{Op: op, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			e.notFound = true
		case apiErr.Code == http.StatusConflict:
			e.conflict = true
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			e.unavailable = true
		}
		return e
	}
	// Transport failures never reached the API.
	e.unavailable = true
	return e
}

func notFound(op string, err error) error {
	return &Error{Op: op, Err: err, notFound: true}
}

func conflict(op string, err error) error {
	return &Error{Op: op, Err: err, conflict: true}
}
