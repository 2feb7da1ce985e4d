package storefront

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport marks requests that never produced an API response.
var ErrTransport = errors.New("storefront: transport failure")

// ErrStatusNotVisible is returned when verification gives up before the expected status appears.
var ErrStatusNotVisible = errors.New("storefront: status not visible")

// APIError is a {success:false} envelope returned by the order API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront api %d %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether a retry may succeed.
func (e *APIError) Temporary() bool {
	switch {
	case e.Status >= http.StatusInternalServerError:
		return true
	case e.Status == http.StatusTooManyRequests, e.Status == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transport failure or a temporary API error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// IsNotFound reports whether the API answered order_not_found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
