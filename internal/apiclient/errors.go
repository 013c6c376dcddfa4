package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error is returned by every Client method. Status is zero when the request
// never produced an HTTP response.
type Error struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: %d: %s", e.Op, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	default:
		return e.Op + ": request failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the request exceeded its deadline.
func (e *Error) Timeout() bool {
	if e.Err == nil {
		return e.Status == http.StatusGatewayTimeout || e.Status == http.StatusRequestTimeout
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Transport reports whether the failure happened before a response arrived.
func (e *Error) Transport() bool {
	return e.Status == 0 && e.Err != nil
}

// Unauthorized reports an authentication failure.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Forbidden reports an authorization failure.
func (e *Error) Forbidden() bool {
	return e.Status == http.StatusForbidden
}

// Rejected reports a request the server refused as invalid.
func (e *Error) Rejected() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity ||
		e.Status == http.StatusNotFound || e.Status == http.StatusConflict
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
