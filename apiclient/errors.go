package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. A *RequestError always matches exactly one of these with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("authorization error")
	ErrNotFound   = errors.New("not found")
	ErrServer     = errors.New("server error")
	ErrTransport  = errors.New("transport error")
)

// RequestError describes a failed backend call. For a non-success status, Body holds the
// response body exactly as it was received.
type RequestError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Body       string
	Kind       error
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s %s: %s: %v", e.Op, e.Method, e.URL, e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s returned HTTP %d (%s): %v", e.Op, e.Method, e.URL, e.StatusCode, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s %s returned HTTP %d (%s): %s", e.Op, e.Method, e.URL, e.StatusCode, e.Kind, e.Body)
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindForStatus classifies a non-success HTTP status.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500:
		return ErrServer
	default:
		return ErrValidation
	}
}
