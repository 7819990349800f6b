package booking

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("booking not found")
	ErrUnauthorized = errors.New("booking service rejected credentials")
	ErrUnavailable  = errors.New("booking service unavailable")
	ErrRejected     = errors.New("booking request rejected")
)

// APIError carries the status and the service's own explanation while still
// matching one of the sentinels with errors.Is.
type APIError struct {
	Status int
	Detail string
	kind   error
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (http %d)", e.kind, e.Status)
	}
	return fmt.Sprintf("%v (http %d): %s", e.kind, e.Status, e.Detail)
}

func (e *APIError) Unwrap() error { return e.kind }

// Rejected builds a rejection with a human readable reason.
func Rejected(detail string) error {
	return &APIError{Status: http.StatusUnprocessableEntity, Detail: detail, kind: ErrRejected}
}

// Detail returns the service explanation attached to err, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// statusError maps an HTTP status onto the sentinel set.
func statusError(status int, detail string) error {
	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrUnauthorized
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		kind = ErrUnavailable
	default:
		kind = ErrRejected
	}
	return &APIError{Status: status, Detail: detail, kind: kind}
}
