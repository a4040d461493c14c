package simbase

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the API key was rejected. Terminal: never retried.
	ErrAuth = errors.New("simbase: invalid api key")
	// ErrRateLimited means the provider asked us to slow down.
	ErrRateLimited = errors.New("simbase: rate limit exceeded")
)

// APIError is the generic remote-failure family: the API rejected the request,
// or it could not be reached at all. Callers that only care about "the call
// did not succeed" match with errors.As and substitute an empty result.
type APIError struct {
	Method string
	Path   string
	Status int    // zero when the request never reached the API
	Body   string // response body for rejected requests, best effort
	Err    error  // underlying transport error for connection failures
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("simbase: %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("simbase: %s %s: status %d", e.Method, e.Path, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ConnectionFailure reports whether the request never reached the API
// (connection refused, timeout, DNS).
func (e *APIError) ConnectionFailure() bool {
	return e.Status == 0
}

// NotFound reports whether the API answered 404. Several optional endpoints
// legitimately do not exist for every account.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsAPIError unwraps err into the generic remote-failure family. Auth and
// rate-limit rejections are part of the family as well, so degradable callers
// can treat every remote failure uniformly.
func IsAPIError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrRateLimited)
}
