package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// IsPermanent reports whether retrying err unchanged cannot succeed: the
// server rejected the request itself (4xx other than 408 and 429).
// Network failures, timeouts and 5xx answers are transient.
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}
