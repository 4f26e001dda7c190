package network

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrBlockedAddress   = errors.New("blocked address")
	ErrUpstreamHTTP     = errors.New("upstream http error")
	ErrUpstreamTooLarge = errors.New("upstream response too large")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrTimeout          = errors.New("request timed out")
)

// HTTPError reports an upstream response that could not be used.
type HTTPError struct {
	StatusCode int
	URL        string
	Reason     string
}

func (e *HTTPError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("upstream %s: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.StatusCode)
}

// Is lets callers match any HTTPError with errors.Is(err, ErrUpstreamHTTP).
func (e *HTTPError) Is(target error) bool {
	return target == ErrUpstreamHTTP
}
