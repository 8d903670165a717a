package mlscore

import (
	"errors"
	"fmt"
)

// httpError is a retryable upstream failure (5xx, 408, 429).
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("scoring endpoint returned %d: %s", e.status, e.body)
}

func (e *httpError) HTTPStatusCode() int { return e.status }

// terminalError is a per-image failure that must not be retried: a 4xx or a
// malformed response.
type terminalError struct {
	msg string
}

func (e *terminalError) Error() string { return e.msg }

// IsTerminal reports whether err is a non-retryable scoring failure.
func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}
