package retrylimit

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPError is an error that knows the status code of the response behind it.
type HTTPError interface {
	error
	StatusCode() int
}

// RetryAfterError is an error that carries the server's requested wait.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// FatalError stops the retry loop at once.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ErrorClassifier reports whether err means the remote side is overloaded.
type ErrorClassifier func(error) bool

// DefaultClassifier treats 429 and 5xx responses as overload.
func DefaultClassifier(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

func statusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return 0
}

func isRateLimitError(err error) bool {
	return statusOf(err) == http.StatusTooManyRequests
}

func isServerError(err error) bool {
	code := statusOf(err)
	return code >= 500 && code <= 599
}

func isFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

func retryAfter(err error) (time.Duration, bool) {
	var ra RetryAfterError
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return ra.RetryAfter(), true
	}
	return 0, false
}
