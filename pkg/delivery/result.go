package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
	"unicode/utf8"
)

// bodySnippetLen is how many characters of an error response body are kept.
const bodySnippetLen = 200

// Outcome classifies one attempt.
type Outcome int

const (
	Success Outcome = iota
	Retryable
	Terminal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one HTTP attempt.
type Result struct {
	Outcome Outcome
	// Status is the HTTP status code, 0 when no response arrived.
	Status int
	// Body holds at most the first 200 characters of an error response.
	Body string
	Err  error
}

// Message renders the failure for diagnostics.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	if r.Status == 0 {
		return r.Err.Error()
	}
	return fmt.Sprintf("Request failed: %v (Status: %d, Response: %s)", r.Err, r.Status, r.Body)
}

// statusError names a failed status without repeating its code, which
// Message prints separately.
func statusError(code int) string {
	if text := http.StatusText(code); text != "" {
		return "HTTP error: " + text
	}
	return "HTTP error"
}

// classifyStatus maps a non-2xx status to an outcome.
func classifyStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return Success
	case code >= 400 && code < 500:
		return Terminal
	default:
		return Retryable
	}
}

// isTimeout reports whether err came from a deadline rather than the peer.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// transportError labels a request-level failure. Both kinds are retryable.
func transportError(err error, timeout time.Duration) error {
	if isTimeout(err) {
		return fmt.Errorf("request timed out after %s: %w", timeout, err)
	}
	return fmt.Errorf("connection error: %w", err)
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
