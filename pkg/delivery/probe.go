package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/obsidianstack/logship/pkg/errsink"
)

// HealthURL returns the URL Probe checks.
func (e *Engine) HealthURL() string { return e.healthURL }

// Probe issues one GET to the health URL with freshly resolved auth. It
// returns true on 2xx. Every other outcome, including panics, is reported to
// the sink and yields false.
func (e *Engine) Probe(ctx context.Context) (healthy bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.probeFailed(fmt.Sprintf("Health check failed with unexpected error: %v", rec), nil)
			healthy = false
		}
	}()

	creds, err := e.resolver.Resolve(ctx)
	if err != nil {
		e.probeFailed(fmt.Sprintf("Health check failed with unexpected error: %v", err), err)
		return false
	}

	actx, cancel := e.attemptContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, e.healthURL, nil)
	if err != nil {
		e.probeFailed(fmt.Sprintf("Health check failed with unexpected error: %v", err), err)
		return false
	}
	creds.Apply(req)

	resp, err := e.client.Do(req)
	if err != nil {
		err = transportError(err, e.timeout)
		e.probeFailed(fmt.Sprintf("Health check failed: %v (Status: N/A)", err), err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if classifyStatus(resp.StatusCode) != Success {
		e.probeFailed(fmt.Sprintf("Health check failed: %s (Status: %d)", statusError(resp.StatusCode), resp.StatusCode), nil)
		return false
	}

	e.stats.probe(true)
	return true
}

func (e *Engine) probeFailed(msg string, cause error) {
	e.stats.probe(false)
	e.sink.Report(errsink.Report{Component: "health", Message: msg, Cause: cause})
}
