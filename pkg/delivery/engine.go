package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	pkgerrors "github.com/pkg/errors"

	"github.com/obsidianstack/logship/pkg/auth"
	"github.com/obsidianstack/logship/pkg/errsink"
)

const (
	// MinRetryDelay is the floor applied to the base retry delay.
	MinRetryDelay = 100 * time.Millisecond

	// IdempotencyHeader carries a per-event key that stays the same across
	// retries of that event.
	IdempotencyHeader = "Idempotency-Key"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10

	// maxDrain bounds how much of a success response is drained so the
	// connection can be reused.
	maxDrain = 64 << 10
)

// Compression values accepted by Options.
const (
	CompressionNone = ""
	CompressionGzip = "gzip"
)

// Options configures an Engine.
type Options struct {
	Endpoint    string
	Client      *http.Client
	Resolver    *auth.Resolver
	Sink        errsink.Sink
	Timeout     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	Compression string
	Stats       *Stats

	// Sleep replaces time.Sleep between retries; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Engine delivers documents to one endpoint.
type Engine struct {
	endpoint    string
	healthURL   string
	client      *http.Client
	resolver    *auth.Resolver
	sink        errsink.Sink
	timeout     time.Duration
	maxRetries  int
	baseDelay   time.Duration
	compression string
	stats       *Stats
	sleep       func(time.Duration)
}

// New validates opts and returns an Engine. Negative retries are clamped to
// zero and the base delay is floored to MinRetryDelay.
func New(opts Options) (*Engine, error) {
	health, err := HealthURL(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("delivery: http client is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("delivery: auth resolver is required")
	}
	switch opts.Compression {
	case CompressionNone, CompressionGzip:
	default:
		return nil, fmt.Errorf("delivery: unknown compression %q", opts.Compression)
	}

	e := &Engine{
		endpoint:    opts.Endpoint,
		healthURL:   health,
		client:      opts.Client,
		resolver:    opts.Resolver,
		sink:        errsink.Safe(opts.Sink),
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		baseDelay:   opts.BaseDelay,
		compression: opts.Compression,
		stats:       opts.Stats,
		sleep:       opts.Sleep,
	}
	if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	if e.baseDelay < MinRetryDelay {
		e.baseDelay = MinRetryDelay
	}
	if e.stats == nil {
		e.stats = NewStats()
	}
	if e.sleep == nil {
		e.sleep = time.Sleep
	}
	return e, nil
}

// Endpoint returns the delivery URL.
func (e *Engine) Endpoint() string { return e.endpoint }

// Stats returns the engine's counters.
func (e *Engine) Stats() *Stats { return e.stats }

// Send delivers doc, retrying retryable failures. Failures are reported to
// the sink with origin attached; nothing is returned as an error. The
// returned Result is the last attempt's outcome.
func (e *Engine) Send(ctx context.Context, doc any, origin *errsink.Origin) Result {
	e.stats.event()

	body, err := e.encode(doc)
	if err != nil {
		e.stats.Fail(ReasonEncode)
		e.report(origin, fmt.Sprintf("Failed to encode log document: %v", err), err)
		return Result{Outcome: Terminal, Err: err}
	}

	key := uuid.NewString()
	var last Result
	for attempt := 0; ; {
		creds, err := e.resolver.Resolve(ctx)
		if err != nil {
			e.stats.Fail(ReasonAuth)
			e.report(origin, err.Error(), err)
			return Result{Outcome: Terminal, Err: err}
		}

		e.stats.attempt()
		last = e.post(ctx, creds, body, key)
		switch last.Outcome {
		case Success:
			e.stats.markDelivered()
			return last
		case Terminal:
			e.stats.Fail(ReasonTerminal)
			e.report(origin, last.Message(), last.Err)
			return last
		}

		attempt++
		if attempt > e.maxRetries {
			e.stats.Fail(ReasonExhausted)
			e.report(origin,
				fmt.Sprintf("Failed to send log after %d attempts. Last error: %s", attempt, last.Message()),
				last.Err)
			return last
		}
		e.stats.retry()
		e.sleep(e.baseDelay * time.Duration(attempt))
	}
}

// post performs one POST and classifies it.
func (e *Engine) post(ctx context.Context, creds auth.Attempt, body []byte, key string) Result {
	actx, cancel := e.attemptContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: Retryable, Err: pkgerrors.Wrap(err, "build request")}
	}
	creds.Apply(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, key)
	if e.compression == CompressionGzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{Outcome: Retryable, Err: pkgerrors.WithStack(transportError(err, e.timeout))}
	}
	defer resp.Body.Close()

	return e.classify(resp)
}

// classify turns a response into a Result, reading a bounded body snippet for
// failures and draining successes for connection reuse.
func (e *Engine) classify(resp *http.Response) Result {
	outcome := classifyStatus(resp.StatusCode)
	if outcome == Success {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		return Result{Outcome: Success, Status: resp.StatusCode}
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return Result{
		Outcome: outcome,
		Status:  resp.StatusCode,
		Body:    truncate(string(raw), bodySnippetLen),
		Err:     pkgerrors.New(statusError(resp.StatusCode)),
	}
}

// attemptContext bounds one attempt by the request timeout. Cancellation of
// the caller's context is deliberately not inherited.
func (e *Engine) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) encode(doc any) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	if e.compression != CompressionGzip {
		return data, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip document: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip document: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Engine) report(origin *errsink.Origin, msg string, cause error) {
	e.sink.Report(errsink.Report{
		Component: "delivery",
		Message:   msg,
		Cause:     cause,
		Origin:    origin,
	})
}

// HealthURL derives the health-check URL: the endpoint with its last path
// segment replaced by "health". Query and fragment are dropped.
//
//	http://h/api/logs  → http://h/api/health
//	http://h/logs      → http://h/health
func HealthURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("delivery: parse endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("delivery: endpoint %q must be an http or https URL", endpoint)
	}
	if u.Host == "" {
		return "", fmt.Errorf("delivery: endpoint %q has no host", endpoint)
	}

	base := ""
	if i := strings.LastIndex(u.Path, "/"); i >= 0 {
		base = u.Path[:i]
	}
	u.Path = base + "/health"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
