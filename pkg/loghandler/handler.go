package loghandler

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/logship/pkg/auth"
	"github.com/obsidianstack/logship/pkg/delivery"
	"github.com/obsidianstack/logship/pkg/errsink"
	"github.com/obsidianstack/logship/pkg/logdoc"
)

// Version is sent in the User-Agent header.
const Version = "0.1.0"

const component = "loghandler"

// session is shared by a Handler and every handler derived from it.
type session struct {
	engine    *delivery.Engine
	formatter *logdoc.Formatter
	sink      errsink.Sink
	client    *http.Client
	level     slog.Leveler
	pid       int

	closeOnce sync.Once
	closed    atomic.Bool
}

// Handler is an slog.Handler that delivers records to a remote aggregator.
type Handler struct {
	s      *session
	logger string
	attrs  []scopedAttr
	groups []string
}

var _ slog.Handler = (*Handler)(nil)

// New builds a Handler from cfg. It returns ErrMissingEndpoint when no
// endpoint is configured and no network call is ever made in that case.
func New(cfg Config) (*Handler, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = buildHTTPClient(cfg.InsecureSkipVerify)
	}

	resolver := auth.NewResolver(cfg.Auth, defaultHeaders(), cfg.Sink)
	engine, err := delivery.New(delivery.Options{
		Endpoint:    cfg.Endpoint,
		Client:      client,
		Resolver:    resolver,
		Sink:        cfg.Sink,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.RetryAttempts,
		BaseDelay:   cfg.RetryDelay,
		Compression: cfg.Compression,
		Stats:       cfg.Stats,
		Sleep:       cfg.sleep,
	})
	if err != nil {
		return nil, fmt.Errorf("loghandler: %w", err)
	}

	return &Handler{
		s: &session{
			engine:    engine,
			formatter: logdoc.NewFormatter(cfg.Host, cfg.LevelMap),
			sink:      cfg.Sink,
			client:    client,
			level:     cfg.Level,
			pid:       os.Getpid(),
		},
		logger: cfg.LoggerName,
	}, nil
}

// buildHTTPClient mirrors http.DefaultTransport with an optional relaxed TLS
// config. Per-attempt deadlines come from contexts, not the client.
func buildHTTPClient(insecure bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}
	return &http.Client{Transport: transport}
}

func defaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "logship/"+Version)
	return h
}

// Enabled reports whether level reaches the configured minimum.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	if h.s.level == nil {
		return true
	}
	return level >= h.s.level.Level()
}

// Handle formats r and delivers it. Failures are reported to the error sink;
// the returned error is always nil so a logging call never fails.
func (h *Handler) Handle(ctx context.Context, r slog.Record) (err error) {
	origin := &errsink.Origin{Logger: h.logger, Message: r.Message}
	defer func() {
		if rec := recover(); rec != nil {
			h.s.engine.Stats().Fail(delivery.ReasonPanic)
			h.s.sink.Report(errsink.Report{
				Component: component,
				Message:   fmt.Sprintf("Unexpected panic while handling log event: %v", rec),
				Origin:    origin,
			})
		}
		err = nil
	}()

	if h.s.closed.Load() {
		h.s.engine.Stats().Fail(delivery.ReasonClosed)
		h.s.sink.Report(errsink.Report{
			Component: component,
			Message:   "Handler is closed, dropping log event",
			Origin:    origin,
		})
		return nil
	}

	doc := h.s.formatter.Format(h.event(r))
	h.s.engine.Send(ctx, doc, origin)
	return nil
}

// WithAttrs returns a handler that adds attrs, under the current groups, to
// every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	return h2
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

// Named returns a handler whose documents carry name as logger_name and
// host_process.
func (h *Handler) Named(name string) *Handler {
	h2 := h.clone()
	h2.logger = name
	return h2
}

// LoggerName returns the logger name stamped on documents.
func (h *Handler) LoggerName() string { return h.logger }

// Endpoint returns the delivery URL.
func (h *Handler) Endpoint() string { return h.s.engine.Endpoint() }

// HealthURL returns the URL probed by CheckConnection.
func (h *Handler) HealthURL() string { return h.s.engine.HealthURL() }

// CheckConnection probes the aggregator's health endpoint. It never returns
// an error; failures are reported to the error sink.
func (h *Handler) CheckConnection(ctx context.Context) bool {
	if h.s.closed.Load() {
		h.s.sink.Report(errsink.Report{
			Component: "health",
			Message:   "Health check skipped: handler is closed",
		})
		return false
	}
	return h.s.engine.Probe(ctx)
}

// Stats returns the delivery counters shared by all derived handlers.
func (h *Handler) Stats() *delivery.Stats { return h.s.engine.Stats() }

// Close releases the HTTP session. It is safe to call more than once and
// from any derived handler.
func (h *Handler) Close() error {
	h.s.closeOnce.Do(func() {
		h.s.closed.Store(true)
		h.s.client.CloseIdleConnections()
	})
	return nil
}

func (h *Handler) clone() *Handler {
	return &Handler{
		s:      h.s,
		logger: h.logger,
		attrs:  h.attrs[:len(h.attrs):len(h.attrs)],
		groups: h.groups[:len(h.groups):len(h.groups)],
	}
}
