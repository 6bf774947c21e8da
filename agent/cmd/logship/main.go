// logship ships log lines from files or stdin to a log aggregation endpoint.
//
// Each input line is parsed as JSON (one object, or an array of objects) and
// falls back to a plain-text INFO message. Every entry becomes one JSON
// document POSTed to the endpoint with bounded linear-backoff retries.
//
//	tail -F app.log | logship --config /etc/logship/config.yaml
//	logship --endpoint https://logs.example.com/api/logs --input a.log --input b.log
//	logship --config config.yaml --check
//
// Exit codes: 0 ok, 1 config, input or health check failure, 2 usage.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"github.com/obsidianstack/logship/agent/internal/config"
	"github.com/obsidianstack/logship/agent/internal/security"
	"github.com/obsidianstack/logship/agent/internal/shipper"
	"github.com/obsidianstack/logship/pkg/delivery"
	"github.com/obsidianstack/logship/pkg/loghandler"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// flags holds command-line values that override the config file.
type flags struct {
	configPath  string
	endpoint    string
	inputs      []string
	check       bool
	metricsAddr string
	sink        string
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin)
	cancel()
	os.Exit(code)
}

func parseFlags(args []string) (*flags, error) {
	var f flags
	fs := pflag.NewFlagSet("logship", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "path to config file (optional)")
	fs.StringVar(&f.endpoint, "endpoint", "", "log ingestion URL, overrides the config file and LOG_AGGREGATOR_API_ENDPOINT")
	fs.StringArrayVarP(&f.inputs, "input", "i", nil, "file to ship, repeatable; - reads stdin (default)")
	fs.BoolVar(&f.check, "check", false, "probe the aggregator health endpoint and exit")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve delivery counters at /metrics on this address")
	fs.StringVar(&f.sink, "sink", "", "delivery error output format: text | json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return &f, nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	return applyFlags(cfg, f)
}

func applyFlags(cfg *config.Config, f *flags) (*config.Config, error) {
	if f.endpoint != "" {
		cfg.Endpoint = f.endpoint
	}
	if f.sink != "" {
		cfg.Sink = f.sink
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdin io.Reader) int {
	f, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		slog.Error("logship: invalid arguments", "err", err)
		return exitUsage
	}

	cfg, err := loadConfig(f)
	if err != nil {
		slog.Error("logship: failed to load config", "err", err)
		return exitFailed
	}

	stats := delivery.NewStats()
	h, err := shipper.NewHandler(cfg, shipper.NewSink(cfg.Sink), stats)
	if err != nil {
		slog.Error("logship: failed to build handler", "err", err)
		return exitFailed
	}
	slot := shipper.NewSlot(h)
	defer slot.Close()

	slog.Info("logship: starting",
		"endpoint", h.Endpoint(),
		"logger_name", h.LoggerName(),
		"retry_attempts", cfg.RetryAttempts,
	)

	if f.check {
		return checkEndpoint(ctx, h, cfg)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, stats)
	}

	if f.configPath != "" {
		go func() {
			if err := config.Watch(ctx, f.configPath, func(updated *config.Config) {
				reload(slot, updated, f, stats)
			}); err != nil {
				slog.Error("logship: config watcher stopped", "err", err)
			}
		}()
	}

	inputs := f.inputs
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	done := make(chan int, 1)
	go func() { done <- shipInputs(ctx, shipper.New(slot), inputs, stdin) }()

	select {
	case code := <-done:
		s := stats.Snapshot()
		slog.Info("logship: finished", "events", s.Events, "delivered", s.Delivered)
		return code
	case <-ctx.Done():
		slog.Info("logship: shutting down")
		return exitOK
	}
}

// checkEndpoint probes the health endpoint and, for https endpoints, logs the
// state of the served certificate.
func checkEndpoint(ctx context.Context, h *loghandler.Handler, cfg *config.Config) int {
	if tlsCfg, err := shipper.TLSClientConfig(cfg.TLS); err == nil {
		if cs := security.Check(ctx, h.Endpoint(), tlsCfg); cs != nil {
			attrs := []any{"status", cs.Status, "issuer", cs.Issuer, "days_left", cs.DaysLeft}
			switch cs.Status {
			case security.StatusValid:
				slog.Info("logship: tls certificate", attrs...)
			case security.StatusUnreachable:
				slog.Warn("logship: tls certificate", append(attrs, "err", cs.Err)...)
			default:
				slog.Warn("logship: tls certificate", attrs...)
			}
		}
	}

	if !h.CheckConnection(ctx) {
		slog.Error("logship: health check failed", "url", h.HealthURL())
		return exitFailed
	}
	slog.Info("logship: health check passed", "url", h.HealthURL())
	return exitOK
}

// reload swaps in a handler built from updated. Flag overrides still win.
func reload(slot *shipper.Slot, updated *config.Config, f *flags, stats *delivery.Stats) {
	cfg, err := applyFlags(updated, f)
	if err != nil {
		slog.Error("logship: reloaded config rejected, keeping previous handler", "err", err)
		return
	}
	h, err := shipper.NewHandler(cfg, shipper.NewSink(cfg.Sink), stats)
	if err != nil {
		slog.Error("logship: rebuild handler failed, keeping previous handler", "err", err)
		return
	}
	slot.Swap(h)
	slog.Info("logship: handler reloaded", "endpoint", h.Endpoint())
}

// shipInputs ships each input in order. A missing file fails the run but
// does not stop the remaining inputs.
func shipInputs(ctx context.Context, s *shipper.Shipper, inputs []string, stdin io.Reader) int {
	code := exitOK
	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		r, closeFn, err := openInput(in, stdin)
		if err != nil {
			slog.Error("logship: skipping input", "input", in, "err", err)
			code = exitFailed
			continue
		}
		n, err := s.Run(ctx, r)
		closeFn()
		if err != nil {
			slog.Error("logship: input failed", "input", in, "shipped", n, "err", err)
			code = exitFailed
			continue
		}
		slog.Debug("logship: input done", "input", in, "shipped", n)
	}
	return code
}

func openInput(name string, stdin io.Reader) (io.Reader, func(), error) {
	if name == "-" {
		return stdin, func() {}, nil
	}
	fh, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return fh, func() { _ = fh.Close() }, nil
}

// metricsRouter exposes stats in the Prometheus text format.
func metricsRouter(stats *delivery.Stats) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if err := stats.WriteText(w); err != nil {
			slog.Error("logship: write metrics", "err", err)
		}
	}).Methods(http.MethodGet)
	return r
}

func serveMetrics(ctx context.Context, addr string, stats *delivery.Stats) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metricsRouter(stats),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("logship: metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("logship: metrics server stopped", "err", err)
	}
}
