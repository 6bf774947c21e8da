package loghandler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/obsidianstack/logship/pkg/auth"
	"github.com/obsidianstack/logship/pkg/delivery"
	"github.com/obsidianstack/logship/pkg/errsink"
	"github.com/obsidianstack/logship/pkg/logdoc"
)

// Default values applied by DefaultConfig and for zero fields in New.
const (
	DefaultTimeout    = 5 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second

	// EnvPrefix prefixes the environment variables read by New.
	EnvPrefix = "LOG_AGGREGATOR"
)

// ErrMissingEndpoint is returned by New when neither the config nor the
// environment names an endpoint.
var ErrMissingEndpoint = errors.New(
	"loghandler: api endpoint must be provided either in Config.Endpoint or via the LOG_AGGREGATOR_API_ENDPOINT environment variable")

// Config configures a Handler. Start from DefaultConfig; New copies the
// struct and its maps, so later changes have no effect.
type Config struct {
	// Endpoint is the URL documents are POSTed to. Empty means
	// LOG_AGGREGATOR_API_ENDPOINT.
	Endpoint string

	// Host identifies this machine in every document. Empty means
	// LOG_AGGREGATOR_HOST, then os.Hostname().
	Host string

	// LoggerName fills logger_name and host_process. Empty means the
	// executable's base name.
	LoggerName string

	Auth auth.Spec

	// Timeout bounds each HTTP attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Negative values are treated as zero.
	RetryAttempts int

	// RetryDelay is the base of the linear backoff, floored to
	// delivery.MinRetryDelay.
	RetryDelay time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// LevelMap overrides the severity vocabulary. Nil means
	// logdoc.DefaultLevels().
	LevelMap logdoc.LevelMap

	// Level is the minimum level handled. Nil handles everything.
	Level slog.Leveler

	// Compression is "" or "gzip".
	Compression string

	// Sink receives delivery failures. Nil means stderr.
	Sink errsink.Sink

	// Stats, when set, is shared with other handlers so counters survive a
	// handler being replaced. Nil means a fresh set.
	Stats *delivery.Stats

	// HTTPClient replaces the handler-owned client. The handler still closes
	// its idle connections on Close.
	HTTPClient *http.Client

	// sleep replaces time.Sleep between retries in tests.
	sleep func(time.Duration)
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		RetryAttempts: DefaultRetries,
		RetryDelay:    DefaultRetryDelay,
	}
}

// envConfig is read with envconfig under EnvPrefix.
type envConfig struct {
	APIEndpoint string `envconfig:"API_ENDPOINT"`
	Host        string `envconfig:"HOST"`
}

// resolve fills empty fields from the environment and the defaults. The
// returned Config owns its maps.
func (c Config) resolve() (Config, error) {
	var env envConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return c, fmt.Errorf("loghandler: read environment: %w", err)
	}

	if c.Endpoint == "" {
		c.Endpoint = env.APIEndpoint
	}
	if c.Endpoint == "" {
		return c, ErrMissingEndpoint
	}

	if c.Host == "" {
		c.Host = env.Host
	}
	if c.Host == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "unknown"
		}
		c.Host = h
	}
	if c.LoggerName == "" {
		c.LoggerName = filepath.Base(os.Args[0])
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryDelay < delivery.MinRetryDelay {
		c.RetryDelay = delivery.MinRetryDelay
	}
	if c.LevelMap == nil {
		c.LevelMap = logdoc.DefaultLevels()
	} else {
		c.LevelMap = c.LevelMap.Clone()
	}
	if c.Sink == nil {
		c.Sink = errsink.Default()
	} else {
		c.Sink = errsink.Safe(c.Sink)
	}
	return c, nil
}
