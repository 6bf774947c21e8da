package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/logship/pkg/auth"
	"github.com/obsidianstack/logship/pkg/logdoc"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
	DefaultLoggerName    = "logship"
	DefaultSink          = "text"
	DefaultAPIKeyHeader  = "X-API-Key"
)

// Config is the logship agent configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	// Endpoint is the aggregator's log ingestion URL. It may be left empty
	// and supplied by --endpoint or LOG_AGGREGATOR_API_ENDPOINT instead.
	Endpoint string `yaml:"endpoint"`

	// Host overrides the host name stamped on every document.
	Host string `yaml:"host"`

	// LoggerName is used for lines that do not name their own logger.
	LoggerName string `yaml:"logger_name"`

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the base of the linear backoff between retries.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Compression is "" or "gzip".
	Compression string `yaml:"compression"`

	// MinLevel drops lines below this severity. Empty ships everything.
	MinLevel string `yaml:"min_level"`

	// Levels overrides the wire string for a severity, e.g. {INFO: NOTICE}.
	Levels map[string]string `yaml:"levels"`

	// Sink selects the error sink format: text | json.
	Sink string `yaml:"sink"`

	// MetricsAddr, when set, serves delivery counters at /metrics.
	MetricsAddr string `yaml:"metrics_addr"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies how the agent authenticates to the aggregator.
type AuthConfig struct {
	// Mode is one of: none | headers | apikey | bearer | basic | token_file.
	Mode string `yaml:"mode"`

	// Headers are sent verbatim when Mode == "headers".
	Headers map[string]string `yaml:"headers"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`

	// TokenFile is re-read before every delivery attempt when
	// Mode == "token_file", so rotated tokens are picked up without a reload.
	TokenFile string `yaml:"token_file"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// Spec converts the auth section into an auth.Spec. Secrets are read from
// the environment at call time.
func (a AuthConfig) Spec() auth.Spec {
	switch a.Mode {
	case "headers":
		return auth.StaticHeaders(a.Headers)
	case "apikey":
		header := a.Header
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		return auth.StaticHeaders(map[string]string{header: a.Key()})
	case "bearer":
		return auth.StaticHeaders(map[string]string{"Authorization": "Bearer " + a.Token()})
	case "basic":
		return auth.Basic(a.Username, a.Password())
	case "token_file":
		return auth.Dynamic(tokenFile(a.TokenFile))
	default:
		return auth.None()
	}
}

// tokenFile returns a provider that reads a bearer token from path.
func tokenFile(path string) auth.Provider {
	return auth.ProviderFunc(func(context.Context) (auth.Result, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return nil, fmt.Errorf("token file %q is empty", path)
		}
		return auth.Headers{"Authorization": "Bearer " + token}, nil
	})
}

// TLSConfig holds TLS dial options for the aggregator connection.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CAFile adds a PEM bundle to the trusted roots.
	CAFile string `yaml:"ca_file"`

	// CertFile and KeyFile enable mutual TLS.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Custom reports whether the TLS section needs a dedicated client.
func (t TLSConfig) Custom() bool {
	return t.CAFile != "" || t.CertFile != ""
}

// LevelMap returns the default level vocabulary with the Levels overrides
// applied.
func (c *Config) LevelMap() (logdoc.LevelMap, error) {
	m := logdoc.DefaultLevels()
	for name, wire := range c.Levels {
		l, err := logdoc.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("levels: %w", err)
		}
		m[l] = wire
	}
	return m, nil
}

// Leveler returns the minimum level, or nil when MinLevel is empty.
func (c *Config) Leveler() (slog.Leveler, error) {
	if c.MinLevel == "" {
		return nil, nil
	}
	l, err := logdoc.ParseLevel(c.MinLevel)
	if err != nil {
		return nil, fmt.Errorf("min_level: %w", err)
	}
	return l, nil
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is used
// as-is when the agent runs without a config file.
func Default() *Config {
	return &Config{
		LoggerName:    DefaultLoggerName,
		Timeout:       DefaultTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
		Sink:          DefaultSink,
	}
}

// Validate checks required fields and structural constraints. It is exported
// so the agent can re-check a config after applying flag overrides.
func (c *Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint: scheme must be http or https, got %q", u.Scheme)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	switch c.Compression {
	case "", "gzip":
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	switch c.Sink {
	case "text", "json":
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	if _, err := c.Leveler(); err != nil {
		return err
	}
	if _, err := c.LevelMap(); err != nil {
		return err
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls: cert_file and key_file must be set together")
	}
	return validateAuth(c.Auth)
}

func validateAuth(a AuthConfig) error {
	switch a.Mode {
	case "none", "":
	case "headers":
		if len(a.Headers) == 0 {
			return fmt.Errorf("auth: headers mode needs at least one header")
		}
	case "apikey":
		if a.KeyEnv == "" {
			return fmt.Errorf("auth: apikey mode requires key_env")
		}
	case "bearer":
		if a.TokenEnv == "" {
			return fmt.Errorf("auth: bearer mode requires token_env")
		}
	case "basic":
		if a.Username == "" {
			return fmt.Errorf("auth: basic mode requires username")
		}
	case "token_file":
		if a.TokenFile == "" {
			return fmt.Errorf("auth: token_file mode requires token_file")
		}
	default:
		return fmt.Errorf("auth: unknown mode %q", a.Mode)
	}
	return a.Spec().Validate()
}
