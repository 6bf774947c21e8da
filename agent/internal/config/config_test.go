package config

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/obsidianstack/logship/pkg/auth"
	"github.com/obsidianstack/logship/pkg/errsink"
	"github.com/obsidianstack/logship/pkg/logdoc"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
endpoint: "https://logs.example.com/api/logs"
host: web-01
logger_name: nginx
timeout: 2s
retry_attempts: 5
retry_delay: 250ms
compression: gzip
min_level: warn
sink: json
metrics_addr: ":9464"
levels:
  INFO: NOTICE
auth:
  mode: apikey
  header: X-Ingest-Key
  key_env: TEST_INGEST_KEY
`
	cfg := loadFromString(t, yaml)

	if cfg.Endpoint != "https://logs.example.com/api/logs" {
		t.Errorf("endpoint: got %q", cfg.Endpoint)
	}
	if cfg.Host != "web-01" || cfg.LoggerName != "nginx" {
		t.Errorf("host/logger_name: got %q/%q", cfg.Host, cfg.LoggerName)
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("timeout: got %v", cfg.Timeout)
	}
	if cfg.RetryAttempts != 5 {
		t.Errorf("retry_attempts: got %d", cfg.RetryAttempts)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry_delay: got %v", cfg.RetryDelay)
	}
	if cfg.Compression != "gzip" || cfg.Sink != "json" || cfg.MetricsAddr != ":9464" {
		t.Errorf("compression/sink/metrics_addr: got %q/%q/%q", cfg.Compression, cfg.Sink, cfg.MetricsAddr)
	}
	if cfg.Auth.Mode != "apikey" || cfg.Auth.Header != "X-Ingest-Key" {
		t.Errorf("auth: got %+v", cfg.Auth)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `endpoint: "http://localhost:8080/api/logs"`)

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("default timeout: got %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.RetryAttempts != DefaultRetryAttempts {
		t.Errorf("default retry_attempts: got %d, want %d", cfg.RetryAttempts, DefaultRetryAttempts)
	}
	if cfg.RetryDelay != DefaultRetryDelay {
		t.Errorf("default retry_delay: got %v, want %v", cfg.RetryDelay, DefaultRetryDelay)
	}
	if cfg.LoggerName != DefaultLoggerName {
		t.Errorf("default logger_name: got %q", cfg.LoggerName)
	}
	if cfg.Sink != DefaultSink {
		t.Errorf("default sink: got %q", cfg.Sink)
	}
}

func TestLoad_ExplicitZeroRetries(t *testing.T) {
	cfg := loadFromString(t, "retry_attempts: 0\n")
	if cfg.RetryAttempts != 0 {
		t.Errorf("retry_attempts: got %d, want 0", cfg.RetryAttempts)
	}
}

func TestLoad_EndpointOptional(t *testing.T) {
	cfg := loadFromString(t, "host: solo\n")
	if cfg.Endpoint != "" {
		t.Errorf("endpoint: got %q, want empty", cfg.Endpoint)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad scheme", `endpoint: "ftp://example.com/logs"`},
		{"zero timeout", "timeout: 0s\n"},
		{"negative retries", "retry_attempts: -1\n"},
		{"negative delay", "retry_delay: -1s\n"},
		{"unknown compression", "compression: brotli\n"},
		{"unknown sink", "sink: syslog\n"},
		{"bad min_level", "min_level: loud\n"},
		{"bad levels key", "levels:\n  LOUD: X\n"},
		{"cert without key", "tls:\n  cert_file: c.pem\n"},
		{"unknown auth mode", "auth:\n  mode: magictoken\n"},
		{"apikey without env", "auth:\n  mode: apikey\n"},
		{"bearer without env", "auth:\n  mode: bearer\n"},
		{"basic without username", "auth:\n  mode: basic\n"},
		{"token_file without path", "auth:\n  mode: token_file\n"},
		{"headers empty", "auth:\n  mode: headers\n"},
		{"headers invalid name", "auth:\n  mode: headers\n  headers:\n    \"Bad Header\": x\n"},
		{"not yaml", "endpoint: [unterminated\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MultipleAuthModes(t *testing.T) {
	tests := []struct {
		name string
		auth string
		kind auth.Kind
	}{
		{"none", "mode: none", auth.KindNone},
		{"empty", "mode: \"\"", auth.KindNone},
		{"headers", "mode: headers\n  headers:\n    X-Tenant: acme", auth.KindHeaders},
		{"apikey", "mode: apikey\n  key_env: K", auth.KindHeaders},
		{"bearer", "mode: bearer\n  token_env: T", auth.KindHeaders},
		{"basic", "mode: basic\n  username: ada", auth.KindBasic},
		{"token_file", "mode: token_file\n  token_file: /run/token", auth.KindDynamic},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := loadFromString(t, "auth:\n  "+tc.auth+"\n")
			if got := cfg.Auth.Spec().Kind(); got != tc.kind {
				t.Errorf("Spec().Kind(): got %v, want %v", got, tc.kind)
			}
		})
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

func TestAuthConfig_Password(t *testing.T) {
	t.Setenv("TEST_BASIC_PASSWORD", "hunter2")
	a := AuthConfig{Mode: "basic", Username: "ada", PasswordEnv: "TEST_BASIC_PASSWORD"}
	if got := a.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q", got)
	}
}

// resolve runs spec through a resolver and returns the request it produces.
func resolve(t *testing.T, spec auth.Spec) (*http.Request, error) {
	t.Helper()
	rec := &errsink.Recorder{}
	attempt, err := auth.NewResolver(spec, nil, rec).Resolve(context.Background())
	if err != nil {
		return nil, err
	}
	if rec.Len() != 0 {
		t.Fatalf("spec rejected: %+v", rec.Reports())
	}
	req, _ := http.NewRequest(http.MethodPost, "http://example.com", nil)
	attempt.Apply(req)
	return req, nil
}

func TestAuthConfig_Spec_Headers(t *testing.T) {
	t.Setenv("TEST_API_KEY", "k-1")
	t.Setenv("TEST_BEARER_TOKEN", "t-1")

	req, err := resolve(t, AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}.Spec())
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get(DefaultAPIKeyHeader); got != "k-1" {
		t.Errorf("apikey header: got %q", got)
	}

	req, err = resolve(t, AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}.Spec())
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer t-1" {
		t.Errorf("bearer header: got %q", got)
	}
}

func TestAuthConfig_Spec_Basic(t *testing.T) {
	t.Setenv("TEST_BASIC_PASSWORD", "hunter2")
	req, err := resolve(t, AuthConfig{Mode: "basic", Username: "ada", PasswordEnv: "TEST_BASIC_PASSWORD"}.Spec())
	if err != nil {
		t.Fatal(err)
	}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "ada" || pass != "hunter2" {
		t.Errorf("BasicAuth(): got %q/%q/%v", user, pass, ok)
	}
}

func TestAuthConfig_Spec_TokenFileIsReread(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	spec := AuthConfig{Mode: "token_file", TokenFile: path}.Spec()

	req, err := resolve(t, spec)
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer first" {
		t.Errorf("first token: got %q", got)
	}

	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}
	req, err = resolve(t, spec)
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer second" {
		t.Errorf("rotated token: got %q", got)
	}

	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := resolve(t, spec); err == nil {
		t.Error("expected error for an empty token file")
	}
}

func TestConfig_LevelMap(t *testing.T) {
	cfg := Default()
	cfg.Levels = map[string]string{"info": "NOTICE", "CRITICAL": "FATAL"}

	m, err := cfg.LevelMap()
	if err != nil {
		t.Fatal(err)
	}
	if m[slog.LevelInfo] != "NOTICE" || m[logdoc.LevelCritical] != "FATAL" {
		t.Errorf("overrides not applied: %v", m)
	}
	if m[slog.LevelWarn] != "WARNING" {
		t.Errorf("defaults lost: %v", m)
	}
}

func TestConfig_Leveler(t *testing.T) {
	cfg := Default()
	if l, err := cfg.Leveler(); err != nil || l != nil {
		t.Errorf("empty min_level: got %v, %v", l, err)
	}
	cfg.MinLevel = "error"
	l, err := cfg.Leveler()
	if err != nil {
		t.Fatal(err)
	}
	if l.Level() != slog.LevelError {
		t.Errorf("Leveler(): got %v", l.Level())
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
