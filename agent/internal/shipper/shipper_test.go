package shipper

import (
	"bytes"
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obsidianstack/logship/agent/internal/config"
	"github.com/obsidianstack/logship/internal/mockendpoint"
	"github.com/obsidianstack/logship/pkg/delivery"
	"github.com/obsidianstack/logship/pkg/errsink"
	"github.com/obsidianstack/logship/pkg/loghandler"
)

func testConfig(endpoint string) *config.Config {
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.Host = "agent-host"
	cfg.RetryAttempts = 0
	cfg.RetryDelay = 0
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newTestHandler(t *testing.T, cfg *config.Config, sink errsink.Sink) *loghandler.Handler {
	t.Helper()
	h, err := NewHandler(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRun_ShipsJSONAndTextLines(t *testing.T) {
	srv := mockendpoint.New(t)
	sink := &errsink.Recorder{}
	s := New(NewSlot(newTestHandler(t, testConfig(srv.LogsURL()), sink)))

	input := strings.Join([]string{
		`{"level":"error","msg":"payment failed","logger":"billing","order":42}`,
		``,
		`plain text line`,
	}, "\n")
	n, err := s.Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 {
		t.Fatalf("shipped %d entries, want 2", n)
	}

	reqs := srv.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	first := reqs[0].JSON(t)
	if first["level"] != "ERROR" || first["message"] != "payment failed" || first["logger_name"] != "billing" {
		t.Errorf("first document: %v", first)
	}
	if extra, _ := first["extra"].(map[string]any); extra["order"] != float64(42) {
		t.Errorf("first extra: %v", first["extra"])
	}
	second := reqs[1].JSON(t)
	if second["message"] != "plain text line" || second["logger_name"] != config.DefaultLoggerName {
		t.Errorf("second document: %v", second)
	}
	if second["host"] != "agent-host" {
		t.Errorf("host: got %v", second["host"])
	}
	if sink.Len() != 0 {
		t.Errorf("unexpected reports: %+v", sink.Reports())
	}
}

func TestRun_MinLevelFilters(t *testing.T) {
	srv := mockendpoint.New(t)
	cfg := testConfig(srv.LogsURL())
	cfg.MinLevel = "warn"
	s := New(NewSlot(newTestHandler(t, cfg, &errsink.Recorder{})))

	n, err := s.Run(context.Background(), strings.NewReader(
		`{"level":"debug","msg":"noise"}`+"\n"+`{"level":"warning","msg":"signal"}`+"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(srv.Requests()) != 1 {
		t.Fatalf("shipped %d, requests %d; want 1 and 1", n, len(srv.Requests()))
	}
	if got := srv.Requests()[0].JSON(t)["message"]; got != "signal" {
		t.Errorf("message: got %v", got)
	}
}

func TestRun_LineTooLong(t *testing.T) {
	srv := mockendpoint.New(t)
	s := New(NewSlot(newTestHandler(t, testConfig(srv.LogsURL()), &errsink.Recorder{})))

	_, err := s.Run(context.Background(), strings.NewReader(strings.Repeat("x", maxLine+10)))
	if err == nil {
		t.Fatal("expected error for an oversized line")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := mockendpoint.New(t)
	s := New(NewSlot(newTestHandler(t, testConfig(srv.LogsURL()), &errsink.Recorder{})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := s.Run(ctx, strings.NewReader("a\nb\n"))
	if err != nil || n != 0 {
		t.Errorf("Run after cancel: n=%d err=%v", n, err)
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("requests sent after cancel")
	}
}

func TestSlot_SwapClosesPrevious(t *testing.T) {
	oldSrv := mockendpoint.New(t)
	newSrv := mockendpoint.New(t)
	stats := delivery.NewStats()
	sink := &errsink.Recorder{}

	oldH, err := NewHandler(testConfig(oldSrv.LogsURL()), sink, stats)
	if err != nil {
		t.Fatal(err)
	}
	newH, err := NewHandler(testConfig(newSrv.LogsURL()), sink, stats)
	if err != nil {
		t.Fatal(err)
	}

	slot := NewSlot(oldH)
	s := New(slot)
	s.Ship(context.Background(), []byte("before"))
	slot.Swap(newH)
	s.Ship(context.Background(), []byte("after"))

	if len(oldSrv.Requests()) != 1 || len(newSrv.Requests()) != 1 {
		t.Errorf("requests old=%d new=%d, want 1 and 1", len(oldSrv.Requests()), len(newSrv.Requests()))
	}
	if slot.Handler() != newH {
		t.Errorf("slot still holds the old handler")
	}
	if oldH.CheckConnection(context.Background()) {
		t.Errorf("old handler still open after Swap")
	}
	if got := stats.Snapshot().Delivered; got != 2 {
		t.Errorf("shared stats delivered = %d, want 2", got)
	}
	if err := slot.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNewHandler_Auth(t *testing.T) {
	srv := mockendpoint.New(t)
	t.Setenv("SHIPPER_TEST_KEY", "k-123")
	cfg := testConfig(srv.LogsURL())
	cfg.Auth = config.AuthConfig{Mode: "apikey", Header: "X-Ingest-Key", KeyEnv: "SHIPPER_TEST_KEY"}

	New(NewSlot(newTestHandler(t, cfg, &errsink.Recorder{}))).Ship(context.Background(), []byte("hi"))

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests", len(reqs))
	}
	if got := reqs[0].Header.Get("X-Ingest-Key"); got != "k-123" {
		t.Errorf("X-Ingest-Key: got %q", got)
	}
}

func TestNewHandler_LevelOverrides(t *testing.T) {
	srv := mockendpoint.New(t)
	cfg := testConfig(srv.LogsURL())
	cfg.Levels = map[string]string{"INFO": "NOTICE"}

	New(NewSlot(newTestHandler(t, cfg, &errsink.Recorder{}))).Ship(context.Background(), []byte("hi"))

	if got := srv.Requests()[0].JSON(t)["level"]; got != "NOTICE" {
		t.Errorf("level: got %v", got)
	}
}

func TestNewHandler_MissingEndpoint(t *testing.T) {
	t.Setenv("LOG_AGGREGATOR_API_ENDPOINT", "")
	if _, err := NewHandler(testConfig(""), &errsink.Recorder{}, nil); err == nil {
		t.Fatal("expected error without an endpoint")
	}
}

func TestNewHandler_PrivateCA(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(caFile, caPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	sink := &errsink.Recorder{}
	cfg := testConfig(srv.URL + "/api/logs")
	cfg.TLS.CAFile = caFile
	New(NewSlot(newTestHandler(t, cfg, sink))).Ship(context.Background(), []byte("over tls"))

	if hits.Load() != 1 || sink.Len() != 0 {
		t.Errorf("hits=%d reports=%+v", hits.Load(), sink.Reports())
	}

	// Without the CA the certificate is untrusted and delivery fails.
	sink = &errsink.Recorder{}
	New(NewSlot(newTestHandler(t, testConfig(srv.URL+"/api/logs"), sink))).Ship(context.Background(), []byte("untrusted"))
	if hits.Load() != 1 || sink.Len() != 1 {
		t.Errorf("untrusted: hits=%d reports=%d", hits.Load(), sink.Len())
	}
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.pem")
	if err := os.WriteFile(junk, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  config.TLSConfig
	}{
		{"missing ca", config.TLSConfig{CAFile: filepath.Join(dir, "absent.pem")}},
		{"junk ca", config.TLSConfig{CAFile: junk}},
		{"missing cert", config.TLSConfig{CertFile: filepath.Join(dir, "c.pem"), KeyFile: filepath.Join(dir, "k.pem")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := buildHTTPClient(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if c, err := buildHTTPClient(config.TLSConfig{InsecureSkipVerify: true}); c != nil || err != nil {
		t.Errorf("plain tls section: got %v, %v; want nil, nil", c, err)
	}
}

func TestNewSink(t *testing.T) {
	var buf bytes.Buffer
	prev := stderr
	stderr = &buf
	defer func() { stderr = prev }()

	NewSink("json").Report(errsink.Report{Component: "delivery", Message: "boom"})
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"component":"delivery"`) {
		t.Errorf("json sink output: %q", buf.String())
	}

	buf.Reset()
	NewSink("text").Report(errsink.Report{Component: "delivery", Message: "boom"})
	if !strings.HasPrefix(buf.String(), "--- Logging error ---") {
		t.Errorf("text sink output: %q", buf.String())
	}
}
