package delivery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/obsidianstack/logship/pkg/auth"
)

func TestProbe_Healthy(t *testing.T) {
	f := newFixture(t, auth.StaticHeaders(map[string]string{"X-API-Key": "k"}), nil)

	if !f.engine.Probe(context.Background()) {
		t.Fatalf("Probe() = false, reports: %+v", f.sink.Reports())
	}
	reqs := f.srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Method != http.MethodGet || reqs[0].Path != "/api/health" {
		t.Errorf("request = %s %s", reqs[0].Method, reqs[0].Path)
	}
	if reqs[0].Header.Get("X-Api-Key") != "k" {
		t.Error("probe did not carry auth headers")
	}
	if f.engine.HealthURL() != f.srv.HealthURL() {
		t.Errorf("HealthURL = %q, want %q", f.engine.HealthURL(), f.srv.HealthURL())
	}
}

func TestProbe_Unhealthy(t *testing.T) {
	f := newFixture(t, auth.None(), func(o *Options) { o.MaxRetries = 3 })
	f.srv.SetHealth(http.StatusServiceUnavailable)

	if f.engine.Probe(context.Background()) {
		t.Fatal("Probe() = true for 503")
	}
	if got := f.srv.Count(http.MethodGet); got != 1 {
		t.Errorf("GETs = %d, want 1", got)
	}
	reports := f.sink.Reports()
	if len(reports) != 1 {
		t.Fatalf("reports = %+v", reports)
	}
	if want := "Health check failed: HTTP error: Service Unavailable (Status: 503)"; reports[0].Message != want {
		t.Errorf("report = %q, want %q", reports[0].Message, want)
	}
	if len(f.sleeps.durations()) != 0 {
		t.Error("probe retried")
	}
}

func TestProbe_Unreachable(t *testing.T) {
	f := newFixture(t, auth.None(), nil)
	f.srv.Close()

	if f.engine.Probe(context.Background()) {
		t.Fatal("Probe() = true for closed server")
	}
	reports := f.sink.Reports()
	if len(reports) != 1 || !strings.Contains(reports[0].Message, "Status: N/A") {
		t.Errorf("reports = %+v", reports)
	}
}

func TestProbe_ProviderFailure(t *testing.T) {
	p := auth.ProviderFunc(func(context.Context) (auth.Result, error) {
		return nil, errors.New("expired")
	})
	f := newFixture(t, auth.Dynamic(p), nil)

	if f.engine.Probe(context.Background()) {
		t.Fatal("Probe() = true with failing provider")
	}
	if len(f.srv.Requests()) != 0 {
		t.Error("probe hit the network after provider failure")
	}
	if f.sink.Len() != 1 {
		t.Errorf("reports = %d, want 1", f.sink.Len())
	}
}

func TestProbe_ProviderPanicIsContained(t *testing.T) {
	p := auth.ProviderFunc(func(context.Context) (auth.Result, error) {
		panic("boom")
	})
	f := newFixture(t, auth.Dynamic(p), nil)

	if f.engine.Probe(context.Background()) {
		t.Fatal("Probe() = true with panicking provider")
	}
	snap := f.engine.Stats().Snapshot()
	if snap.ProbesFailed != 1 || snap.ProbesOK != 0 {
		t.Errorf("probe counters = ok:%d failed:%d", snap.ProbesOK, snap.ProbesFailed)
	}
}
