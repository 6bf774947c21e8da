package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWriteAndRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("host: one\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c })
	}()

	waitFor := func(host string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case c := <-got:
				if c.Host == host {
					return
				}
			case <-deadline:
				t.Fatalf("no reload with host %q", host)
			}
		}
	}

	// The watcher registers asynchronously; keep rewriting until it notices.
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(100 * time.Millisecond)
	write("host: two\n")
	waitFor("two")

	// Atomic save: write elsewhere then rename over the watched path.
	tmp := filepath.Join(dir, ".config.yaml.swp")
	if err := os.WriteFile(tmp, []byte("host: three\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitFor("three")

	// An invalid file is skipped; the next valid write still reloads.
	write("sink: syslog\n")
	write("host: four\n")
	waitFor("four")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), func(*Config) {})
	if err == nil {
		t.Fatal("expected error for a missing directory")
	}
}
