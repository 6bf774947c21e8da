package shipper

import (
	"fmt"

	"github.com/obsidianstack/logship/agent/internal/config"
	"github.com/obsidianstack/logship/pkg/delivery"
	"github.com/obsidianstack/logship/pkg/errsink"
	"github.com/obsidianstack/logship/pkg/loghandler"
)

// NewHandler builds a loghandler.Handler from the agent config. stats may be
// shared across handlers built for successive config versions.
func NewHandler(cfg *config.Config, sink errsink.Sink, stats *delivery.Stats) (*loghandler.Handler, error) {
	levels, err := cfg.LevelMap()
	if err != nil {
		return nil, err
	}
	minLevel, err := cfg.Leveler()
	if err != nil {
		return nil, err
	}
	client, err := buildHTTPClient(cfg.TLS)
	if err != nil {
		return nil, err
	}

	hc := loghandler.DefaultConfig()
	hc.Endpoint = cfg.Endpoint
	hc.Host = cfg.Host
	hc.LoggerName = cfg.LoggerName
	hc.Auth = cfg.Auth.Spec()
	hc.Timeout = cfg.Timeout
	hc.RetryAttempts = cfg.RetryAttempts
	hc.RetryDelay = cfg.RetryDelay
	hc.InsecureSkipVerify = cfg.TLS.InsecureSkipVerify
	hc.LevelMap = levels
	hc.Level = minLevel
	hc.Compression = cfg.Compression
	hc.Sink = sink
	hc.Stats = stats
	hc.HTTPClient = client

	h, err := loghandler.New(hc)
	if err != nil {
		return nil, fmt.Errorf("shipper: %w", err)
	}
	return h, nil
}

// NewSink returns the error sink named by the config's sink field, writing
// to stderr.
func NewSink(kind string) errsink.Sink {
	if kind == "json" {
		return errsink.Safe(errsink.NewJSON(stderr))
	}
	return errsink.Safe(errsink.NewText(stderr))
}
