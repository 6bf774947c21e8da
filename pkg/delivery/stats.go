package delivery

import (
	"fmt"
	"io"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Reason labels why an event was not delivered.
type Reason string

const (
	ReasonTerminal  Reason = "terminal"
	ReasonExhausted Reason = "exhausted"
	ReasonAuth      Reason = "auth"
	ReasonEncode    Reason = "encode"
	ReasonClosed    Reason = "closed"
	ReasonPanic     Reason = "panic"
)

var reasons = []Reason{
	ReasonTerminal, ReasonExhausted, ReasonAuth, ReasonEncode, ReasonClosed, ReasonPanic,
}

// Stats counts delivery activity. All methods are safe for concurrent use.
type Stats struct {
	events       atomic.Int64
	attempts     atomic.Int64
	retries      atomic.Int64
	delivered    atomic.Int64
	probesOK     atomic.Int64
	probesFailed atomic.Int64

	// failures is populated once in NewStats and only read afterwards.
	failures map[Reason]*atomic.Int64
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	s := &Stats{failures: make(map[Reason]*atomic.Int64, len(reasons))}
	for _, r := range reasons {
		s.failures[r] = new(atomic.Int64)
	}
	return s
}

func (s *Stats) event()         { s.events.Add(1) }
func (s *Stats) attempt()       { s.attempts.Add(1) }
func (s *Stats) retry()         { s.retries.Add(1) }
func (s *Stats) markDelivered() { s.delivered.Add(1) }

func (s *Stats) probe(ok bool) {
	if ok {
		s.probesOK.Add(1)
		return
	}
	s.probesFailed.Add(1)
}

// Fail counts one undelivered event. Unknown reasons are ignored.
func (s *Stats) Fail(r Reason) {
	if c, ok := s.failures[r]; ok {
		c.Add(1)
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Events       int64
	Attempts     int64
	Retries      int64
	Delivered    int64
	Failures     map[Reason]int64
	ProbesOK     int64
	ProbesFailed int64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Events:       s.events.Load(),
		Attempts:     s.attempts.Load(),
		Retries:      s.retries.Load(),
		Delivered:    s.delivered.Load(),
		ProbesOK:     s.probesOK.Load(),
		ProbesFailed: s.probesFailed.Load(),
		Failures:     make(map[Reason]int64, len(reasons)),
	}
	for _, r := range reasons {
		snap.Failures[r] = s.failures[r].Load()
	}
	return snap
}

// Gather renders the counters as Prometheus metric families, sorted by name.
func (s *Stats) Gather() []*dto.MetricFamily {
	snap := s.Snapshot()

	failures := make([]*dto.Metric, 0, len(reasons))
	for _, r := range reasons {
		failures = append(failures, counterMetric(snap.Failures[r], "reason", string(r)))
	}

	return []*dto.MetricFamily{
		counterFamily("logship_delivered_total", "Log documents accepted by the endpoint.",
			counterMetric(snap.Delivered)),
		counterFamily("logship_delivery_attempts_total", "HTTP POST attempts, including retries.",
			counterMetric(snap.Attempts)),
		counterFamily("logship_delivery_failures_total", "Log events that were not delivered, by reason.",
			failures...),
		counterFamily("logship_delivery_retries_total", "Backoff sleeps taken before a retry.",
			counterMetric(snap.Retries)),
		counterFamily("logship_events_total", "Log events handed to the delivery engine.",
			counterMetric(snap.Events)),
		counterFamily("logship_health_probes_total", "Health probes by result.",
			counterMetric(snap.ProbesOK, "result", "ok"),
			counterMetric(snap.ProbesFailed, "result", "failed")),
	}
}

// WriteText writes the Prometheus text exposition of the counters to w.
func (s *Stats) WriteText(w io.Writer) error {
	for _, mf := range s.Gather() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("delivery: write metrics: %w", err)
		}
	}
	return nil
}

func counterFamily(name, help string, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: metrics,
	}
}

// counterMetric builds one counter sample; labels are name/value pairs.
func counterMetric(v int64, labels ...string) *dto.Metric {
	m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(float64(v))}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}
