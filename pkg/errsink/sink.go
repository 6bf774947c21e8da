package errsink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/obsidianstack/logship/pkg/logdoc"
)

const (
	headerLine = "--- Logging error ---"
	footerLine = "---------------------"
)

// Origin identifies the log event whose delivery failed.
type Origin struct {
	Logger  string
	Message string
}

// Report describes one internal failure.
type Report struct {
	// Component names the part of the shipper that failed, e.g. "delivery".
	Component string
	Message   string
	Cause     error
	Origin    *Origin
}

// Sink receives failure reports. Implementations must not block for long;
// they run on the emitting goroutine.
type Sink interface {
	Report(r Report)
}

// Func adapts a function to Sink.
type Func func(Report)

// Report calls f.
func (f Func) Report(r Report) { f(r) }

// Default returns the stderr text sink wrapped by Safe.
func Default() Sink {
	return Safe(NewText(os.Stderr))
}

// Text writes human-readable report blocks.
type Text struct {
	mu sync.Mutex
	w  io.Writer
}

// NewText returns a Text sink writing to w.
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

// Report writes one block. Write errors are dropped: there is nowhere left
// to report them.
func (t *Text) Report(r Report) {
	var b strings.Builder
	b.WriteString(headerLine + "\n")
	if r.Message != "" {
		b.WriteString(r.Message + "\n")
	}
	if r.Component != "" {
		fmt.Fprintf(&b, "Handler: %s\n", r.Component)
	}
	if r.Origin != nil {
		fmt.Fprintf(&b, "Record Logger: %s\n", r.Origin.Logger)
		fmt.Fprintf(&b, "Record Message: %s\n", r.Origin.Message)
	}
	if r.Cause != nil {
		fmt.Fprintf(&b, "Exception: %T: %s\n", r.Cause, r.Cause.Error())
		fmt.Fprintf(&b, "Traceback:\n%s\n", logdoc.RenderException(r.Cause))
	}
	b.WriteString(footerLine + "\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.w, b.String())
}

// JSON writes one zerolog JSON line per report.
type JSON struct {
	mu  sync.Mutex
	log zerolog.Logger
}

// NewJSON returns a JSON sink writing to w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{log: zerolog.New(w).With().Timestamp().Logger()}
}

// Report writes r as a single error-level line.
func (j *JSON) Report(r Report) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ev := j.log.Error().Str("marker", "logging_error").Str("component", r.Component)
	if r.Origin != nil {
		ev = ev.Str("record_logger", r.Origin.Logger).Str("record_message", r.Origin.Message)
	}
	if r.Cause != nil {
		ev = ev.Err(r.Cause).
			Str("exception_type", fmt.Sprintf("%T", r.Cause)).
			Str("traceback", logdoc.RenderException(r.Cause))
	}
	ev.Msg(r.Message)
}

// Safe wraps s so that a panicking sink never escapes into the caller.
func Safe(s Sink) Sink {
	if s == nil {
		return Func(func(Report) {})
	}
	if _, ok := s.(safeSink); ok {
		return s
	}
	return safeSink{s}
}

type safeSink struct {
	next Sink
}

func (s safeSink) Report(r Report) {
	defer func() { _ = recover() }()
	s.next.Report(r)
}
