package logdoc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"
)

// maxCauseDepth bounds the error chain walk.
const maxCauseDepth = 16

// Formatter turns Events into Documents for one host.
type Formatter struct {
	host   string
	levels LevelMap
	now    func() time.Time // injectable for deterministic tests
}

// NewFormatter returns a Formatter stamping documents with host. A nil
// levels uses DefaultLevels. The map is copied.
func NewFormatter(host string, levels LevelMap) *Formatter {
	if levels == nil {
		levels = DefaultLevels()
	}
	return &Formatter{host: host, levels: levels.Clone(), now: time.Now}
}

// Format builds the document for ev.
func (f *Formatter) Format(ev Event) Document {
	ts := ev.Time
	if ts.IsZero() {
		ts = f.now()
	}

	doc := Document{
		Timestamp:   FormatTimestamp(ts),
		Level:       f.levels.Name(ev.Level, ev.LevelName),
		Message:     ev.Render(),
		Host:        f.host,
		HostProcess: ev.Logger,
		LoggerName:  ev.Logger,
		Module:      ev.Module,
		Filename:    ev.File,
		Lineno:      ev.Line,
		FuncName:    ev.Func,
		Process:     ev.Process,
		Thread:      ev.Thread,
		ThreadName:  ev.ThreadName,
	}

	switch {
	case ev.Err != nil:
		doc.Exception = RenderException(ev.Err)
	case ev.ErrText != "":
		doc.Exception = ev.ErrText
	}

	doc.Extra = extra(ev.Attrs)
	return doc
}

// extra copies every non-reserved attribute. Returns nil when nothing is left
// so the key is omitted from the JSON.
func extra(attrs map[string]any) map[string]any {
	var out map[string]any
	for k, v := range attrs {
		if IsReserved(k) {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(attrs))
		}
		out[k] = v
	}
	return out
}

// stackTracer is implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// RenderException renders err as a multi-line trace. Errors carrying a stack
// (go-errors or pkg/errors) print it; anything else prints the wrap chain as
// "type: message" lines.
func RenderException(err error) string {
	if err == nil {
		return ""
	}

	var ge *goerrors.Error
	if errors.As(err, &ge) {
		return withOuter(err, ge.ErrorStack())
	}

	var st stackTracer
	if errors.As(err, &st) {
		return withOuter(err, fmt.Sprintf("%+v", st))
	}

	var b strings.Builder
	for i, e := 0, err; e != nil && i < maxCauseDepth; i, e = i+1, errors.Unwrap(e) {
		if i > 0 {
			b.WriteString("\nCaused by: ")
		}
		fmt.Fprintf(&b, "%T: %s", e, e.Error())
	}
	return b.String()
}

// withOuter prefixes trace with the outermost message when wrapping added
// context the trace does not show.
func withOuter(err error, trace string) string {
	outer := err.Error()
	if strings.Contains(trace, outer) {
		return trace
	}
	return outer + "\n" + trace
}
