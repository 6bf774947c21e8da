package loghandler

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/obsidianstack/logship/pkg/logdoc"
)

// Attribute keys claimed for the document's exception field.
var errorKeys = map[string]bool{"error": true, "err": true, "exception": true}

const excTextKey = "exc_text"

type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// event converts r into a logdoc.Event.
func (h *Handler) event(r slog.Record) logdoc.Event {
	ev := logdoc.Event{
		Time:       r.Time,
		Level:      r.Level,
		LevelName:  r.Level.String(),
		Message:    r.Message,
		Logger:     h.logger,
		Process:    h.s.pid,
		Thread:     goroutineID(),
		ThreadName: "goroutine",
	}
	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		ev.File = filepath.Base(f.File)
		ev.Line = f.Line
		ev.Module, ev.Func = splitFunc(f.Function)
	}

	attrs := make(map[string]any)
	for _, sa := range h.attrs {
		h.addAttr(&ev, attrs, sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.addAttr(&ev, attrs, h.groups, a)
		return true
	})
	ev.Attrs = attrs
	return ev
}

// addAttr stores a under groups, claiming top-level error attributes.
func (h *Handler) addAttr(ev *logdoc.Event, dst map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if len(groups) == 0 && a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok && errorKeys[a.Key] && ev.Err == nil {
			ev.Err = err
			return
		}
	}
	if len(groups) == 0 && a.Key == excTextKey && a.Value.Kind() == slog.KindString {
		ev.ErrText = a.Value.String()
		return
	}

	v, ok := attrValue(a.Value)
	if !ok {
		return
	}
	m := dst
	for _, g := range groups {
		m = groupMap(m, g)
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			m = groupMap(m, a.Key)
		}
		for k, gv := range v.(map[string]any) {
			m[k] = gv
		}
		return
	}
	m[a.Key] = v
}

// groupMap returns the map stored for group name in m, creating it when
// absent. A non-group value already under name is kept and the group moves
// to name+"_group".
func groupMap(m map[string]any, name string) map[string]any {
	key := name
	for {
		switch cur := m[key].(type) {
		case map[string]any:
			return cur
		case nil:
			if _, taken := m[key]; !taken {
				sub := make(map[string]any)
				m[key] = sub
				return sub
			}
		}
		key += "_group"
	}
}

// attrValue converts v into a JSON-friendly value. Empty groups report false.
func attrValue(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindGroup:
		out := make(map[string]any)
		for _, ga := range v.Group() {
			ga.Value = ga.Value.Resolve()
			if ga.Equal(slog.Attr{}) {
				continue
			}
			gv, ok := attrValue(ga.Value)
			if !ok {
				continue
			}
			if ga.Value.Kind() == slog.KindGroup && ga.Key == "" {
				for k, x := range gv.(map[string]any) {
					out[k] = x
				}
				continue
			}
			out[ga.Key] = gv
		}
		return out, len(out) > 0
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindDuration:
		return v.Duration().String(), true
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error(), true
		}
		return v.Any(), true
	default:
		return v.Any(), true
	}
}

// splitFunc splits a fully qualified function name such as
// "github.com/acme/app/worker.(*Pool).run" into its package path and the
// remainder.
func splitFunc(fn string) (pkg, name string) {
	if fn == "" {
		return "", ""
	}
	slash := strings.LastIndexByte(fn, '/')
	dot := strings.IndexByte(fn[slash+1:], '.')
	if dot < 0 {
		return fn, ""
	}
	dot += slash + 1
	return fn[:dot], fn[dot+1:]
}

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	i := strings.IndexByte(s, ' ')
	if i <= 0 {
		return 0
	}
	id, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
