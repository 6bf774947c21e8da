package lines

import (
	"bytes"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/obsidianstack/logship/pkg/logdoc"
)

// Entry is one parsed log line.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Logger  string
	Attrs   []slog.Attr
}

// Record converts e into an slog.Record without source information.
func (e Entry) Record() slog.Record {
	r := slog.NewRecord(e.Time, e.Level, e.Message, 0)
	r.AddAttrs(e.Attrs...)
	return r
}

var (
	timeKeys    = []string{"timestamp", "time", "ts"}
	levelKeys   = []string{"level", "severity", "lvl"}
	messageKeys = []string{"message", "msg"}
	loggerKeys  = []string{"logger_name", "logger"}
	excKeys     = []string{"exc_text", "exception", "error"}
)

// Parser parses lines. It is safe for concurrent use.
type Parser struct {
	pool fastjson.ParserPool
	now  func() time.Time
}

// NewParser returns a Parser stamping untimed lines with the wall clock.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Parse returns the entries held by line. Blank lines yield none.
func (p *Parser) Parse(line []byte) []Entry {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	if line[0] != '{' && line[0] != '[' {
		return []Entry{p.text(string(line))}
	}

	jp := p.pool.Get()
	defer p.pool.Put(jp)

	v, err := jp.ParseBytes(line)
	if err != nil {
		return []Entry{p.text(string(line))}
	}

	switch v.Type() {
	case fastjson.TypeObject:
		return []Entry{p.object(v)}
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]Entry, 0, len(arr))
		for _, item := range arr {
			if item.Type() == fastjson.TypeObject {
				out = append(out, p.object(item))
				continue
			}
			out = append(out, p.text(item.String()))
		}
		return out
	default:
		return []Entry{p.text(string(line))}
	}
}

func (p *Parser) text(msg string) Entry {
	return Entry{Time: p.now(), Level: slog.LevelInfo, Message: msg}
}

func (p *Parser) object(v *fastjson.Value) Entry {
	e := Entry{Level: slog.LevelInfo}
	o, _ := v.Object()

	claimed := make(map[string]bool)
	claim := func(keys []string) *fastjson.Value {
		for _, k := range keys {
			if kv := o.Get(k); kv != nil {
				claimed[k] = true
				return kv
			}
		}
		return nil
	}

	if tv := claim(timeKeys); tv != nil {
		e.Time = parseTime(tv)
	}
	if e.Time.IsZero() {
		e.Time = p.now()
	}
	if lv := claim(levelKeys); lv != nil {
		e.Level = parseLevel(lv)
	}
	if mv := claim(messageKeys); mv != nil {
		e.Message = stringOf(mv)
	}
	if nv := claim(loggerKeys); nv != nil {
		e.Logger = stringOf(nv)
	}

	var excText string
	for _, k := range excKeys {
		if ev := o.Get(k); ev != nil && ev.Type() == fastjson.TypeString {
			claimed[k] = true
			if excText == "" {
				excText = string(ev.GetStringBytes())
			}
		}
	}

	o.Visit(func(key []byte, kv *fastjson.Value) {
		k := string(key)
		if claimed[k] {
			return
		}
		e.Attrs = append(e.Attrs, attr(k, kv))
	})
	if excText != "" {
		e.Attrs = append(e.Attrs, slog.String("exc_text", excText))
	}
	return e
}

// attr converts a JSON value into an slog attribute. Objects become groups.
func attr(key string, v *fastjson.Value) slog.Attr {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		var group []any
		o.Visit(func(k []byte, kv *fastjson.Value) {
			group = append(group, attr(string(k), kv))
		})
		return slog.Group(key, group...)
	case fastjson.TypeString:
		return slog.String(key, string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return slog.Int64(key, n)
		}
		return slog.Float64(key, v.GetFloat64())
	case fastjson.TypeTrue:
		return slog.Bool(key, true)
	case fastjson.TypeFalse:
		return slog.Bool(key, false)
	default:
		return slog.Any(key, plain(v))
	}
}

// plain converts v into the encoding/json representation of the same value.
func plain(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		m := make(map[string]any, o.Len())
		o.Visit(func(k []byte, kv *fastjson.Value) {
			m[string(k)] = plain(kv)
		})
		return m
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = plain(item)
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

func stringOf(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return v.String()
}

// parseTime accepts RFC 3339 strings and unix numbers in seconds,
// milliseconds, microseconds or nanoseconds, told apart by magnitude.
func parseTime(v *fastjson.Value) time.Time {
	switch v.Type() {
	case fastjson.TypeString:
		s := string(v.GetStringBytes())
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if t, err := time.Parse(logdoc.TimestampLayout, s); err == nil {
			return t
		}
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			switch {
			case n > 1e17:
				return time.Unix(0, n)
			case n > 1e14:
				return time.UnixMicro(n)
			case n > 1e11:
				return time.UnixMilli(n)
			default:
				return time.Unix(n, 0)
			}
		}
		f := v.GetFloat64()
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).Round(time.Microsecond)
	}
	return time.Time{}
}

var levelAliases = map[string]slog.Level{
	"trace":     slog.LevelDebug - 4,
	"notice":    slog.LevelInfo,
	"err":       slog.LevelError,
	"crit":      logdoc.LevelCritical,
	"fatal":     logdoc.LevelCritical,
	"panic":     logdoc.LevelCritical,
	"alert":     logdoc.LevelCritical,
	"emerg":     logdoc.LevelCritical,
	"emergency": logdoc.LevelCritical,
}

// parseLevel accepts level names and the 10..50 numeric scale. Unknown
// values map to INFO.
func parseLevel(v *fastjson.Value) slog.Level {
	switch v.Type() {
	case fastjson.TypeString:
		s := strings.ToLower(strings.TrimSpace(string(v.GetStringBytes())))
		if l, ok := levelAliases[s]; ok {
			return l
		}
		if l, err := logdoc.ParseLevel(s); err == nil {
			return l
		}
	case fastjson.TypeNumber:
		n := v.GetFloat64()
		switch {
		case n >= 50:
			return logdoc.LevelCritical
		case n >= 40:
			return slog.LevelError
		case n >= 30:
			return slog.LevelWarn
		case n >= 20:
			return slog.LevelInfo
		default:
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}
