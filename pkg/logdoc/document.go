package logdoc

import (
	"fmt"
	"log/slog"
	"time"
)

// TimestampLayout renders UTC times with microseconds and an explicit
// "+00:00" offset.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// LevelCritical sits above slog.LevelError so the default vocabulary can
// carry a CRITICAL severity.
const LevelCritical = slog.Level(12)

// ReservedKeys lists the document keys that caller attributes can never
// claim. "exception" and "extra" are included because they are
// handler-owned even though they are optional.
var ReservedKeys = []string{
	"timestamp", "level", "message", "host", "host_process", "logger_name",
	"module", "filename", "lineno", "funcName", "process", "thread",
	"threadName", "exception", "extra",
}

var reserved = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ReservedKeys))
	for _, k := range ReservedKeys {
		m[k] = struct{}{}
	}
	return m
}()

// IsReserved reports whether key is owned by the document itself.
func IsReserved(key string) bool {
	_, ok := reserved[key]
	return ok
}

// Document is the canonical wire representation of one log event.
type Document struct {
	Timestamp   string         `json:"timestamp"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Host        string         `json:"host"`
	HostProcess string         `json:"host_process"`
	LoggerName  string         `json:"logger_name"`
	Module      string         `json:"module"`
	Filename    string         `json:"filename"`
	Lineno      int            `json:"lineno"`
	FuncName    string         `json:"funcName"`
	Process     int            `json:"process"`
	Thread      uint64         `json:"thread"`
	ThreadName  string         `json:"threadName"`
	Exception   string         `json:"exception,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Event is one log event as supplied by the logging framework.
type Event struct {
	Time      time.Time
	Level     slog.Level
	LevelName string // used when Level is absent from the level map

	// Message is a format template when Args is non-empty.
	Message string
	Args    []any

	Logger     string
	Module     string
	File       string
	Line       int
	Func       string
	Process    int
	Thread     uint64
	ThreadName string

	// Err is the causal error, rendered as a stack trace when it has one.
	Err error
	// ErrText is pre-rendered exception text, used verbatim when Err is nil.
	ErrText string

	Attrs map[string]any
}

// Render returns the final message string.
func (e Event) Render() string {
	if len(e.Args) == 0 {
		return e.Message
	}
	return fmt.Sprintf(e.Message, e.Args...)
}

// FormatTimestamp renders t in UTC with microsecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
