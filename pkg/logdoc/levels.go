package logdoc

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelMap maps slog severities to the strings the endpoint expects.
type LevelMap map[slog.Level]string

// DefaultLevels returns a fresh copy of the default vocabulary.
func DefaultLevels() LevelMap {
	return LevelMap{
		slog.LevelDebug: "DEBUG",
		slog.LevelInfo:  "INFO",
		slog.LevelWarn:  "WARNING",
		slog.LevelError: "ERROR",
		LevelCritical:   "CRITICAL",
	}
}

// Clone returns an independent copy of m.
func (m LevelMap) Clone() LevelMap {
	out := make(LevelMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Name resolves level through the map. Unmapped levels fall back to
// fallback, then to slog's own name for the level.
func (m LevelMap) Name(level slog.Level, fallback string) string {
	if s, ok := m[level]; ok {
		return s
	}
	if fallback != "" {
		return fallback
	}
	return level.String()
}

// ParseLevel parses a severity name. It accepts the default vocabulary
// (case-insensitive), "WARN", and slog's offset form such as "INFO+2".
func ParseLevel(s string) (slog.Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "CRITICAL":
		return LevelCritical, nil
	case "WARNING":
		return slog.LevelWarn, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("logdoc: unknown level %q", s)
	}
	return l, nil
}
