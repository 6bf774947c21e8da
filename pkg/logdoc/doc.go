// Package logdoc converts one log event into the JSON document shipped to the
// aggregation endpoint.
//
// Event is the normalised input (built from an slog.Record by loghandler, or
// directly by callers). Document is the wire shape: a fixed set of reserved
// keys that are always present, an optional "exception" string, and an
// optional "extra" map holding every caller attribute that does not collide
// with a reserved key. "extra" is omitted entirely when empty.
//
// Timestamps are rendered in UTC as ISO-8601 with microsecond precision,
// e.g. 2026-10-18T09:30:00.123456+00:00, whatever the event's location.
//
// Formatting performs no I/O.
package logdoc
