// Package lines turns input lines into log entries for the agent.
//
// A line holding a JSON object becomes one entry; a JSON array of objects
// becomes one entry per element, the same batch shape aggregators accept.
// Anything else is shipped as a plain-text INFO message.
//
// Well-known keys are lifted out of the object:
//
//	timestamp, time, ts      entry time (RFC 3339 string or unix number)
//	level, severity, lvl     entry level (name or 10..50 numeric scale)
//	message, msg             entry message
//	logger_name, logger      logger name
//	exc_text, exception, error (strings)  pre-rendered exception text
//
// Every other key is kept as an slog attribute; nested objects become
// groups.
package lines
