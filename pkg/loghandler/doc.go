// Package loghandler provides an slog.Handler that ships every record, as one
// JSON document, to a remote log aggregation endpoint over HTTP.
//
//	cfg := loghandler.DefaultConfig()
//	cfg.Endpoint = "https://logs.example.com/api/logs"
//	cfg.Auth = auth.StaticHeaders(map[string]string{"X-API-Key": key})
//	h, err := loghandler.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//	logger := slog.New(h)
//
// Handle is synchronous: it formats the record, then delivers it with bounded
// linear-backoff retries before returning. It always returns nil; delivery
// failures are written to the configured error sink (stderr by default).
//
// The endpoint comes from Config.Endpoint or, when empty, from the
// LOG_AGGREGATOR_API_ENDPOINT environment variable. A missing endpoint is the
// only error New returns for an otherwise well-formed configuration.
//
// A Handler and every handler derived from it (WithAttrs, WithGroup, Named)
// share one HTTP session. Close releases it; Close is idempotent and records
// handled afterwards are dropped with a report.
//
// Attributes map onto the document's "extra" object. Top-level attributes
// named "error", "err" or "exception" holding an error become the document's
// "exception"; a top-level "exc_text" string is used verbatim when no error
// is present.
package loghandler
