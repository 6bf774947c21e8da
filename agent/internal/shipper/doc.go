// Package shipper feeds input lines to the log aggregator.
//
// Shipper.Run() scans an io.Reader line by line, parses each line with the
// lines package and hands the resulting records to the current
// loghandler.Handler. Delivery is synchronous: a line is fully delivered (or
// reported as failed) before the next one is read.
//
// The handler lives in a Slot so a config reload can swap in a freshly built
// handler. Swap waits for in-flight deliveries on the old handler before it
// is closed.
//
// NewHandler builds a handler from the agent config: auth from the config's
// auth section, TLS (including mTLS client certificates and a private CA)
// from its tls section, and a shared delivery.Stats so counters survive
// reloads.
package shipper
