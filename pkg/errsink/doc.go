// Package errsink is the single place internal failures of the log shipper
// go: malformed auth specs, provider failures, terminal or exhausted
// deliveries, and failed health probes.
//
// Reports are written to a process-level diagnostic channel (stderr by
// default), never to the aggregation endpoint, so a failing endpoint cannot
// recurse into itself. Sinks returned by Safe swallow their own panics.
package errsink
