// Package delivery sends one JSON log document to the aggregation endpoint
// with bounded, linearly backed-off retries.
//
// Each attempt resolves auth afresh, POSTs the document and folds the
// outcome into an explicit Result:
//
//	2xx                         → Success, stop
//	timeout / connection error  → Retryable
//	4xx                         → Terminal, report once, never retried
//	anything else (5xx, 3xx, …) → Retryable
//
// Retryable outcomes sleep baseDelay × attempt before the next try until
// maxRetries is exhausted, after which one report is written. A failing auth
// provider abandons the send without touching the network.
//
// Send blocks the calling goroutine for the whole sequence; worst case is
// timeout × (retries+1) + baseDelay × (1+…+retries). There is no queue and
// no background goroutine.
//
// Probe issues a single GET to the sibling "health" path of the endpoint.
//
// Stats counts events, attempts and outcomes and renders them as Prometheus
// metric families.
package delivery
