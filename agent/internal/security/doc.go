// Package security inspects the TLS certificate served by the aggregator
// endpoint. The agent's --check mode uses it to warn before the certificate
// expires.
package security
