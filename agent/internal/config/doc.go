// Package config loads and watches the logship agent configuration file.
//
// Top-level types:
//   - Config: endpoint, host, logger_name, timeout, retry_attempts,
//     retry_delay, compression, min_level, levels, sink, metrics_addr,
//     auth, tls
//   - AuthConfig: mode (none|headers|apikey|bearer|basic|token_file);
//     Key(), Token() and Password() resolve secrets from environment
//     variables, Spec() builds the auth.Spec handed to the handler
//   - TLSConfig: insecure_skip_verify, ca_file, cert_file/key_file for mTLS
//
// Load(path) reads the YAML file, applies defaults (5s timeout, 3 retries,
// 1s retry delay, text sink), then validates enums and mode-specific fields.
// The endpoint is optional here; the agent may take it from a flag or the
// environment.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It watches the parent directory so
// the rename and create pattern used by atomic-save editors is seen.
package config
