// Package auth resolves, per delivery attempt, the headers and optional basic
// credentials attached to a request.
//
// A Spec is one of four variants:
//   - None(): session default headers only
//   - StaticHeaders(map): merged over the session defaults
//   - Basic(user, password): HTTP basic auth, default headers
//   - Dynamic(Provider): the provider is invoked on every attempt; it returns
//     Headers (merged, basic auth cleared), Credentials (basic auth, default
//     headers) or nil (no auth data)
//
// A malformed static spec is reported through the error sink when the
// Resolver is built and the resolver falls back to None. A provider failure
// surfaces from Resolve as an error wrapping ErrProvider; the caller abandons
// that send.
package auth
