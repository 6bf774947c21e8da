package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"golang.org/x/net/http/httpguts"
)

// Kind identifies the Spec variant.
type Kind int

const (
	KindNone Kind = iota
	KindHeaders
	KindBasic
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindHeaders:
		return "headers"
	case KindBasic:
		return "basic"
	case KindDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is what a Provider hands back for one attempt: Headers or
// Credentials. A nil Result means "no auth data".
type Result interface {
	isResult()
}

// Headers is a header bundle keyed by field name.
type Headers map[string]string

// Credentials is an HTTP basic-auth pair.
type Credentials struct {
	Username string
	Password string
}

func (Headers) isResult()     {}
func (Credentials) isResult() {}

// Provider supplies fresh auth data. It is called once per delivery attempt
// and must be safe for concurrent use when the handler is.
type Provider interface {
	Credentials(ctx context.Context) (Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Result, error)

// Credentials calls f.
func (f ProviderFunc) Credentials(ctx context.Context) (Result, error) {
	return f(ctx)
}

// Spec is the configured authentication. The zero value is None.
type Spec struct {
	kind     Kind
	headers  Headers
	basic    Credentials
	provider Provider
}

// None returns a Spec that attaches no credentials.
func None() Spec { return Spec{} }

// StaticHeaders returns a Spec sending h on every request. h is copied.
func StaticHeaders(h map[string]string) Spec {
	cp := make(Headers, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return Spec{kind: KindHeaders, headers: cp}
}

// Basic returns a Spec using HTTP basic auth.
func Basic(username, password string) Spec {
	return Spec{kind: KindBasic, basic: Credentials{Username: username, Password: password}}
}

// Dynamic returns a Spec that asks p for credentials on every attempt.
func Dynamic(p Provider) Spec {
	return Spec{kind: KindDynamic, provider: p}
}

// Kind returns the variant.
func (s Spec) Kind() Kind { return s.kind }

// Validate reports a malformed spec.
func (s Spec) Validate() error {
	switch s.kind {
	case KindNone:
		return nil
	case KindHeaders:
		return validateHeaders(s.headers)
	case KindBasic:
		if s.basic.Username == "" {
			return errors.New("auth: basic credentials need a username")
		}
		return nil
	case KindDynamic:
		if s.provider == nil {
			return errors.New("auth: dynamic spec has no provider")
		}
		return nil
	default:
		return fmt.Errorf("auth: invalid auth type %s, must be headers, basic or dynamic", s.kind)
	}
}

// validateHeaders checks names and values in a stable order so the first
// reported problem is deterministic.
func validateHeaders(h Headers) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("auth: invalid header name %q", k)
		}
		if !httpguts.ValidHeaderFieldValue(h[k]) {
			return fmt.Errorf("auth: invalid value for header %q", k)
		}
	}
	return nil
}

// apply sets every header in h on dst, replacing existing values.
func (h Headers) apply(dst http.Header) {
	for k, v := range h {
		dst.Set(k, v)
	}
}
