package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/obsidianstack/logship/pkg/errsink"
)

// ErrProvider wraps every failure raised by a dynamic Provider.
var ErrProvider = errors.New("auth callable failed")

// Attempt is the resolved auth for one request.
type Attempt struct {
	Header http.Header
	Basic  *Credentials
}

// Apply copies the attempt onto req.
func (a Attempt) Apply(req *http.Request) {
	for k, vs := range a.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if a.Basic != nil {
		req.SetBasicAuth(a.Basic.Username, a.Basic.Password)
	}
}

// Resolver turns a Spec into per-attempt auth data.
type Resolver struct {
	spec     Spec
	defaults http.Header
}

// NewResolver validates spec against the session defaults. An invalid spec is
// reported to sink and replaced by None; construction never fails.
func NewResolver(spec Spec, defaults http.Header, sink errsink.Sink) *Resolver {
	if err := spec.Validate(); err != nil {
		sink.Report(errsink.Report{
			Component: "auth",
			Message:   "Invalid auth type provided. Must be headers, basic credentials, or a provider.",
			Cause:     err,
		})
		spec = None()
	}
	return &Resolver{spec: spec, defaults: defaults.Clone()}
}

// Kind returns the effective spec variant.
func (r *Resolver) Kind() Kind { return r.spec.kind }

// Resolve computes the headers and credentials for one attempt. Dynamic
// providers are invoked on every call; their failures and panics come back
// wrapped in ErrProvider.
func (r *Resolver) Resolve(ctx context.Context) (Attempt, error) {
	a := Attempt{Header: r.defaults.Clone()}
	if a.Header == nil {
		a.Header = make(http.Header)
	}

	switch r.spec.kind {
	case KindHeaders:
		r.spec.headers.apply(a.Header)
	case KindBasic:
		c := r.spec.basic
		a.Basic = &c
	case KindDynamic:
		res, err := invoke(ctx, r.spec.provider)
		if err != nil {
			return Attempt{}, err
		}
		switch v := res.(type) {
		case Headers:
			v.apply(a.Header)
			a.Basic = nil
		case Credentials:
			a.Basic = &v
		case *Credentials:
			if v != nil {
				c := *v
				a.Basic = &c
			}
		}
	}
	return a, nil
}

func invoke(ctx context.Context, p Provider) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("%w: panic: %v", ErrProvider, rec)
		}
	}()
	res, err = p.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return res, nil
}
