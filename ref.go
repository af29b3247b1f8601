package spantree

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Ref is a serializable reference to a span: its id plus a locator naming the
// owning store. A Ref is what crosses a process boundary — a live Span handle
// holds open file or socket state and never does. The locator is a
// scheme-prefixed string, e.g. "sqlite:/tmp/trace.db" or
// "http://127.0.0.1:8123".
type Ref struct {
	ID      ID     `json:"id"`
	Locator string `json:"locator"`
}

// ResolverFunc reconstructs a live Span handle from a Ref in the current
// process. Backends register one per locator scheme.
type ResolverFunc func(ctx context.Context, ref Ref) (Span, error)

var (
	resolversMu sync.RWMutex
	resolvers   = map[string]ResolverFunc{}
)

// RegisterResolver registers a resolver for a locator scheme, typically from
// a backend package's init. Mirrors database/sql driver registration:
// importing the backend makes its refs resolvable.
func RegisterResolver(scheme string, fn ResolverFunc) {
	resolversMu.Lock()
	defer resolversMu.Unlock()
	if fn == nil {
		panic("spantree: RegisterResolver with nil resolver")
	}
	if _, dup := resolvers[scheme]; dup {
		panic("spantree: RegisterResolver called twice for scheme " + scheme)
	}
	resolvers[scheme] = fn
}

// Resolve reconstructs a live span handle from the ref using the resolver
// registered for its locator scheme.
func (r Ref) Resolve(ctx context.Context) (Span, error) {
	scheme, _, ok := strings.Cut(r.Locator, ":")
	if !ok {
		return nil, fmt.Errorf("resolve ref: locator %q has no scheme", r.Locator)
	}
	resolversMu.RLock()
	fn := resolvers[scheme]
	resolversMu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("resolve ref: no resolver registered for scheme %q (missing backend import?)", scheme)
	}
	span, err := fn(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("resolve ref %s: %w", r.ID, err)
	}
	return span, nil
}
