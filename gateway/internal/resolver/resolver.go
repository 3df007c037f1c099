// Package resolver caches name-to-address lookups for a logical upstream
// with a TTL, refreshed lazily on the request path. A changed backend
// address becomes reachable within at most one TTL window, without the
// gateway restarting.
package resolver

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Endpoint is one resolved upstream address. It is immutable; the resolver
// swaps the whole value on refresh so concurrent readers never observe a
// half-updated endpoint.
type Endpoint struct {
	Service    string
	Addr       string
	ResolvedAt time.Time
}

// LookupFunc resolves a logical service name to a dialable host:port.
type LookupFunc func(ctx context.Context, service string) (string, error)

// DNSLookup resolves the service name as a hostname and pairs the first
// returned address with the fixed port.
func DNSLookup(port int) LookupFunc {
	return func(ctx context.Context, service string) (string, error) {
		addrs, err := net.DefaultResolver.LookupHost(ctx, service)
		if err != nil {
			return "", fmt.Errorf("lookup %s: %w", service, err)
		}
		if len(addrs) == 0 {
			return "", fmt.Errorf("lookup %s: no addresses", service)
		}
		return net.JoinHostPort(addrs[0], fmt.Sprintf("%d", port)), nil
	}
}

// StaticLookup always returns the same address. Used when the upstream sits
// behind a stable name (load balancer, localhost development).
func StaticLookup(addr string) LookupFunc {
	return func(ctx context.Context, service string) (string, error) {
		return addr, nil
	}
}

// Resolver owns the cached endpoint for one logical upstream.
type Resolver struct {
	service string
	ttl     time.Duration
	lookup  LookupFunc

	current atomic.Pointer[Endpoint]
	group   singleflight.Group

	now func() time.Time
}

// New creates a resolver for the given service with the given TTL.
func New(service string, ttl time.Duration, lookup LookupFunc) *Resolver {
	return &Resolver{
		service: service,
		ttl:     ttl,
		lookup:  lookup,
		now:     time.Now,
	}
}

// Resolve returns the cached endpoint while it is fresh, otherwise performs
// one lookup (deduplicated across concurrent callers) and replaces the
// cache. A failed lookup returns an error; the caller maps it to a gateway
// error, and the next request triggers a fresh attempt.
func (r *Resolver) Resolve(ctx context.Context) (*Endpoint, error) {
	if ep := r.current.Load(); ep != nil && r.now().Sub(ep.ResolvedAt) <= r.ttl {
		return ep, nil
	}

	v, err, _ := r.group.Do(r.service, func() (any, error) {
		// Another caller may have refreshed while this one waited.
		if ep := r.current.Load(); ep != nil && r.now().Sub(ep.ResolvedAt) <= r.ttl {
			return ep, nil
		}

		addr, err := r.lookup(ctx, r.service)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", r.service, err)
		}

		ep := &Endpoint{
			Service:    r.service,
			Addr:       addr,
			ResolvedAt: r.now(),
		}
		r.current.Store(ep)
		return ep, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Endpoint), nil
}

// Current returns the cached endpoint without refreshing, or nil if nothing
// has resolved yet.
func (r *Resolver) Current() *Endpoint {
	return r.current.Load()
}
