package limiter

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/store"
	"gatekeeper/pkg/platform/httputil"
)

// Registry holds one Limiter per named policy and resolves route prefixes.
type Registry struct {
	limiters map[string]*Limiter
	routes   []config.Route // longest prefix first
}

// NewRegistry builds a limiter for every configured policy over one store.
// Keys are namespaced by policy, so policies never share state.
func NewRegistry(cfg *config.Config, st store.WindowStore, opts ...Option) (*Registry, error) {
	r := &Registry{limiters: make(map[string]*Limiter, len(cfg.Policies))}
	for name, p := range cfg.Policies {
		l, err := New(p, st, opts...)
		if err != nil {
			return nil, err
		}
		r.limiters[name] = l
	}

	for _, route := range cfg.Routes {
		if _, ok := r.limiters[route.Policy]; !ok {
			return nil, fmt.Errorf("route %s references unknown policy %q", route.Prefix, route.Policy)
		}
	}
	r.routes = slices.Clone(cfg.Routes)
	slices.SortStableFunc(r.routes, func(a, b config.Route) int {
		return cmp.Compare(len(b.Prefix), len(a.Prefix))
	})
	return r, nil
}

// Get returns the limiter for a named policy.
func (r *Registry) Get(policy string) (*Limiter, bool) {
	l, ok := r.limiters[policy]
	return l, ok
}

// Policies returns the configured policy names, sorted.
func (r *Registry) Policies() []string {
	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Match returns the limiter of the longest route prefix covering path.
func (r *Registry) Match(path string) (*Limiter, bool) {
	for _, route := range r.routes {
		if httputil.HasPathPrefix(path, route.Prefix) {
			return r.limiters[route.Policy], true
		}
	}
	return nil, false
}

type checkedKey struct{}

// MarkChecked records that policy was already enforced for this request, so
// a per-handler check of the same policy does not count the request twice.
func MarkChecked(ctx context.Context, policy string) context.Context {
	return context.WithValue(ctx, checkedKey{}, policy)
}

// Checked reports whether policy was enforced earlier in this request.
func Checked(ctx context.Context, policy string) bool {
	p, ok := ctx.Value(checkedKey{}).(string)
	return ok && p == policy
}
