// Package multi routes records to several sinks by kind.
package multi

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hejijunhao/canopy/internal/output"
)

// Route sends the listed record kinds to Out. An empty Kinds matches every
// kind.
type Route struct {
	Name  string
	Out   output.Output
	Kinds []string
}

// To builds a Route.
func To(name string, out output.Output, kinds ...string) Route {
	return Route{Name: name, Out: out, Kinds: kinds}
}

func (r Route) accepts(kind string) bool {
	return len(r.Kinds) == 0 || slices.Contains(r.Kinds, kind)
}

// Router delivers each record to every route that accepts its kind, for
// example suggestions to a webhook and everything to the console. A failing
// route does not stop delivery to the others.
type Router struct {
	routes []Route
}

// New creates a Router over routes.
func New(routes ...Route) *Router {
	return &Router{routes: routes}
}

// Write delivers rec and joins the route errors, each prefixed with the
// route name.
func (r *Router) Write(ctx context.Context, rec output.Record) error {
	var errs []error
	for _, rt := range r.routes {
		if !rt.accepts(rec.Kind) {
			continue
		}
		if err := rt.Out.Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every route once, even when a sink backs several routes.
func (r *Router) Close() error {
	var errs []error
	seen := make(map[output.Output]bool, len(r.routes))
	for _, rt := range r.routes {
		if seen[rt.Out] {
			continue
		}
		seen[rt.Out] = true
		if err := rt.Out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.Name, err))
		}
	}
	return errors.Join(errs...)
}
