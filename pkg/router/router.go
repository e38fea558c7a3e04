// Package router resolves a model alias to an ordered provider fallback chain.
package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ilearnhow/lessongen/pkg/config"
)

// ErrNoProviders is returned when no provider is configured.
var ErrNoProviders = errors.New("no providers configured")

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

func (r Route) String() string {
	return r.Provider.Name + "/" + r.Model
}

// Router resolves requested model names to ordered provider+model chains.
type Router struct {
	providers []config.ProviderConfig
	index     map[string]config.ProviderConfig
	routes    []config.RouteConfig
}

// New creates a Router over the configured providers and routes.
func New(providers []config.ProviderConfig, routes []config.RouteConfig) *Router {
	index := make(map[string]config.ProviderConfig, len(providers))
	for _, p := range providers {
		index[p.Name] = p
	}
	return &Router{providers: providers, index: index, routes: routes}
}

// Resolve returns an ordered list of routes for the requested model.
// If the model matches a configured route, the route's targets are returned.
// Otherwise, the first provider is used with the original model name.
func (r *Router) Resolve(requestedModel string) ([]Route, error) {
	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}

	for _, route := range r.routes {
		if route.Model != requestedModel {
			continue
		}
		var routes []Route
		for _, target := range route.Targets {
			provider, ok := r.index[target.Provider]
			if !ok {
				continue
			}
			model := target.Model
			if model == "" {
				model = requestedModel
			}
			routes = append(routes, Route{Provider: provider, Model: model})
		}
		if len(routes) == 0 {
			return nil, fmt.Errorf("route %q: all providers unknown", requestedModel)
		}
		return routes, nil
	}

	return []Route{{Provider: r.providers[0], Model: requestedModel}}, nil
}

// Describe renders a chain as "provider/model -> provider/model".
func Describe(routes []Route) string {
	parts := make([]string, len(routes))
	for i, rt := range routes {
		parts[i] = rt.String()
	}
	return strings.Join(parts, " -> ")
}
