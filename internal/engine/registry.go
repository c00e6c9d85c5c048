package engine

import (
	"forgeflow.app/engine/internal/model"
	"forgeflow.app/engine/internal/worker"
)

// Registry maps routes to the processors that serve them. It is populated
// once at startup and read-only afterwards.
type Registry struct {
	processors map[model.RouteKey]worker.Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[model.RouteKey]worker.Processor)}
}

func (r *Registry) Register(route model.RouteKey, p worker.Processor) {
	r.processors[route] = p
}

func (r *Registry) Lookup(route model.RouteKey) (worker.Processor, bool) {
	p, ok := r.processors[route]
	return p, ok
}

// Routes returns the registered routes in canonical order.
func (r *Registry) Routes() []model.RouteKey {
	var routes []model.RouteKey
	for _, route := range model.Routes {
		if _, ok := r.processors[route]; ok {
			routes = append(routes, route)
		}
	}
	return routes
}
