package engine

import (
	"strings"

	"forgeflow.app/engine/internal/model"
)

// teamLabels is checked in order; an explicit team label always wins over
// keyword scoring.
var teamLabels = []struct {
	label string
	route model.RouteKey
}{
	{"team/backend", model.RouteBackend},
	{"team/frontend", model.RouteFrontend},
	{"team/architecture", model.RouteArchitecture},
}

var routeKeywords = map[model.RouteKey][]string{
	model.RouteBackend: {
		"api", "database", "postgresql", "supabase", "backend",
		"nextjs", "middleware", "auth", "schema", "migration", "server",
	},
	model.RouteFrontend: {
		"flutter", "dart", "ui", "widget", "screen", "mobile", "app",
	},
	model.RouteArchitecture: {
		"architecture", "design", "review", "documentation", "strategy",
	},
}

// Router assigns each work item to a route, preferring explicit team labels
// and falling back to keyword scoring over the item text.
type Router struct {
	defaultRoute model.RouteKey
}

func NewRouter(defaultRoute model.RouteKey) *Router {
	if !defaultRoute.Valid() {
		defaultRoute = model.RouteArchitecture
	}
	return &Router{defaultRoute: defaultRoute}
}

// Route picks the route for an item. Keyword scores count every occurrence
// of every keyword in the lowercased title and body; the route with the
// strictly highest score wins. A tie for the top score, or no keyword hits
// at all, falls back to the default route.
func (r *Router) Route(item *model.WorkItem) model.RouteKey {
	for _, tl := range teamLabels {
		if item.HasLabel(tl.label) {
			return tl.route
		}
	}

	text := item.SearchText()

	best := r.defaultRoute
	bestScore := 0
	tied := false
	for _, route := range model.Routes {
		score := 0
		for _, kw := range routeKeywords[route] {
			score += strings.Count(text, kw)
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = route, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return r.defaultRoute
	}
	return best
}
