package routing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Authenticator supplies the credential middleware of a route.
type Authenticator interface {
	Middleware(routeKey string) func(http.Handler) http.Handler
}

// Engine forwards requests matched by the built routes to their clusters.
type Engine struct {
	config    *Config
	auth      Authenticator
	transform Transform
	proxies   map[string]*httputil.ReverseProxy
}

// NewEngine prepares one reverse proxy per cluster.
func NewEngine(cfg *Config, auth Authenticator, transform Transform) (*Engine, error) {
	e := &Engine{
		config:    cfg,
		auth:      auth,
		transform: transform,
		proxies:   make(map[string]*httputil.ReverseProxy, len(cfg.Clusters)),
	}

	for id, cluster := range cfg.Clusters {
		destination, ok := cluster.Destinations[defaultDestination]
		if !ok {
			return nil, fmt.Errorf("cluster %q has no destination", id)
		}
		target, err := url.Parse(destination.Address)
		if err != nil {
			return nil, fmt.Errorf("cluster %q: invalid destination %q: %w", id, destination.Address, err)
		}
		e.proxies[id] = e.newProxy(id, target)
	}
	return e, nil
}

func (e *Engine) newProxy(clusterID string, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			if e.transform != nil {
				e.transform(pr)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Err(err).Str("cluster", clusterID).Str("path", r.URL.Path).Msg("Backend request failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "bad_gateway",
				"error_description": "backend unavailable",
			})
		},
	}
}

// Register mounts every route on r behind its credential middleware.
func (e *Engine) Register(r chi.Router) {
	for _, route := range e.config.Routes {
		proxy := e.proxies[route.ClusterID]

		handler := http.Handler(proxy)
		if e.auth != nil {
			handler = e.auth.Middleware(route.ID)(handler)
		}
		for _, pattern := range ChiPatterns(route.Match.Path) {
			r.Handle(pattern, handler)
			log.Debug().Str("route", route.ID).Str("pattern", pattern).Str("cluster", route.ClusterID).Msg("Route registered")
		}
	}
}

// Routes returns the routes served by the engine.
func (e *Engine) Routes() []Route {
	return e.config.Routes
}
