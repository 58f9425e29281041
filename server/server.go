package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-auth-gateway/discovery"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/routeauth"
	"github.com/jrsteele09/go-auth-gateway/routing"
	"github.com/jrsteele09/go-auth-gateway/server/authflowrepo"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type OidcConfig struct {
	OidcProvider *oidc.Provider
	OAuth2Config *oauth2.Config
	OidcVerifier *oidc.IDTokenVerifier
}

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	router    chi.Router
	routes    []string
	config    config.Config
	settings  *config.GatewaySettings
	store     tokenstore.Store
	resolver  *discovery.Resolver
	authState authflowrepo.Repo
	routeAuth *routeauth.Manager
	engine    *routing.Engine

	oidcConfig *OidcConfig
	oidcLock   sync.RWMutex
}

// Deps are the collaborators the server is built from.
type Deps struct {
	Store     tokenstore.Store
	AuthState authflowrepo.Repo
	Resolver  *discovery.Resolver
	Registry  *routeauth.Registry
}

func New(config config.Config, settings *config.GatewaySettings, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("[Server New] a token store is required")
	}
	if deps.AuthState == nil {
		deps.AuthState = authflowrepo.NewInMemoryRepo()
	}
	if deps.Resolver == nil {
		deps.Resolver = discovery.NewResolver(nil)
	}

	s := &Server{
		env:       config.GetEnv(),
		router:    chi.NewRouter(),
		config:    config,
		settings:  settings,
		store:     deps.Store,
		resolver:  deps.Resolver,
		authState: deps.AuthState,
	}

	routeAuth, err := routeauth.NewManager(settings.Routing.Routes, deps.Registry,
		routeauth.DepsFromConfig(config, deps.Store, deps.Resolver, settings.Authentication))
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create route authentication: %w", err)
	}
	s.routeAuth = routeAuth

	routingConfig, err := routing.Build(settings.Routing)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to build routes: %w", err)
	}
	transform, err := routing.ForwardedHeadersTransform(s.publicOrigin())
	if err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}
	s.engine, err = routing.NewEngine(routingConfig, routeAuth, transform)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create forwarding engine: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterRouteHandler registers handler for a "METHOD /path" pattern.
func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		s.router.Handle(pattern, handler)
		return
	}
	s.router.Method(method, path, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.RegisterRouteHandler(pattern, http.HandlerFunc(handler))
}

// Routes returns the forwarding routes served by the gateway.
func (s *Server) Routes() []routing.Route {
	return s.engine.Routes()
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
	for _, route := range s.engine.Routes() {
		logRoute("PROXY", fmt.Sprintf("%s -> %s (%s)", route.Match.Path, route.ClusterID, s.routeAuth.StrategyKey(route.ID)))
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// publicOrigin is the origin clients use to reach the gateway, or "" when unknown.
func (s *Server) publicOrigin() string {
	if origin := s.config.GetPublicOrigin(); origin != "" {
		return strings.TrimSuffix(origin, "/")
	}
	return strings.TrimSuffix(s.settings.ResourceProxy, "/")
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
