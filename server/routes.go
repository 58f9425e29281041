package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) initRoutes() {
	s.router.Use(
		s.RequestIDMiddleware,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.SessionMiddleware,
	)

	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare()...)) // For form_post response mode

	// API routes
	s.RegisterRouteHandler("GET "+RouteAuthUserinfo, ChainMiddleware(s.UserinfoHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAuthUserinfo, ChainMiddleware(http.NotFoundHandler(), s.APIMiddleware()...))

	// Proxied backend routes
	s.router.Group(func(r chi.Router) {
		r.Use(s.CorsMiddleware)
		s.engine.Register(r)
	})
}
