package routeauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

// Manager holds the strategy of every configured route. It is built once at
// startup and never changes afterwards, so it needs no locking.
type Manager struct {
	strategies map[string]Strategy
	keys       map[string]string
}

// NewManager builds a strategy for every route. An unknown strategy key or
// invalid route options fail the whole build.
func NewManager(routes map[string]config.RouteSettings, registry *Registry, deps Deps) (*Manager, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	deps = deps.withDefaults()

	m := &Manager{
		strategies: make(map[string]Strategy, len(routes)),
		keys:       make(map[string]string, len(routes)),
	}
	for routeKey, settings := range routes {
		strategy, err := registry.Build(settings.AuthenticationStrategy, Route{Key: routeKey, Options: settings.Options}, deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build authentication strategy for route %q: %w", routeKey, err)
		}
		m.strategies[routeKey] = strategy
		m.keys[routeKey] = settings.AuthenticationStrategy
		if m.keys[routeKey] == "" {
			m.keys[routeKey] = KeyNoAuthentication
		}
	}
	return m, nil
}

// Resolve returns the strategy of routeKey.
func (m *Manager) Resolve(routeKey string) (Strategy, error) {
	strategy, ok := m.strategies[routeKey]
	if !ok {
		return nil, fmt.Errorf("%w: route %q", errors.ErrNotFound, routeKey)
	}
	return strategy, nil
}

// StrategyKey returns the strategy key configured for routeKey.
func (m *Manager) StrategyKey(routeKey string) string {
	return m.keys[routeKey]
}

// Authenticate applies the strategy of rc.RouteKey.
func (m *Manager) Authenticate(ctx context.Context, rc RequestContext) (Outcome, error) {
	strategy, err := m.Resolve(rc.RouteKey)
	if err != nil {
		return Outcome{}, err
	}
	return strategy.Apply(ctx, rc)
}

// Middleware authenticates requests of routeKey before they reach next. The
// session id is read from the request context (see WithSessionID).
func (m *Manager) Middleware(routeKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := RequestContext{RouteKey: routeKey, SessionID: SessionIDFromContext(r.Context())}

			outcome, err := m.Authenticate(r.Context(), rc)
			if err != nil {
				WriteRejection(w, routeKey, err)
				return
			}

			if credential, ok := outcome.Credential(); ok {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", credential)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StatusFor maps a rejection to the HTTP status returned to the caller.
func StatusFor(err error) int {
	var exErr *errors.ExchangeError
	switch {
	case errors.As(err, &exErr):
		if exErr.ProviderRejected {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.Is(err, errors.ErrUnauthenticated), errors.Is(err, errors.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrDiscoveryUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteRejection writes the JSON error response for a rejected request.
func WriteRejection(w http.ResponseWriter, routeKey string, err error) {
	status := StatusFor(err)

	code, description := "server_error", "internal error"
	switch status {
	case http.StatusUnauthorized:
		code, description = "unauthorized", "authentication required"
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	case http.StatusBadGateway:
		code, description = "bad_gateway", "identity provider unavailable"
	}

	if status == http.StatusInternalServerError {
		log.Err(err).Str("route", routeKey).Int("status", status).Msg("Request rejected")
	} else {
		log.Info().Err(err).Str("route", routeKey).Int("status", status).Msg("Request rejected")
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
