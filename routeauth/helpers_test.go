package routeauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/discovery"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/testidp"
	"github.com/jrsteele09/go-auth-gateway/routeauth"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"github.com/stretchr/testify/require"
)

func setNow(t *testing.T, now func() time.Time) {
	t.Helper()
	previous := routeauth.NowTimeFunc
	routeauth.NowTimeFunc = now
	t.Cleanup(func() { routeauth.NowTimeFunc = previous })
}

func newDeps(idp *testidp.Server, store tokenstore.Store) routeauth.Deps {
	return routeauth.Deps{
		Store:    store,
		Resolver: discovery.NewResolver(nil),
		Provider: &config.AuthenticationSettings{
			Authority:    idp.Issuer(),
			ClientID:     testidp.ClientID,
			ClientSecret: testidp.ClientSecret,
		},
	}
}

func newManager(t *testing.T, deps routeauth.Deps, routes map[string]config.RouteSettings) *routeauth.Manager {
	t.Helper()
	m, err := routeauth.NewManager(routes, routeauth.DefaultRegistry(), deps)
	require.NoError(t, err)
	return m
}

func route(strategy string, options map[string]string) config.RouteSettings {
	return config.RouteSettings{
		PathMatch:              "/api/{**rest}",
		BaseURL:                "http://backend.local",
		AuthenticationStrategy: strategy,
		Options:                options,
	}
}

// forwarded is what reached the handler behind the route middleware.
type forwarded struct {
	called        bool
	authorization string
}

func serve(t *testing.T, m *routeauth.Manager, routeKey, sessionID string) (*httptest.ResponseRecorder, *forwarded) {
	t.Helper()
	fwd := &forwarded{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fwd.called = true
		fwd.authorization = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	if sessionID != "" {
		req = req.WithContext(routeauth.WithSessionID(req.Context(), sessionID))
	}
	rec := httptest.NewRecorder()
	m.Middleware(routeKey)(next).ServeHTTP(rec, req)
	return rec, fwd
}

func saveSession(t *testing.T, store tokenstore.Store, sessionID, accessToken, refreshToken string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, store.SaveOrUpdateTokens(context.Background(), sessionID, "id-token", accessToken, refreshToken, expiresAt))
}
