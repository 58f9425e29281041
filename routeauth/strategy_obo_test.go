package routeauth_test

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/testidp"
	"github.com/jrsteele09/go-auth-gateway/routeauth"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"github.com/stretchr/testify/require"
)

const graphScope = "https://graph.microsoft.com/.default"

func newOnBehalfOf(t *testing.T) (*testidp.Server, tokenstore.Store, *routeauth.Manager) {
	t.Helper()
	idp := testidp.New(t)
	store := tokenstore.NewInMemoryStore()

	var issued atomic.Int32
	idp.SetTokenHandler(func(req testidp.TokenRequest) (int, any) {
		n := issued.Add(1)
		return http.StatusOK, testidp.TokenResponse(fmt.Sprintf("obo-%s-%d", req.Form.Get("assertion"), n), 3600)
	})

	m := newManager(t, newDeps(idp, store), map[string]config.RouteSettings{
		"graph": route(routeauth.KeyAzureOnBehalfOf, map[string]string{"scope": graphScope}),
	})
	return idp, store, m
}

func TestOnBehalfOf(t *testing.T) {
	ctx := context.Background()

	t.Run("exchanges the session token", func(t *testing.T) {
		idp, store, m := newOnBehalfOf(t)
		saveSession(t, store, "s1", "user-access", "refresh", time.Now().Add(time.Hour))

		rec, fwd := serve(t, m, "graph", "s1")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Bearer obo-user-access-1", fwd.authorization)

		requests := idp.TokenRequests()
		require.Len(t, requests, 1)
		form := requests[0].Form
		require.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", form.Get("grant_type"))
		require.Equal(t, "user-access", form.Get("assertion"))
		require.Equal(t, "on_behalf_of", form.Get("requested_token_use"))
		require.Equal(t, graphScope, form.Get("scope"))
		require.Equal(t, testidp.ClientID, form.Get("client_id"))
		require.Equal(t, testidp.ClientSecret, form.Get("client_secret"))
	})

	t.Run("exchanged tokens are cached per session and never stored", func(t *testing.T) {
		idp, store, m := newOnBehalfOf(t)
		saveSession(t, store, "s1", "alice", "refresh", time.Now().Add(time.Hour))
		saveSession(t, store, "s2", "bob", "refresh", time.Now().Add(time.Hour))

		_, first := serve(t, m, "graph", "s1")
		_, again := serve(t, m, "graph", "s1")
		_, other := serve(t, m, "graph", "s2")

		require.Equal(t, first.authorization, again.authorization)
		require.Equal(t, "Bearer obo-bob-2", other.authorization)
		require.Equal(t, 2, idp.TokenCalls())

		record, err := store.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, "alice", record.AccessToken)
	})

	t.Run("expired exchanged token is exchanged again", func(t *testing.T) {
		idp, store, m := newOnBehalfOf(t)
		saveSession(t, store, "s1", "alice", "refresh", time.Now().Add(24*time.Hour))

		_, first := serve(t, m, "graph", "s1")
		setNow(t, func() time.Time { return time.Now().Add(2 * time.Hour) })
		_, second := serve(t, m, "graph", "s1")

		require.NotEqual(t, first.authorization, second.authorization)
		require.Equal(t, 2, idp.TokenCalls())
	})

	t.Run("expiry falls back to the jwt exp claim", func(t *testing.T) {
		idp, store, m := newOnBehalfOf(t)
		saveSession(t, store, "s1", "alice", "refresh", time.Now().Add(24*time.Hour))

		exchanged := idp.SignIDToken(t, jwt.MapClaims{"exp": time.Now().Add(10 * time.Minute).Unix()})
		idp.SetTokenHandler(func(testidp.TokenRequest) (int, any) {
			return http.StatusOK, map[string]any{"access_token": exchanged, "token_type": "Bearer"}
		})

		_, fwd := serve(t, m, "graph", "s1")
		require.Equal(t, "Bearer "+exchanged, fwd.authorization)

		setNow(t, func() time.Time { return time.Now().Add(5 * time.Minute) })
		serve(t, m, "graph", "s1")
		require.Equal(t, 1, idp.TokenCalls())

		setNow(t, func() time.Time { return time.Now().Add(11 * time.Minute) })
		serve(t, m, "graph", "s1")
		require.Equal(t, 2, idp.TokenCalls())
	})

	t.Run("no session is unauthenticated", func(t *testing.T) {
		idp, _, m := newOnBehalfOf(t)
		rec, fwd := serve(t, m, "graph", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.False(t, fwd.called)
		require.Zero(t, idp.TokenCalls())
	})

	t.Run("rejected exchange", func(t *testing.T) {
		idp, store, m := newOnBehalfOf(t)
		saveSession(t, store, "s1", "alice", "refresh", time.Now().Add(time.Hour))
		idp.SetTokenHandler(func(testidp.TokenRequest) (int, any) {
			return http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "AADSTS50013"}
		})

		_, err := m.Authenticate(ctx, routeauth.RequestContext{RouteKey: "graph", SessionID: "s1"})
		require.ErrorIs(t, err, errors.ErrCredentialExchangeFailed)
		require.Equal(t, http.StatusUnauthorized, routeauth.StatusFor(err))
	})
}
