package routeauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const opRefreshToken = "refresh_token"

// sessionTokens reads the access token of a session, refreshing it once when it
// has expired. Refreshes of one session are shared by every concurrent request.
type sessionTokens struct {
	store     tokenstore.Store
	provider  provider
	client    *http.Client
	timeout   time.Duration
	refreshes *singleflight.Group
}

func newSessionTokens(route Route, deps Deps) (*sessionTokens, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: route %q needs a token store", errors.ErrInvalidRouteConfig, route.Key)
	}
	p := providerFor(route, deps)
	if err := p.validate(route.Key, false); err != nil {
		return nil, err
	}
	return &sessionTokens{
		store:     deps.Store,
		provider:  p,
		client:    deps.HTTPClient,
		timeout:   deps.ExchangeTimeout,
		refreshes: deps.refreshes,
	}, nil
}

// accessToken returns a usable access token for sessionID. Missing sessions and
// failed refreshes match errors.ErrUnauthenticated.
func (s *sessionTokens) accessToken(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: no session", errors.ErrUnauthenticated)
	}

	record, err := s.store.GetTokenRecord(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to read session tokens: %w", err)
	}
	if record == nil {
		return "", fmt.Errorf("%w: %w", errors.ErrUnauthenticated, errors.ErrSessionNotFound)
	}
	if !record.IsExpired(NowTimeFunc()) {
		return record.AccessToken, nil
	}

	record, err = s.refresh(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return record.AccessToken, nil
}

// refresh runs at most one refresh per session at a time. The shared call is
// detached from ctx so one caller giving up doesn't fail the others.
func (s *sessionTokens) refresh(ctx context.Context, sessionID string) (*tokenstore.TokenRecord, error) {
	ch := s.refreshes.DoChan(sessionID, func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refreshOnce(refreshCtx, sessionID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tokenstore.TokenRecord), nil
	}
}

func (s *sessionTokens) refreshOnce(ctx context.Context, sessionID string) (*tokenstore.TokenRecord, error) {
	// A refresh that finished just before this one started already stored a fresh record.
	record, err := s.store.GetTokenRecord(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session tokens: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, errors.ErrSessionNotFound)
	}
	if !record.IsExpired(NowTimeFunc()) {
		return record, nil
	}
	if !record.CanRefresh() {
		return nil, fmt.Errorf("%w: session expired and has no refresh token", errors.ErrUnauthenticated)
	}

	endpoint, err := s.provider.endpoint(ctx)
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     s.provider.clientID,
		ClientSecret: s.provider.clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: endpoint, AuthStyle: oauth2.AuthStyleInParams},
	}
	token, err := conf.TokenSource(withHTTPClient(ctx, s.client), &oauth2.Token{RefreshToken: record.RefreshToken}).Token()
	if err != nil {
		exErr := classifyExchangeError(opRefreshToken, err)
		log.Warn().Err(exErr).Msg("Session token refresh failed")
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, exErr)
	}

	refreshed := &tokenstore.TokenRecord{
		SessionID:    sessionID,
		IDToken:      record.IDToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    AccessTokenExpiry(token.AccessToken, token.Expiry, NowTimeFunc()),
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		refreshed.IDToken = idToken
	}

	swapped, err := s.store.SwapRefreshedTokens(ctx, sessionID, record.RefreshToken, refreshed.IDToken, refreshed.AccessToken, refreshed.RefreshToken, refreshed.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store refreshed tokens: %w", err)
	}
	if !swapped {
		return s.afterLostSwap(ctx, sessionID)
	}

	log.Debug().Time("expires_at", refreshed.ExpiresAt).Msg("Session tokens refreshed")
	return refreshed, nil
}

// afterLostSwap decides the outcome of a refresh whose result could not be stored:
// the session was deleted meanwhile, or another replica stored newer tokens.
func (s *sessionTokens) afterLostSwap(ctx context.Context, sessionID string) (*tokenstore.TokenRecord, error) {
	current, err := s.store.GetTokenRecord(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session tokens: %w", err)
	}
	if current == nil {
		log.Debug().Msg("Session ended during token refresh")
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, errors.ErrSessionNotFound)
	}
	if current.IsExpired(NowTimeFunc()) {
		return nil, fmt.Errorf("%w: session tokens changed during refresh", errors.ErrUnauthenticated)
	}
	return current, nil
}
