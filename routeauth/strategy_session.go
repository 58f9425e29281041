package routeauth

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
)

// NoAuthentication forwards every request unchanged. Used for public routes.
type NoAuthentication struct{}

func newNoAuthentication(Route, Deps) (Strategy, error) {
	return NoAuthentication{}, nil
}

func (NoAuthentication) Apply(context.Context, RequestContext) (Outcome, error) {
	return AllowUnmodified(), nil
}

// EnsureAuthenticated lets a request through only when its session holds an
// unexpired token record. It forwards no credential itself.
type EnsureAuthenticated struct {
	store tokenstore.Store
}

func newEnsureAuthenticated(route Route, deps Deps) (Strategy, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: route %q needs a token store", errors.ErrInvalidRouteConfig, route.Key)
	}
	return &EnsureAuthenticated{store: deps.Store}, nil
}

func (s *EnsureAuthenticated) Apply(ctx context.Context, rc RequestContext) (Outcome, error) {
	if rc.SessionID == "" {
		return Outcome{}, fmt.Errorf("%w: no session", errors.ErrUnauthenticated)
	}

	record, err := s.store.GetTokenRecord(ctx, rc.SessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read session tokens: %w", err)
	}
	if record == nil {
		return Outcome{}, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, errors.ErrSessionNotFound)
	}
	if record.IsExpired(NowTimeFunc()) {
		return Outcome{}, fmt.Errorf("%w: session expired", errors.ErrUnauthenticated)
	}
	return AllowUnmodified(), nil
}

// TokenPassThrough forwards the session's own access token, refreshing it once
// when it has expired.
type TokenPassThrough struct {
	sessions *sessionTokens
}

func newTokenPassThrough(route Route, deps Deps) (Strategy, error) {
	sessions, err := newSessionTokens(route, deps)
	if err != nil {
		return nil, err
	}
	return &TokenPassThrough{sessions: sessions}, nil
}

func (s *TokenPassThrough) Apply(ctx context.Context, rc RequestContext) (Outcome, error) {
	accessToken, err := s.sessions.accessToken(ctx, rc.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	return AllowWithBearer(accessToken), nil
}
