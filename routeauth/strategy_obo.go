package routeauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jrsteele09/go-auth-gateway/oauthmodel"
	"github.com/rs/zerolog/log"
)

const (
	opOnBehalfOf = "on_behalf_of"

	// maxOnBehalfOfCacheTTL caps how long an exchanged token can stay cached;
	// entries also expire at the token's own expiry.
	maxOnBehalfOfCacheTTL = time.Hour
)

// OnBehalfOf exchanges the session's access token for one issued to the route's
// backend (the Microsoft identity platform on-behalf-of flow). Exchanged tokens
// are kept in memory per session and scope until they expire and are never
// written to the token store.
type OnBehalfOf struct {
	sessions *sessionTokens
	provider provider
	scope    string
	client   *http.Client
	skew     time.Duration
	cache    *expirable.LRU[string, issuedToken]
}

func newOnBehalfOf(route Route, deps Deps) (Strategy, error) {
	if err := route.Options.Require(route.Key, OptScope); err != nil {
		return nil, err
	}
	sessions, err := newSessionTokens(route, deps)
	if err != nil {
		return nil, err
	}
	if err := sessions.provider.validate(route.Key, true); err != nil {
		return nil, err
	}

	return &OnBehalfOf{
		sessions: sessions,
		provider: sessions.provider,
		scope:    strings.Join(splitScopes(route.Options[OptScope]), " "),
		client:   deps.HTTPClient,
		skew:     deps.RefreshSkew,
		cache:    expirable.NewLRU[string, issuedToken](deps.OnBehalfOfCacheSize, nil, maxOnBehalfOfCacheTTL),
	}, nil
}

func (s *OnBehalfOf) Apply(ctx context.Context, rc RequestContext) (Outcome, error) {
	assertion, err := s.sessions.accessToken(ctx, rc.SessionID)
	if err != nil {
		return Outcome{}, err
	}

	key := rc.SessionID + "\x00" + s.scope
	if cached, ok := s.cache.Get(key); ok {
		if cached.validAt(NowTimeFunc()) {
			return AllowWithBearer(cached.accessToken), nil
		}
		s.cache.Remove(key)
	}

	// The exchange belongs to this request only, so it runs on the request context.
	token, err := s.exchange(ctx, assertion)
	if err != nil {
		return Outcome{}, err
	}
	s.cache.Add(key, token)
	return AllowWithBearer(token.accessToken), nil
}

func (s *OnBehalfOf) exchange(ctx context.Context, assertion string) (issuedToken, error) {
	endpoint, err := s.provider.endpoint(ctx)
	if err != nil {
		return issuedToken{}, err
	}

	form := url.Values{}
	form.Set(oauthmodel.ParamGrantType, oauthmodel.GrantTypeJWTBearer)
	form.Set(oauthmodel.ParamClientID, s.provider.clientID)
	form.Set(oauthmodel.ParamClientSecret, s.provider.clientSecret)
	form.Set(oauthmodel.ParamAssertion, assertion)
	form.Set(oauthmodel.ParamScope, s.scope)
	form.Set(oauthmodel.ParamRequestedTokenUse, oauthmodel.RequestedTokenUseOnBehalfOf)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return issuedToken{}, fmt.Errorf("failed to create on-behalf-of request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := postToken(s.client, opOnBehalfOf, req)
	if err != nil {
		log.Warn().Err(err).Str("scope", s.scope).Msg("On-behalf-of exchange failed")
		return issuedToken{}, err
	}

	now := NowTimeFunc()
	return issuedToken{
		accessToken: resp.Token(),
		expiresAt:   AccessTokenExpiry(resp.Token(), resp.ExpiresAt(now), now),
	}.withSkew(now, s.skew), nil
}
