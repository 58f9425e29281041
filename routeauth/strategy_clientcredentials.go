package routeauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-gateway/oauthmodel"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	opClientCredentials      = "client_credentials"
	opAuth0ClientCredentials = "auth0_client_credentials"
)

// ClientCredentials forwards a service token obtained with the client
// credentials grant. The token is shared by every request of the route and
// renewed shortly before it expires.
type ClientCredentials struct {
	routeKey string
	provider provider
	scopes   []string
	client   *http.Client
	cache    *serviceTokenCache
}

func newClientCredentials(route Route, deps Deps) (Strategy, error) {
	p := providerFor(route, deps)
	if err := p.validate(route.Key, true); err != nil {
		return nil, err
	}

	s := &ClientCredentials{
		routeKey: route.Key,
		provider: p,
		scopes:   splitScopes(route.Options[OptScope]),
		client:   deps.HTTPClient,
	}
	s.cache = newServiceTokenCache(s.fetch, deps.RefreshSkew, deps.ExchangeTimeout)
	return s, nil
}

func (s *ClientCredentials) Apply(ctx context.Context, _ RequestContext) (Outcome, error) {
	token, err := s.cache.token(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return AllowWithBearer(token), nil
}

func (s *ClientCredentials) fetch(ctx context.Context) (issuedToken, error) {
	endpoint, err := s.provider.endpoint(ctx)
	if err != nil {
		return issuedToken{}, err
	}

	conf := clientcredentials.Config{
		ClientID:     s.provider.clientID,
		ClientSecret: s.provider.clientSecret,
		TokenURL:     endpoint,
		Scopes:       s.scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	token, err := conf.Token(withHTTPClient(ctx, s.client))
	if err != nil {
		exErr := classifyExchangeError(opClientCredentials, err)
		log.Warn().Err(exErr).Str("route", s.routeKey).Msg("Client credentials token request failed")
		return issuedToken{}, exErr
	}

	log.Debug().Str("route", s.routeKey).Time("expires_at", token.Expiry).Msg("Service token acquired")
	return issuedToken{
		accessToken: token.AccessToken,
		expiresAt:   AccessTokenExpiry(token.AccessToken, token.Expiry, NowTimeFunc()),
	}, nil
}

// Auth0ClientCredentials is ClientCredentials against an Auth0 tenant, which
// takes a JSON body with an audience instead of a form with scopes.
type Auth0ClientCredentials struct {
	routeKey     string
	endpoint     string
	clientID     string
	clientSecret string
	audience     string
	client       *http.Client
	cache        *serviceTokenCache
}

type auth0TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience"`
	GrantType    string `json:"grant_type"`
}

func newAuth0ClientCredentials(route Route, deps Deps) (Strategy, error) {
	opts := route.Options
	if err := opts.Require(route.Key, OptDomain, OptClientID, OptClientSecret, OptAudience); err != nil {
		return nil, err
	}

	s := &Auth0ClientCredentials{
		routeKey:     route.Key,
		endpoint:     auth0TokenEndpoint(opts[OptDomain]),
		clientID:     opts[OptClientID],
		clientSecret: opts[OptClientSecret],
		audience:     opts[OptAudience],
		client:       deps.HTTPClient,
	}
	if v := opts[OptTokenEndpoint]; v != "" {
		s.endpoint = v
	}
	s.cache = newServiceTokenCache(s.fetch, deps.RefreshSkew, deps.ExchangeTimeout)
	return s, nil
}

// auth0TokenEndpoint accepts a bare tenant domain or a full origin.
func auth0TokenEndpoint(domain string) string {
	domain = strings.TrimSuffix(domain, "/")
	if !strings.HasPrefix(domain, "https://") && !strings.HasPrefix(domain, "http://") {
		domain = "https://" + domain
	}
	return domain + "/oauth/token"
}

func (s *Auth0ClientCredentials) Apply(ctx context.Context, _ RequestContext) (Outcome, error) {
	token, err := s.cache.token(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return AllowWithBearer(token), nil
}

func (s *Auth0ClientCredentials) fetch(ctx context.Context) (issuedToken, error) {
	body, err := json.Marshal(auth0TokenRequest{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Audience:     s.audience,
		GrantType:    oauthmodel.GrantTypeClientCredentials,
	})
	if err != nil {
		return issuedToken{}, fmt.Errorf("failed to encode auth0 token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return issuedToken{}, fmt.Errorf("failed to create auth0 token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := postToken(s.client, opAuth0ClientCredentials, req)
	if err != nil {
		log.Warn().Err(err).Str("route", s.routeKey).Msg("Auth0 token request failed")
		return issuedToken{}, err
	}

	now := NowTimeFunc()
	return issuedToken{
		accessToken: resp.Token(),
		expiresAt:   AccessTokenExpiry(resp.Token(), resp.ExpiresAt(now), now),
	}, nil
}
