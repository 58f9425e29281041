package routeauth

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-auth-gateway/discovery"
)

// provider is the token endpoint and client a strategy authenticates with.
type provider struct {
	authority     string
	clientID      string
	clientSecret  string
	tokenEndpoint string
	resolver      *discovery.Resolver
}

// providerFor starts from the session provider and applies route overrides.
func providerFor(route Route, deps Deps) provider {
	p := provider{resolver: deps.Resolver}
	if deps.Provider != nil {
		p.authority = deps.Provider.Authority
		p.clientID = deps.Provider.ClientID
		p.clientSecret = deps.Provider.ClientSecret
	}
	if v := route.Options[OptAuthority]; v != "" {
		p.authority = v
	}
	if v := route.Options[OptClientID]; v != "" {
		p.clientID = v
	}
	if v := route.Options[OptClientSecret]; v != "" {
		p.clientSecret = v
	}
	p.tokenEndpoint = route.Options[OptTokenEndpoint]
	return p
}

// validate checks the provider can be reached and the client identified.
func (p provider) validate(routeKey string, needSecret bool) error {
	merged := Options{
		OptAuthority:    p.authority + p.tokenEndpoint,
		OptClientID:     p.clientID,
		OptClientSecret: p.clientSecret,
	}
	names := []string{OptAuthority, OptClientID}
	if needSecret {
		names = append(names, OptClientSecret)
	}
	return merged.Require(routeKey, names...)
}

// endpoint returns the configured token endpoint or the discovered one.
func (p provider) endpoint(ctx context.Context) (string, error) {
	if p.tokenEndpoint != "" {
		return p.tokenEndpoint, nil
	}
	doc, err := p.resolver.Resolve(ctx, p.authority)
	if err != nil {
		return "", err
	}
	return doc.TokenEndpoint, nil
}

func splitScopes(scope string) []string {
	return strings.Fields(strings.ReplaceAll(scope, ",", " "))
}
