// Package routeauth applies the per-route credential policy of the gateway: it
// decides whether a request may be forwarded and which Authorization header the
// backend receives.
package routeauth

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-gateway/discovery"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"golang.org/x/sync/singleflight"
)

// Strategy keys accepted in the authenticationStrategy route setting.
const (
	KeyNoAuthentication       = "NoAuthentication"
	KeyEnsureAuthenticated    = "EnsureAuthenticated"
	KeyTokenPassThrough       = "TokenPassThrough"
	KeyAzureOnBehalfOf        = "AzureOnBehalfOf"
	KeyClientCredentials      = "ClientCredentials"
	KeyAuth0ClientCredentials = "Auth0ClientCredentials"
)

// Route option names.
const (
	OptAuthority     = "authority"
	OptClientID      = "clientId"
	OptClientSecret  = "clientSecret"
	OptScope         = "scope"
	OptAudience      = "audience"
	OptTokenEndpoint = "tokenEndpoint"
	OptDomain        = "domain"
)

// NowTimeFunc is used for every expiry decision in this package.
var NowTimeFunc = time.Now

// RequestContext identifies the request a strategy is applied to.
type RequestContext struct {
	RouteKey string
	// SessionID is empty for callers without a session.
	SessionID string
}

// Strategy is a credential policy. One instance serves every request of a route
// and must be safe for concurrent use. A non-nil error rejects the request.
type Strategy interface {
	Apply(ctx context.Context, rc RequestContext) (Outcome, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, rc RequestContext) (Outcome, error)

func (f StrategyFunc) Apply(ctx context.Context, rc RequestContext) (Outcome, error) {
	return f(ctx, rc)
}

// Options are the free-form strategy options of a route.
type Options map[string]string

// Require returns the named options, failing on the first missing one.
func (o Options) Require(routeKey string, names ...string) error {
	for _, name := range names {
		if o[name] == "" {
			return fmt.Errorf("%w: route %q needs %q", errors.ErrMissingStrategyOpts, routeKey, name)
		}
	}
	return nil
}

// Route is what a Factory gets to build a strategy for one route.
type Route struct {
	Key     string
	Options Options
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Store      tokenstore.Store
	Resolver   *discovery.Resolver
	HTTPClient *http.Client
	// Provider is the identity provider of user sessions. Routes may override
	// it with their own authority and client options.
	Provider *config.AuthenticationSettings

	RefreshSkew         time.Duration
	ExchangeTimeout     time.Duration
	OnBehalfOfCacheSize int

	// refreshes coalesces session refreshes across all routes.
	refreshes *singleflight.Group
}

const (
	defaultRefreshSkew         = 30 * time.Second
	defaultExchangeTimeout     = 15 * time.Second
	defaultOnBehalfOfCacheSize = 10000
)

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	if d.Resolver == nil {
		d.Resolver = discovery.NewResolver(d.HTTPClient)
	}
	if d.RefreshSkew <= 0 {
		d.RefreshSkew = defaultRefreshSkew
	}
	if d.ExchangeTimeout <= 0 {
		d.ExchangeTimeout = defaultExchangeTimeout
	}
	if d.OnBehalfOfCacheSize <= 0 {
		d.OnBehalfOfCacheSize = defaultOnBehalfOfCacheSize
	}
	if d.refreshes == nil {
		d.refreshes = new(singleflight.Group)
	}
	return d
}

// DepsFromConfig fills the tunables of Deps from the gateway configuration.
func DepsFromConfig(c config.TokenConfig, store tokenstore.Store, resolver *discovery.Resolver, provider *config.AuthenticationSettings) Deps {
	return Deps{
		Store:               store,
		Resolver:            resolver,
		Provider:            provider,
		RefreshSkew:         c.GetRefreshSkew(),
		ExchangeTimeout:     c.GetExchangeTimeout(),
		OnBehalfOfCacheSize: c.GetOnBehalfOfCacheSize(),
	}
}

// Factory builds the strategy of one route. It validates the route options.
type Factory func(route Route, deps Deps) (Strategy, error)

// Registry maps strategy keys to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KeyNoAuthentication, newNoAuthentication)
	r.Register(KeyEnsureAuthenticated, newEnsureAuthenticated)
	r.Register(KeyTokenPassThrough, newTokenPassThrough)
	r.Register(KeyAzureOnBehalfOf, newOnBehalfOf)
	r.Register(KeyClientCredentials, newClientCredentials)
	r.Register(KeyAuth0ClientCredentials, newAuth0ClientCredentials)
	return r
}

// Register adds or replaces the factory for key.
func (r *Registry) Register(key string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
}

// Keys returns the registered strategy keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build creates the strategy registered under key. An empty key means NoAuthentication.
func (r *Registry) Build(key string, route Route, deps Deps) (Strategy, error) {
	if key == "" {
		key = KeyNoAuthentication
	}

	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (route %q)", errors.ErrUnknownStrategy, key, route.Key)
	}

	if route.Options == nil {
		route.Options = Options{}
	}
	return factory(route, deps)
}
