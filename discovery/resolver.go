package discovery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// defaultFetchTimeout bounds a single discovery fetch shared by all waiters.
const defaultFetchTimeout = 30 * time.Second

type entry struct {
	doc      Document
	provider *oidc.Provider
}

// Resolver fetches discovery documents once per issuer and keeps them for the
// lifetime of the process. Concurrent first lookups of the same issuer share a
// single fetch.
type Resolver struct {
	client       *http.Client
	fetchTimeout time.Duration

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewResolver creates a resolver. A nil client uses http.DefaultClient.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		client:       client,
		fetchTimeout: defaultFetchTimeout,
		entries:      make(map[string]*entry),
	}
}

// Resolve returns the discovery document of issuer. Failures wrap ErrDiscoveryUnavailable.
func (r *Resolver) Resolve(ctx context.Context, issuer string) (Document, error) {
	e, err := r.lookup(ctx, issuer)
	if err != nil {
		return Document{}, err
	}
	return e.doc, nil
}

// Provider returns the go-oidc provider of issuer, used to verify ID tokens and
// to build authorization URLs.
func (r *Resolver) Provider(ctx context.Context, issuer string) (*oidc.Provider, error) {
	e, err := r.lookup(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return e.provider, nil
}

// Invalidate drops the cached document so the next lookup fetches it again.
func (r *Resolver) Invalidate(issuer string) {
	key := normalizeIssuer(issuer)
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	r.group.Forget(key)
}

func (r *Resolver) cached(key string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

func (r *Resolver) lookup(ctx context.Context, issuer string) (*entry, error) {
	key := normalizeIssuer(issuer)
	if e := r.cached(key); e != nil {
		return e, nil
	}

	// The fetch is shared, so it must not die with the first caller's context.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		if e := r.cached(key); e != nil {
			return e, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()

		e, err := r.fetch(fetchCtx, issuer)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.entries[key] = e
		r.mu.Unlock()
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry), nil
	}
}

func (r *Resolver) fetch(ctx context.Context, issuer string) (*entry, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, r.client), issuer)
	if err != nil {
		log.Err(err).Str("issuer", issuer).Msg("Discovery fetch failed")
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrDiscoveryUnavailable, issuer, err)
	}

	var doc Document
	if err := provider.Claims(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrDiscoveryUnavailable, issuer, err)
	}
	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrDiscoveryUnavailable, issuer, err)
	}

	log.Debug().Str("issuer", issuer).Str("token_endpoint", doc.TokenEndpoint).Msg("Discovery document cached")
	return &entry{doc: doc, provider: provider}, nil
}

func normalizeIssuer(issuer string) string {
	return strings.TrimSuffix(issuer, "/")
}
