package routeauth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// serviceTokenCache holds one service token and renews it skew before it
// expires, or halfway through its lifetime when that comes later. Concurrent
// misses share a single fetch.
type serviceTokenCache struct {
	fetch   func(ctx context.Context) (issuedToken, error)
	skew    time.Duration
	timeout time.Duration

	group   singleflight.Group
	mu      sync.RWMutex
	current issuedToken
}

func newServiceTokenCache(fetch func(ctx context.Context) (issuedToken, error), skew, timeout time.Duration) *serviceTokenCache {
	return &serviceTokenCache{fetch: fetch, skew: skew, timeout: timeout}
}

func (c *serviceTokenCache) cached() (issuedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current.validAt(NowTimeFunc())
}

func (c *serviceTokenCache) token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok.accessToken, nil
	}

	ch := c.group.DoChan("token", func() (interface{}, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		tok, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}

		tok = tok.withSkew(NowTimeFunc(), c.skew)
		c.mu.Lock()
		c.current = tok
		c.mu.Unlock()
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(issuedToken).accessToken, nil
	}
}
