package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cleaner periodically removes expired token records from a Store. It runs
// independently of request handling and only talks to the store.
type Cleaner struct {
	store    Store
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewCleaner creates a cleaner sweeping store every interval.
func NewCleaner(store Store, interval time.Duration) *Cleaner {
	return &Cleaner{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the background sweep loop. It returns immediately.
func (c *Cleaner) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.cleanupLoop(ctx)
}

// Stop ends the sweep loop and waits for it to exit. Safe to call more than once.
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

func (c *Cleaner) cleanupLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one cleanup cycle. A failing store is logged and the cycle skipped.
func (c *Cleaner) Sweep(ctx context.Context) int {
	removed, err := c.store.CleanupExpiredTokenRecords(ctx)
	if err != nil {
		log.Err(err).Int("removed", removed).Msg("Token cleanup failed, skipping cycle")
		return removed
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Cleaned up expired token records")
	}
	return removed
}
