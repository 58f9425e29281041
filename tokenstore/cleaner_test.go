package tokenstore_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"github.com/stretchr/testify/require"
)

// failingStore fails every cleanup and counts the attempts.
type failingStore struct {
	tokenstore.Store
	cleanups atomic.Int32
}

func (f *failingStore) CleanupExpiredTokenRecords(context.Context) (int, error) {
	f.cleanups.Add(1)
	return 0, errors.New("store unreachable")
}

func TestCleaner_Sweep(t *testing.T) {
	freezeTime(t, fixedNow)
	ctx := context.Background()
	store := tokenstore.NewInMemoryStore()
	require.NoError(t, store.SaveOrUpdateTokens(ctx, "old", "", "a", "", fixedNow.Add(-time.Second)))
	require.NoError(t, store.SaveOrUpdateTokens(ctx, "new", "", "a", "", fixedNow.Add(time.Second)))

	removed := tokenstore.NewCleaner(store, time.Minute).Sweep(ctx)
	require.Equal(t, 1, removed)

	record, err := store.GetTokenRecord(ctx, "old")
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestCleaner_KeepsRunningWhenStoreFails(t *testing.T) {
	store := &failingStore{Store: tokenstore.NewInMemoryStore()}
	c := tokenstore.NewCleaner(store, 5*time.Millisecond)
	c.Start(context.Background())

	require.Eventually(t, func() bool { return store.cleanups.Load() >= 3 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
	stopped := store.cleanups.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, stopped, store.cleanups.Load())
}

func TestCleaner_StopsWithContext(t *testing.T) {
	store := &failingStore{Store: tokenstore.NewInMemoryStore()}
	ctx, cancel := context.WithCancel(context.Background())
	c := tokenstore.NewCleaner(store, time.Hour)
	c.Start(ctx)
	cancel()
	c.Stop()
	require.Zero(t, store.cleanups.Load())
}
