package tokenstore_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/tokenstore"
	"github.com/stretchr/testify/require"
)

// fixedNow has millisecond precision so every store round-trips it exactly.
var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func freezeTime(t *testing.T, now time.Time) {
	t.Helper()
	previous := tokenstore.NowTimeFunc
	tokenstore.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { tokenstore.NowTimeFunc = previous })
}

// runStoreSuite exercises the behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) tokenstore.Store) {
	ctx := context.Background()

	t.Run("absent session is not an error", func(t *testing.T) {
		s := newStore(t)
		record, err := s.GetTokenRecord(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, record)

		claims, err := s.GetUserinfoClaims(ctx, "missing")
		require.NoError(t, err)
		require.Empty(t, claims)
	})

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		expiresAt := fixedNow.Add(time.Hour)
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id-1", "access-1", "refresh-1", expiresAt))

		record, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, &tokenstore.TokenRecord{
			SessionID:    "s1",
			IDToken:      "id-1",
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    expiresAt,
		}, normalise(record))
	})

	t.Run("update replaces the record and keeps claims", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id-1", "access-1", "refresh-1", fixedNow))
		require.NoError(t, s.SaveOrUpdateUserinfoClaims(ctx, "s1", `{"sub":"user-1"}`))
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "", "access-2", "", fixedNow.Add(time.Minute)))

		record, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Empty(t, record.IDToken)
		require.Empty(t, record.RefreshToken)
		require.Equal(t, "access-2", record.AccessToken)

		claims, err := s.GetUserinfoClaims(ctx, "s1")
		require.NoError(t, err)
		require.JSONEq(t, `{"sub":"user-1"}`, claims)
	})

	t.Run("save is idempotent", func(t *testing.T) {
		s := newStore(t)
		expiresAt := fixedNow.Add(time.Hour)
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id", "access", "refresh", expiresAt))
		once, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)

		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id", "access", "refresh", expiresAt))
		twice, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, normalise(once), normalise(twice))
	})

	t.Run("record without access token is rejected", func(t *testing.T) {
		s := newStore(t)
		require.Error(t, s.SaveOrUpdateTokens(ctx, "s1", "id", "", "refresh", fixedNow))
		require.Error(t, s.SaveOrUpdateTokens(ctx, "", "id", "access", "refresh", fixedNow))

		record, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Nil(t, record)
	})

	t.Run("claims need a token record", func(t *testing.T) {
		s := newStore(t)
		err := s.SaveOrUpdateUserinfoClaims(ctx, "nobody", `{}`)
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("swap refreshed tokens", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id-1", "access-1", "refresh-1", fixedNow))
		require.NoError(t, s.SaveOrUpdateUserinfoClaims(ctx, "s1", `{"sub":"user-1"}`))

		swapped, err := s.SwapRefreshedTokens(ctx, "s1", "refresh-1", "id-1", "access-2", "refresh-2", fixedNow.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, swapped)

		record, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, &tokenstore.TokenRecord{
			SessionID:    "s1",
			IDToken:      "id-1",
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresAt:    fixedNow.Add(time.Hour),
		}, normalise(record))

		claims, err := s.GetUserinfoClaims(ctx, "s1")
		require.NoError(t, err)
		require.JSONEq(t, `{"sub":"user-1"}`, claims)

		t.Run("stale refresh token is not written", func(t *testing.T) {
			swapped, err := s.SwapRefreshedTokens(ctx, "s1", "refresh-1", "id-1", "access-3", "refresh-3", fixedNow.Add(2*time.Hour))
			require.NoError(t, err)
			require.False(t, swapped)

			record, err := s.GetTokenRecord(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, "access-2", record.AccessToken)
		})

		t.Run("deleted session is not recreated", func(t *testing.T) {
			require.NoError(t, s.DeleteSession(ctx, "s1"))
			swapped, err := s.SwapRefreshedTokens(ctx, "s1", "refresh-2", "id-1", "access-3", "refresh-3", fixedNow.Add(2*time.Hour))
			require.NoError(t, err)
			require.False(t, swapped)

			record, err := s.GetTokenRecord(ctx, "s1")
			require.NoError(t, err)
			require.Nil(t, record)
		})
	})

	t.Run("swapped record survives cleanup", func(t *testing.T) {
		freezeTime(t, fixedNow)
		s := newStore(t)
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id", "access-1", "refresh-1", fixedNow.Add(-time.Minute)))
		swapped, err := s.SwapRefreshedTokens(ctx, "s1", "refresh-1", "id", "access-2", "refresh-2", fixedNow.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, swapped)

		removed, err := s.CleanupExpiredTokenRecords(ctx)
		require.NoError(t, err)
		require.Zero(t, removed)

		record, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, "access-2", record.AccessToken)
	})

	t.Run("delete session", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id", "access", "refresh", fixedNow))
		require.NoError(t, s.SaveOrUpdateUserinfoClaims(ctx, "s1", `{}`))
		require.NoError(t, s.DeleteSession(ctx, "s1"))
		require.NoError(t, s.DeleteSession(ctx, "s1"))

		record, err := s.GetTokenRecord(ctx, "s1")
		require.NoError(t, err)
		require.Nil(t, record)
		claims, err := s.GetUserinfoClaims(ctx, "s1")
		require.NoError(t, err)
		require.Empty(t, claims)
	})

	t.Run("cleanup removes records expired strictly in the past", func(t *testing.T) {
		freezeTime(t, fixedNow)
		s := newStore(t)

		require.NoError(t, s.SaveOrUpdateTokens(ctx, "expired-1", "", "a", "", fixedNow.Add(-time.Hour)))
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "expired-2", "", "a", "", fixedNow.Add(-time.Millisecond)))
		require.NoError(t, s.SaveOrUpdateUserinfoClaims(ctx, "expired-2", `{"sub":"gone"}`))
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "boundary", "", "a", "", fixedNow))
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "valid", "", "a", "", fixedNow.Add(time.Hour)))

		removed, err := s.CleanupExpiredTokenRecords(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		for _, id := range []string{"expired-1", "expired-2"} {
			record, err := s.GetTokenRecord(ctx, id)
			require.NoError(t, err)
			require.Nil(t, record, id)
		}
		claims, err := s.GetUserinfoClaims(ctx, "expired-2")
		require.NoError(t, err)
		require.Empty(t, claims)

		for _, id := range []string{"boundary", "valid"} {
			record, err := s.GetTokenRecord(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, record, id)
		}

		removed, err = s.CleanupExpiredTokenRecords(ctx)
		require.NoError(t, err)
		require.Zero(t, removed)
	})

	t.Run("refreshed session survives cleanup", func(t *testing.T) {
		freezeTime(t, fixedNow)
		s := newStore(t)

		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "", "old", "r", fixedNow.Add(-time.Minute)))
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "", "new", "r", fixedNow.Add(time.Minute)))

		removed, err := s.CleanupExpiredTokenRecords(ctx)
		require.NoError(t, err)
		require.Zero(t, removed)
	})

	t.Run("concurrent writes never produce torn reads", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveOrUpdateTokens(ctx, "s1", "id-0", "access-0", "refresh-0", fixedNow))

		const writers, iterations = 4, 50
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < iterations; i++ {
					v := fmt.Sprintf("%d-%d", w, i)
					_ = s.SaveOrUpdateTokens(ctx, "s1", "id-"+v, "access-"+v, "refresh-"+v, fixedNow)
				}
			}(w)
		}

		torn := make(chan string, 1)
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for i := 0; i < writers*iterations; i++ {
				record, err := s.GetTokenRecord(ctx, "s1")
				if err != nil || record == nil {
					continue
				}
				v := strings.TrimPrefix(record.AccessToken, "access-")
				if record.IDToken != "id-"+v || record.RefreshToken != "refresh-"+v {
					select {
					case torn <- fmt.Sprintf("%+v", *record):
					default:
					}
				}
			}
		}()

		wg.Wait()
		<-readDone
		select {
		case record := <-torn:
			t.Fatalf("torn read: %s", record)
		default:
		}
	})
}

func normalise(r *tokenstore.TokenRecord) *tokenstore.TokenRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ExpiresAt = out.ExpiresAt.UTC()
	return &out
}
