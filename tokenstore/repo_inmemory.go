package tokenstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jrsteele09/go-auth-gateway/internal/errors"
)

const shardCount = 32

var _ Store = (*InMemoryStore)(nil)

// session values are never mutated once stored, updates swap the whole value.
type session struct {
	record TokenRecord
	claims string
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// InMemoryStore is a sharded in-memory Store. Sessions in different shards never
// contend, and a cleanup sweep holds one shard lock at a time.
type InMemoryStore struct {
	shards [shardCount]*shard
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*session)}
	}
	return s
}

func (s *InMemoryStore) shardFor(sessionID string) *shard {
	return s.shards[xxhash.Sum64String(sessionID)%shardCount]
}

func (s *InMemoryStore) SaveOrUpdateTokens(_ context.Context, sessionID, idToken, accessToken, refreshToken string, expiresAt time.Time) error {
	if err := validateTokens(sessionID, accessToken); err != nil {
		return err
	}

	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var claims string
	if existing, ok := sh.sessions[sessionID]; ok {
		claims = existing.claims
	}
	sh.sessions[sessionID] = &session{
		record: TokenRecord{
			SessionID:    sessionID,
			IDToken:      idToken,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
		},
		claims: claims,
	}
	return nil
}

func (s *InMemoryStore) SwapRefreshedTokens(_ context.Context, sessionID, previousRefreshToken, idToken, accessToken, refreshToken string, expiresAt time.Time) (bool, error) {
	if err := validateTokens(sessionID, accessToken); err != nil {
		return false, err
	}

	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, ok := sh.sessions[sessionID]
	if !ok || existing.record.RefreshToken != previousRefreshToken {
		return false, nil
	}
	sh.sessions[sessionID] = &session{
		record: TokenRecord{
			SessionID:    sessionID,
			IDToken:      idToken,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
		},
		claims: existing.claims,
	}
	return true, nil
}

func (s *InMemoryStore) SaveOrUpdateUserinfoClaims(_ context.Context, sessionID, claims string) error {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, ok := sh.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, sessionID)
	}
	sh.sessions[sessionID] = &session{record: existing.record, claims: claims}
	return nil
}

func (s *InMemoryStore) GetTokenRecord(_ context.Context, sessionID string) (*TokenRecord, error) {
	sh := s.shardFor(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	existing, ok := sh.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	// Return a copy to prevent external modifications
	record := existing.record
	return &record, nil
}

func (s *InMemoryStore) GetUserinfoClaims(_ context.Context, sessionID string) (string, error) {
	sh := s.shardFor(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if existing, ok := sh.sessions[sessionID]; ok {
		return existing.claims, nil
	}
	return "", nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) CleanupExpiredTokenRecords(ctx context.Context) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		removed += sh.removeExpired(NowTimeFunc())
	}
	return removed, nil
}

func (sh *shard) removeExpired(now time.Time) int {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	removed := 0
	for id, existing := range sh.sessions {
		if existing.record.ExpiresAt.Before(now) {
			delete(sh.sessions, id)
			removed++
		}
	}
	return removed
}
