package tokenstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

const (
	fieldSessionID    = "session_id"
	fieldIDToken      = "id_token"
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiresAt    = "expires_at"

	cleanupBatchSize = 500
)

var _ Store = (*RedisStore)(nil)

// RedisOptions holds Redis connection configuration for the token store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key written by the store, e.g. "gateway:".
	KeyPrefix string
}

// RedisStore is a Store backed by Redis, for gateways running more than one replica.
//
// Layout: the record is a hash at <prefix>session:<digest>, the claims a string at
// <prefix>claims:<digest> and <prefix>expiry is a sorted set of digests scored by
// expiry in unix milliseconds. Session ids are only stored inside the record hash;
// keys use their BLAKE2b digest.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, opts.KeyPrefix), nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func sessionDigest(sessionID string) string {
	sum := blake2b.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])
}

func (s *RedisStore) recordKey(digest string) string { return s.keyPrefix + "session:" + digest }
func (s *RedisStore) claimsKey(digest string) string { return s.keyPrefix + "claims:" + digest }
func (s *RedisStore) expiryKey() string              { return s.keyPrefix + "expiry" }

func (s *RedisStore) SaveOrUpdateTokens(ctx context.Context, sessionID, idToken, accessToken, refreshToken string, expiresAt time.Time) error {
	if err := validateTokens(sessionID, accessToken); err != nil {
		return err
	}

	digest := sessionDigest(sessionID)
	expiresAtMs := expiresAt.UnixMilli()

	// MULTI/EXEC keeps the hash and the expiry index in step; HSET writes every field
	// so the previous record is fully replaced.
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recordKey(digest), map[string]interface{}{
			fieldSessionID:    sessionID,
			fieldIDToken:      idToken,
			fieldAccessToken:  accessToken,
			fieldRefreshToken: refreshToken,
			fieldExpiresAt:    expiresAtMs,
		})
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(expiresAtMs), Member: digest})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

// swapTokensScript rewrites the record only when it exists and its refresh token
// is still ARGV[1]. Returns 1 if the record was written.
var swapTokensScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'refresh_token') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'session_id', ARGV[2], 'id_token', ARGV[3], 'access_token', ARGV[4], 'refresh_token', ARGV[5], 'expires_at', ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[7])
return 1
`)

func (s *RedisStore) SwapRefreshedTokens(ctx context.Context, sessionID, previousRefreshToken, idToken, accessToken, refreshToken string, expiresAt time.Time) (bool, error) {
	if err := validateTokens(sessionID, accessToken); err != nil {
		return false, err
	}

	digest := sessionDigest(sessionID)
	keys := []string{s.recordKey(digest), s.expiryKey()}
	result, err := swapTokensScript.Run(ctx, s.client, keys,
		previousRefreshToken, sessionID, idToken, accessToken, refreshToken, expiresAt.UnixMilli(), digest).Int()
	if err != nil {
		return false, fmt.Errorf("failed to swap tokens: %w", err)
	}
	return result == 1, nil
}

// saveClaimsScript writes the claims only when the session has a record.
// Returns 1 on success, 0 if the record doesn't exist.
var saveClaimsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[1])
return 1
`)

func (s *RedisStore) SaveOrUpdateUserinfoClaims(ctx context.Context, sessionID, claims string) error {
	digest := sessionDigest(sessionID)

	result, err := saveClaimsScript.Run(ctx, s.client, []string{s.recordKey(digest), s.claimsKey(digest)}, claims).Int()
	if err != nil {
		return fmt.Errorf("failed to save userinfo claims: %w", err)
	}
	if result == 0 {
		return fmt.Errorf("%w: %s", gwerrors.ErrSessionNotFound, sessionID)
	}
	return nil
}

func (s *RedisStore) GetTokenRecord(ctx context.Context, sessionID string) (*TokenRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(sessionDigest(sessionID))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}
	if len(fields) == 0 || fields[fieldAccessToken] == "" {
		return nil, nil
	}

	expiresAtMs, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token record expiry: %w", err)
	}

	return &TokenRecord{
		SessionID:    sessionID,
		IDToken:      fields[fieldIDToken],
		AccessToken:  fields[fieldAccessToken],
		RefreshToken: fields[fieldRefreshToken],
		ExpiresAt:    time.UnixMilli(expiresAtMs),
	}, nil
}

func (s *RedisStore) GetUserinfoClaims(ctx context.Context, sessionID string) (string, error) {
	claims, err := s.client.Get(ctx, s.claimsKey(sessionDigest(sessionID))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get userinfo claims: %w", err)
	}
	return claims, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	digest := sessionDigest(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(digest), s.claimsKey(digest))
		pipe.ZRem(ctx, s.expiryKey(), digest)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// deleteIfExpiredScript removes one session if its stored expiry is still before
// ARGV[1]. The check runs inside the script so a concurrent refresh that moved the
// expiry forward wins; its index entry is moved to the stored expiry. Returns 1 if
// the session was removed.
var deleteIfExpiredScript = redis.NewScript(`
local expiresAt = redis.call('HGET', KEYS[1], 'expires_at')
if expiresAt and tonumber(expiresAt) >= tonumber(ARGV[1]) then
	redis.call('ZADD', KEYS[3], expiresAt, ARGV[2])
	return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[2])
if expiresAt then
	return 1
end
return 0
`)

func (s *RedisStore) CleanupExpiredTokenRecords(ctx context.Context) (int, error) {
	nowMs := NowTimeFunc().UnixMilli()
	removed := 0

	for {
		digests, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   "(" + strconv.FormatInt(nowMs, 10),
			Count: cleanupBatchSize,
		}).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan expired sessions: %w", err)
		}

		batchRemoved := 0
		for _, digest := range digests {
			keys := []string{s.recordKey(digest), s.claimsKey(digest), s.expiryKey()}
			n, err := deleteIfExpiredScript.Run(ctx, s.client, keys, nowMs, digest).Int()
			if err != nil {
				return removed, fmt.Errorf("failed to remove expired session: %w", err)
			}
			batchRemoved += n
		}
		removed += batchRemoved

		// Every digest in the batch has left the expired range, removed or re-indexed.
		if len(digests) < cleanupBatchSize {
			break
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Removed expired token records from redis")
	}
	return removed, nil
}
