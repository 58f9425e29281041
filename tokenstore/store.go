// Package tokenstore persists per-session token records and userinfo claims.
package tokenstore

import (
	"context"
	"fmt"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Store is the session keyed token persistence used by the authentication strategies.
// Implementations must make every per-session update atomic: a concurrent reader sees
// either the complete previous record or the complete new one.
type Store interface {
	// SaveOrUpdateTokens replaces the token record of the session. Userinfo claims are kept.
	SaveOrUpdateTokens(ctx context.Context, sessionID, idToken, accessToken, refreshToken string, expiresAt time.Time) error

	// SwapRefreshedTokens replaces the token record only if the session still exists
	// and still holds previousRefreshToken. It reports whether the record was written,
	// so a refresh never brings back a deleted session or overwrites a newer one.
	SwapRefreshedTokens(ctx context.Context, sessionID, previousRefreshToken, idToken, accessToken, refreshToken string, expiresAt time.Time) (bool, error)

	// SaveOrUpdateUserinfoClaims replaces the claims of the session. It fails with
	// ErrSessionNotFound when the session has no token record.
	SaveOrUpdateUserinfoClaims(ctx context.Context, sessionID, claims string) error

	// GetTokenRecord returns the record of the session, or nil when there is none.
	GetTokenRecord(ctx context.Context, sessionID string) (*TokenRecord, error)

	// GetUserinfoClaims returns the claims of the session, or "" when there are none.
	GetUserinfoClaims(ctx context.Context, sessionID string) (string, error)

	// DeleteSession removes the record and the claims of the session.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredTokenRecords removes every record whose access token expired
	// strictly before now, together with its claims, and returns how many were removed.
	CleanupExpiredTokenRecords(ctx context.Context) (int, error)
}

func validateTokens(sessionID, accessToken string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	if accessToken == "" {
		return fmt.Errorf("accessToken is required")
	}
	return nil
}
