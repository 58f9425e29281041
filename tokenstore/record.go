package tokenstore

import "time"

// TokenRecord is the token state of one session.
type TokenRecord struct {
	SessionID    string
	IDToken      string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the expiry of the access token, not of the refresh token.
	ExpiresAt time.Time
}

// IsExpired reports whether the access token expired at or before now.
func (r TokenRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// CanRefresh reports whether the record carries a refresh token.
func (r TokenRecord) CanRefresh() bool {
	return r.RefreshToken != ""
}
