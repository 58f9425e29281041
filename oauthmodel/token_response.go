package oauthmodel

import (
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/utils"
)

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the token forwarded to backends.
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is only present when "openid" scope was requested.
	IdToken *string `json:"id_token,omitempty"`

	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Note: This is a hint - actual expiration may be in the JWT's "exp" claim
	ExpiresIn int `json:"expires_in,omitempty"`

	RefreshToken *string `json:"refresh_token,omitempty"`

	Scope string `json:"scope,omitempty"`
}

// Token returns the access token or "" when the provider did not send one.
func (t TokenResponse) Token() string {
	return utils.Value(t.AccessToken)
}

// ExpiresAt converts expires_in to an absolute time. The zero time is returned
// when the provider did not send a lifetime.
func (t TokenResponse) ExpiresAt(now time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}
