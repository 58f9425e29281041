package routeauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/oauthmodel"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// maxResponseBodySize bounds token endpoint responses (1 MB).
	maxResponseBodySize = 1 << 20

	// defaultTokenLifetime is assumed when neither expires_in nor a JWT exp is present.
	defaultTokenLifetime = 5 * time.Minute
)

// issuedToken is an access token, the time it expires and the time a cached
// copy should be renewed.
type issuedToken struct {
	accessToken string
	expiresAt   time.Time
	renewAt     time.Time
}

// withSkew sets the renewal time skew before expiry. The skew is capped at half
// the remaining lifetime so short lived tokens are still reused.
func (t issuedToken) withSkew(now time.Time, skew time.Duration) issuedToken {
	if half := t.expiresAt.Sub(now) / 2; skew > half {
		skew = half
	}
	if skew < 0 {
		skew = 0
	}
	t.renewAt = t.expiresAt.Add(-skew)
	return t
}

func (t issuedToken) validAt(now time.Time) bool {
	return t.accessToken != "" && now.Before(t.renewAt)
}

// postToken sends req to a token endpoint and decodes the token response.
// Every failure is an *errors.ExchangeError.
func postToken(client *http.Client, op string, req *http.Request) (*oauthmodel.TokenResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &errors.ExchangeError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &errors.ExchangeError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		exErr := &errors.ExchangeError{
			Op:               op,
			StatusCode:       resp.StatusCode,
			ProviderRejected: providerRejected(resp.StatusCode),
		}
		if oauthErr := oauthmodel.ParseErrorResponse(body); oauthErr != nil {
			exErr.OAuthCode = oauthErr.Error
			exErr.Err = errors.New(oauthErr.String())
		}
		log.Debug().Str("op", op).Int("status", resp.StatusCode).Str("oauth_error", exErr.OAuthCode).Msg("Token endpoint refused request")
		return nil, exErr
	}

	var tokenResp oauthmodel.TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &errors.ExchangeError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	if tokenResp.Token() == "" {
		return nil, &errors.ExchangeError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("token endpoint returned empty access_token")}
	}
	return &tokenResp, nil
}

// classifyExchangeError converts errors from golang.org/x/oauth2 into *errors.ExchangeError.
func classifyExchangeError(op string, err error) error {
	var exErr *errors.ExchangeError
	if errors.As(err, &exErr) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &errors.ExchangeError{
			Op:               op,
			StatusCode:       status,
			OAuthCode:        retrieveErr.ErrorCode,
			ProviderRejected: providerRejected(status),
			Err:              err,
		}
	}
	return &errors.ExchangeError{Op: op, Err: err}
}

func providerRejected(status int) bool {
	return status >= 400 && status < 500
}

// withHTTPClient makes golang.org/x/oauth2 use client for its token requests.
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// AccessTokenExpiry picks the expiry of an issued access token: the expires_in based
// time when present, else the JWT exp claim, else a short default lifetime.
func AccessTokenExpiry(accessToken string, expiresAt time.Time, now time.Time) time.Time {
	if !expiresAt.IsZero() {
		return expiresAt
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(defaultTokenLifetime)
}
