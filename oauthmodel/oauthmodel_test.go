package oauthmodel_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/oauthmodel"
	"github.com/stretchr/testify/require"
)

func TestParseErrorResponse(t *testing.T) {
	resp := oauthmodel.ParseErrorResponse([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	require.NotNil(t, resp)
	require.Equal(t, oauthmodel.ErrorInvalidGrant, resp.Error)
	require.Equal(t, "invalid_grant: refresh token revoked", resp.String())

	require.Nil(t, oauthmodel.ParseErrorResponse([]byte(`<html>bad gateway</html>`)))
	require.Nil(t, oauthmodel.ParseErrorResponse([]byte(`{"access_token":"x"}`)))
}

func TestTokenResponse(t *testing.T) {
	var resp oauthmodel.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"abc","token_type":"Bearer","expires_in":3600}`), &resp))

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "abc", resp.Token())
	require.Equal(t, now.Add(time.Hour), resp.ExpiresAt(now))

	require.True(t, oauthmodel.TokenResponse{}.ExpiresAt(now).IsZero())
	require.Empty(t, oauthmodel.TokenResponse{}.Token())
}
