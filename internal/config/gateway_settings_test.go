package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

const sampleSettings = `
resourceProxy: https://gateway.example.com
authentication:
  authority: https://login.example.com/tenant
  clientId: gateway
  clientSecret: ${TEST_GATEWAY_SECRET}
  authorizationCodeScopes: openid profile offline_access
routing:
  routes:
    orders:
      pathMatch: /api/orders/{**rest}
      baseUrl: http://orders.internal:8080
      authenticationStrategy: TokenPassThrough
    reports:
      pathMatch: /api/reports/{**rest}
      baseUrl: http://reports.internal:8080
      authenticationStrategy: ClientCredentials
      options:
        clientId: reports-client
        scope: reports.read
    sameorigin:
      authenticationStrategy: EnsureAuthenticated
`

func TestParseSettings(t *testing.T) {
	t.Setenv("TEST_GATEWAY_SECRET", "s3cret")

	settings, err := config.ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	require.Equal(t, "https://gateway.example.com", settings.ResourceProxy)
	require.NotNil(t, settings.Authentication)
	require.Equal(t, "s3cret", settings.Authentication.ClientSecret)
	require.Equal(t, []string{"orders", "reports", "sameorigin"}, settings.Routing.RouteKeys())

	reports := settings.Routing.Routes["reports"]
	require.Equal(t, "ClientCredentials", reports.AuthenticationStrategy)
	require.Equal(t, "reports.read", reports.Options["scope"])
	require.Empty(t, settings.Routing.Routes["sameorigin"].PathMatch)
}

func TestParseSettings_Invalid(t *testing.T) {
	t.Run("authority must be a url", func(t *testing.T) {
		_, err := config.ParseSettings([]byte("authentication:\n  authority: not a url\n  clientId: x\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid gateway settings")
	})

	t.Run("client id required", func(t *testing.T) {
		_, err := config.ParseSettings([]byte("authentication:\n  authority: https://idp.example.com\n"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.ParseSettings([]byte("routing: ["))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to parse")
	})
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  routes:\n    public:\n      pathMatch: /pub\n      baseUrl: http://pub\n"), 0o600))

	settings, err := config.LoadSettings(path)
	require.NoError(t, err)
	require.Nil(t, settings.Authentication)
	require.Equal(t, "http://pub", settings.Routing.Routes["public"].BaseURL)

	_, err = config.LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvVars(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("TOKEN_CLEANUP_INTERVAL", "90s")

	c := config.New()
	require.Equal(t, ":9090", c.GetPort())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.Equal(t, "1m30s", c.GetTokenCleanupInterval().String())
	require.Equal(t, "gateway_session", c.GetSessionCookieName())
}
