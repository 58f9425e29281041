package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-gateway/routeauth"
	"golang.org/x/oauth2"
)

const defaultAuthorizationCodeScopes = "openid profile email offline_access"

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateCodeChallenge creates a PKCE code challenge from a verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter) {
	s.SetSessionCookie(w, "", -1)
}

// getOidcConfig builds the OIDC client of the session provider on first use.
func (s *Server) getOidcConfig(ctx context.Context, r *http.Request) (OidcConfig, error) {
	s.oidcLock.RLock()
	cached := s.oidcConfig
	s.oidcLock.RUnlock()
	if cached != nil {
		return s.withRedirectURL(*cached, r), nil
	}

	authn := s.settings.Authentication
	if authn == nil {
		return OidcConfig{}, fmt.Errorf("no authentication provider configured")
	}

	provider, err := s.resolver.Provider(ctx, authn.Authority)
	if err != nil {
		return OidcConfig{}, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := strings.Fields(authn.AuthorizationCodeScopes)
	if len(scopes) == 0 {
		scopes = strings.Fields(defaultAuthorizationCodeScopes)
	}

	oidcConfig := &OidcConfig{
		OidcProvider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     authn.ClientID,
			ClientSecret: authn.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  s.publicOrigin() + RouteAuthCallback,
			Scopes:       scopes,
		},
		OidcVerifier: provider.Verifier(&oidc.Config{
			ClientID: authn.ClientID,
		}),
	}
	s.oidcLock.Lock()
	s.oidcConfig = oidcConfig
	s.oidcLock.Unlock()

	return s.withRedirectURL(*oidcConfig, r), nil
}

// withRedirectURL points the callback at the request's own host when no public
// origin is configured. The per-request value is never cached.
func (s *Server) withRedirectURL(oidcConfig OidcConfig, r *http.Request) OidcConfig {
	if s.publicOrigin() != "" {
		return oidcConfig
	}
	oauth2Config := *oidcConfig.OAuth2Config
	oauth2Config.RedirectURL = getScheme(r) + "://" + r.Host + RouteAuthCallback
	oidcConfig.OAuth2Config = &oauth2Config
	return oidcConfig
}

// safeReturnURL only accepts local paths so the login flow can't be used as an open redirect.
func safeReturnURL(returnURL string) string {
	if returnURL == "" || !strings.HasPrefix(returnURL, "/") || strings.HasPrefix(returnURL, "//") || strings.HasPrefix(returnURL, "/\\") {
		return "/"
	}
	if u, err := url.Parse(returnURL); err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return returnURL
}

// writeJSONError writes an OAuth2 style error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func sessionID(r *http.Request) string {
	return routeauth.SessionIDFromContext(r.Context())
}
