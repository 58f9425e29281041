package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-gateway/oauthmodel"
	"github.com/jrsteele09/go-auth-gateway/routeauth"
	"github.com/jrsteele09/go-auth-gateway/server/authflowrepo"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// LoginHandler starts the authorization code flow with PKCE against the
// session provider and remembers where to return afterwards.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		oidcConfig, err := s.getOidcConfig(r.Context(), r)
		if err != nil {
			log.Err(err).Msg("Login unavailable")
			writeJSONError(w, "temporarily_unavailable", "identity provider unavailable", http.StatusBadGateway)
			return
		}

		now := time.Now()
		s.authState.DeleteExpired(now.Add(-s.config.GetAuthFlowTimeout()))

		state := generateRandomString(32)
		authState := &authflowrepo.AuthFlowState{
			CodeVerifier: generateRandomString(32),
			Nonce:        generateRandomString(16),
			ReturnURL:    safeReturnURL(r.URL.Query().Get(redirectURIParam)),
			CreatedAt:    now,
		}
		if err := s.authState.Upsert(state, authState); err != nil {
			log.Err(err).Msg("Failed to store auth flow state")
			writeJSONError(w, "server_error", "failed to start login", http.StatusInternalServerError)
			return
		}

		authURL := oidcConfig.OAuth2Config.AuthCodeURL(state,
			oauth2.SetAuthURLParam(oauthmodel.ParamNonce, authState.Nonce),
			oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(authState.CodeVerifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		// Check for authorization errors
		if errorParam != "" {
			writeJSONError(w, errorParam, fmt.Sprintf("Authorization failed: %s", errorDesc), http.StatusBadRequest)
			return
		}

		if code == "" || state == "" {
			writeJSONError(w, "invalid_request", "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		// Clean up state on use
		authState, err := s.authState.Take(state)
		if err != nil || authState == nil {
			writeJSONError(w, "invalid_request", "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if time.Since(authState.CreatedAt) > s.config.GetAuthFlowTimeout() {
			writeJSONError(w, "invalid_request", "Login expired", http.StatusBadRequest)
			return
		}

		oidcConfig, err := s.getOidcConfig(r.Context(), r)
		if err != nil {
			log.Err(err).Msg("Callback without identity provider")
			writeJSONError(w, "temporarily_unavailable", "identity provider unavailable", http.StatusBadGateway)
			return
		}

		// Exchange authorization code for tokens using standard oauth2 library
		oauth2Token, err := oidcConfig.OAuth2Config.Exchange(
			r.Context(),
			code,
			oauth2.SetAuthURLParam(oauthmodel.ParamCodeVerifier, authState.CodeVerifier),
		)
		if err != nil {
			log.Err(err).Msg("Authorization code exchange failed")
			writeJSONError(w, "invalid_grant", "Token exchange failed", http.StatusUnauthorized)
			return
		}

		// Extract ID token and verify it
		rawIDToken, ok := oauth2Token.Extra(oauthmodel.ParamIDToken).(string)
		if !ok {
			writeJSONError(w, "invalid_grant", "No ID token in response", http.StatusUnauthorized)
			return
		}

		idToken, err := oidcConfig.OidcVerifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			log.Err(err).Msg("ID token verification failed")
			writeJSONError(w, "invalid_grant", "ID token verification failed", http.StatusUnauthorized)
			return
		}

		var claims struct {
			Nonce string `json:"nonce"`
			Sub   string `json:"sub"`
		}
		if err := idToken.Claims(&claims); err != nil {
			writeJSONError(w, "invalid_grant", "Failed to extract claims", http.StatusUnauthorized)
			return
		}

		// Validate nonce to prevent replay attacks
		if claims.Nonce != authState.Nonce {
			writeJSONError(w, "invalid_grant", "Invalid nonce", http.StatusUnauthorized)
			return
		}

		expiresAt := routeauth.AccessTokenExpiry(oauth2Token.AccessToken, oauth2Token.Expiry, routeauth.NowTimeFunc())

		sessionID := uuid.NewString()
		if err := s.store.SaveOrUpdateTokens(r.Context(), sessionID, rawIDToken, oauth2Token.AccessToken, oauth2Token.RefreshToken, expiresAt); err != nil {
			log.Err(err).Msg("Failed to store session tokens")
			writeJSONError(w, "server_error", "Failed to create session", http.StatusInternalServerError)
			return
		}

		// The session works without claims, so a userinfo failure only logs.
		userInfo, err := oidcConfig.OidcProvider.UserInfo(r.Context(), oauth2.StaticTokenSource(oauth2Token))
		if err == nil {
			var raw json.RawMessage
			if err = userInfo.Claims(&raw); err == nil {
				err = s.store.SaveOrUpdateUserinfoClaims(r.Context(), sessionID, string(raw))
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("sub", claims.Sub).Msg("Failed to store userinfo claims")
		}

		s.SetSessionCookie(w, sessionID, int(s.config.GetMaxSessionAge().Seconds()))
		log.Info().Str("sub", claims.Sub).Msg("Session created")

		http.Redirect(w, r, authState.ReturnURL, http.StatusSeeOther)
	}
}
