// Package testidp is a minimal OpenID provider for tests: discovery, token,
// userinfo and JWKS endpoints backed by httptest.
package testidp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	keyID          = "test-key"
	ClientID       = "gateway-client"
	ClientSecret   = "gateway-secret"
	PathDiscovery  = "/.well-known/openid-configuration"
	PathToken      = "/oauth2/token"
	PathUserinfo   = "/userinfo"
	PathJWKS       = "/keys"
	PathAuthorize  = "/authorize"
	defaultExpires = 3600
)

// TokenRequest is a recorded call to the token endpoint.
type TokenRequest struct {
	ContentType string
	Form        url.Values
	Body        []byte
	BasicUser   string
	BasicPass   string
}

// TokenHandler produces the status and JSON body for a token request.
type TokenHandler func(req TokenRequest) (int, any)

// Server is a fake identity provider.
type Server struct {
	*httptest.Server

	key *rsa.PrivateKey

	discoveryCalls atomic.Int32
	tokenCalls     atomic.Int32

	mu            sync.Mutex
	tokenHandler  TokenHandler
	tokenRequests []TokenRequest
	discoveryGate chan struct{}
	omitUserinfo  bool
	userinfo      map[string]any
}

// New starts a provider that is shut down when the test ends.
func New(t *testing.T) *Server {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	s := &Server{
		key:      key,
		userinfo: map[string]any{"sub": "user-1", "email": "john.doe@example.com"},
	}
	s.tokenHandler = s.defaultTokenHandler

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathDiscovery, s.discovery)
	mux.HandleFunc("POST "+PathToken, s.token)
	mux.HandleFunc("GET "+PathUserinfo, s.userinfoHandler)
	mux.HandleFunc("GET "+PathJWKS, s.jwks)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Issuer() string        { return s.URL }
func (s *Server) TokenEndpoint() string { return s.URL + PathToken }
func (s *Server) DiscoveryCalls() int   { return int(s.discoveryCalls.Load()) }
func (s *Server) TokenCalls() int       { return int(s.tokenCalls.Load()) }

// SetTokenHandler replaces the token endpoint behaviour.
func (s *Server) SetTokenHandler(h TokenHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenHandler = h
}

// TokenRequests returns the token requests received so far.
func (s *Server) TokenRequests() []TokenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TokenRequest(nil), s.tokenRequests...)
}

// BlockDiscovery makes discovery requests wait until the returned func is called.
func (s *Server) BlockDiscovery() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.discoveryGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// OmitUserinfoEndpoint removes userinfo_endpoint from the discovery document.
func (s *Server) OmitUserinfoEndpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitUserinfo = true
}

// SetUserinfo sets the claims served by the userinfo endpoint.
func (s *Server) SetUserinfo(claims map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userinfo = claims
}

// SignIDToken signs claims with the provider key, defaulting iss, aud, iat and exp.
func (s *Server) SignIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	full := jwt.MapClaims{
		"iss": s.Issuer(),
		"aud": ClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		full[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, full)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(s.key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

// TokenResponse builds a standard token response body.
func TokenResponse(accessToken string, expiresIn int) map[string]any {
	return map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	}
}

func (s *Server) defaultTokenHandler(TokenRequest) (int, any) {
	return http.StatusOK, TokenResponse("access-"+time.Now().Format(time.RFC3339Nano), defaultExpires)
}

func (s *Server) discovery(w http.ResponseWriter, _ *http.Request) {
	s.discoveryCalls.Add(1)

	s.mu.Lock()
	gate := s.discoveryGate
	omitUserinfo := s.omitUserinfo
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	doc := map[string]any{
		"issuer":                                s.Issuer(),
		"authorization_endpoint":                s.URL + PathAuthorize,
		"token_endpoint":                        s.TokenEndpoint(),
		"jwks_uri":                              s.URL + PathJWKS,
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	if !omitUserinfo {
		doc["userinfo_endpoint"] = s.URL + PathUserinfo
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	s.tokenCalls.Add(1)

	body, _ := io.ReadAll(r.Body)
	req := TokenRequest{ContentType: r.Header.Get("Content-Type"), Body: body}
	if strings.HasPrefix(req.ContentType, "application/x-www-form-urlencoded") {
		req.Form, _ = url.ParseQuery(string(body))
	}
	req.BasicUser, req.BasicPass, _ = r.BasicAuth()

	s.mu.Lock()
	s.tokenRequests = append(s.tokenRequests, req)
	handler := s.tokenHandler
	s.mu.Unlock()

	status, resp := handler(req)
	writeJSON(w, status, resp)
}

func (s *Server) userinfoHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	s.mu.Lock()
	claims := s.userinfo
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, claims)
}

func (s *Server) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := s.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
