package oauthmodel

// Grant types sent to identity provider token endpoints.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	//nolint:gosec // URN identifier, not a credential
	GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// Form parameter names used by the exchanges the gateway performs.
const (
	ParamGrantType         = "grant_type"
	ParamAssertion         = "assertion"
	ParamRequestedTokenUse = "requested_token_use"
	ParamScope             = "scope"
	ParamAudience          = "audience"
	ParamClientID          = "client_id"
	ParamClientSecret      = "client_secret"
	ParamIDToken           = "id_token"
	ParamNonce             = "nonce"
	ParamCodeVerifier      = "code_verifier"
)

// RequestedTokenUseOnBehalfOf is the requested_token_use value of the on-behalf-of flow.
const RequestedTokenUseOnBehalfOf = "on_behalf_of"
