// Package discovery resolves and caches the OIDC provider metadata the gateway
// needs for its token and userinfo calls.
package discovery

// Document holds the subset of an OIDC discovery document used by the gateway.
type Document struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

func (d Document) validate() error {
	if d.TokenEndpoint == "" {
		return errMissingField("token_endpoint")
	}
	if d.UserinfoEndpoint == "" {
		return errMissingField("userinfo_endpoint")
	}
	return nil
}

type errMissingField string

func (e errMissingField) Error() string {
	return "missing " + string(e)
}
