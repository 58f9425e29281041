package routing

import (
	"fmt"
	"net/http/httputil"
	"net/url"
)

// Transform adjusts an outbound request after its destination has been set.
type Transform func(pr *httputil.ProxyRequest)

// ForwardedHeadersTransform makes backends see the gateway's public origin
// in X-Forwarded-Host and X-Forwarded-Proto instead of details of the original
// client. Client supplied forwarding headers are never passed on. With an empty
// publicOrigin the inbound request's host and scheme are used.
func ForwardedHeadersTransform(publicOrigin string) (Transform, error) {
	if publicOrigin == "" {
		return func(pr *httputil.ProxyRequest) {
			pr.SetXForwarded()
			pr.Out.Header.Del("X-Forwarded-For")
		}, nil
	}

	origin, err := url.Parse(publicOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid public origin %q", publicOrigin)
	}

	return func(pr *httputil.ProxyRequest) {
		pr.Out.Header.Del("Forwarded")
		pr.Out.Header.Del("X-Forwarded-For")
		pr.Out.Header.Set("X-Forwarded-Host", origin.Host)
		pr.Out.Header.Set("X-Forwarded-Proto", origin.Scheme)
	}, nil
}
