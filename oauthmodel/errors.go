package oauthmodel

import (
	"encoding/json"
	"fmt"
)

// Standard RFC 6749 error codes the gateway reacts to.
const (
	ErrorInvalidGrant  = "invalid_grant"
	ErrorInvalidClient = "invalid_client"
)

// ErrorResponse is an OAuth 2.0 error response as defined in RFC 6749 Section 5.2.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

func (e *ErrorResponse) String() string {
	if e.ErrorDescription != "" {
		return fmt.Sprintf("%s: %s", e.Error, e.ErrorDescription)
	}
	return e.Error
}

// ParseErrorResponse returns the OAuth error carried by body, or nil if body is not one.
func ParseErrorResponse(body []byte) *ErrorResponse {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == "" {
		return nil
	}
	return &resp
}
