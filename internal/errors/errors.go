package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Provider metadata errors
	ErrDiscoveryUnavailable = errors.New("discovery document unavailable")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthenticated = errors.New("unauthenticated")

	// Token endpoint errors
	ErrCredentialExchangeFailed = errors.New("credential exchange failed")

	// Configuration errors
	ErrUnknownStrategy     = errors.New("unknown authentication strategy")
	ErrInvalidRouteConfig  = errors.New("invalid route configuration")
	ErrMissingStrategyOpts = errors.New("missing authentication strategy option")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// ExchangeError describes a failed call to an identity provider's token endpoint.
// It matches ErrCredentialExchangeFailed with errors.Is.
type ExchangeError struct {
	// Op names the grant that failed, e.g. "refresh_token" or "client_credentials".
	Op string
	// StatusCode is the HTTP status returned by the provider, 0 for transport failures.
	StatusCode int
	// OAuthCode is the RFC 6749 "error" field when the provider sent one.
	OAuthCode string
	// ProviderRejected is true when the provider refused the grant (4xx),
	// false when the failure is on the transport or the provider side (5xx).
	ProviderRejected bool
	Err              error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.OAuthCode != "":
		return fmt.Sprintf("%s exchange failed: %s (status %d)", e.Op, e.OAuthCode, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s exchange failed: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s exchange failed: %v", e.Op, e.Err)
	}
	return e.Op + " exchange failed"
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

func (e *ExchangeError) Is(target error) bool {
	return target == ErrCredentialExchangeFailed
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
