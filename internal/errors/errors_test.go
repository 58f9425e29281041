package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestExchangeError(t *testing.T) {
	t.Run("matches credential exchange sentinel", func(t *testing.T) {
		err := fmt.Errorf("refresh: %w", &errors.ExchangeError{Op: "refresh_token", StatusCode: 400, OAuthCode: "invalid_grant", ProviderRejected: true})
		require.True(t, errors.Is(err, errors.ErrCredentialExchangeFailed))
		require.False(t, errors.Is(err, errors.ErrUnauthenticated))

		var exErr *errors.ExchangeError
		require.True(t, errors.As(err, &exErr))
		require.True(t, exErr.ProviderRejected)
		require.Contains(t, err.Error(), "invalid_grant")
	})

	t.Run("unwraps transport cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := &errors.ExchangeError{Op: "client_credentials", Err: cause}
		require.ErrorIs(t, err, cause)
		require.Contains(t, err.Error(), "connection refused")
	})
}

func TestWrapf(t *testing.T) {
	require.NoError(t, errors.Wrapf(nil, "ignored %s", "x"))

	err := errors.Wrapf(errors.ErrSessionNotFound, "session %s", "abc")
	require.EqualError(t, err, "session abc: session not found")
	require.True(t, errors.Is(err, errors.ErrSessionNotFound))
}
