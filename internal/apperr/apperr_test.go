package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	wrapped := ErrInvalidToken.WithErr(errors.New("no rows"))
	require.ErrorIs(t, wrapped, ErrInvalidToken)
	require.NotErrorIs(t, wrapped, ErrExpiredToken)

	outer := fmt.Errorf("consume: %w", wrapped)
	require.ErrorIs(t, outer, ErrInvalidToken)
}

func TestWithFieldKeepsSentinel(t *testing.T) {
	err := ErrValidation.WithField("email", "email is required")
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "email", err.Field)
	require.Equal(t, "email is required", err.Message)
	require.Equal(t, "invalid request", ErrValidation.Message)
}

func TestFromUnknownBecomesInternal(t *testing.T) {
	cause := errors.New("pg: connection refused")
	err := From(cause)
	require.ErrorIs(t, err, ErrInternal)
	require.Equal(t, http.StatusInternalServerError, err.Status)
	require.ErrorIs(t, err, cause)
	require.NotContains(t, err.Message, "connection refused")
}

func TestFromNil(t *testing.T) {
	require.Nil(t, From(nil))
}
