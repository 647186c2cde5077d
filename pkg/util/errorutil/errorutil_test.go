package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatchingSurvivesCopies(t *testing.T) {
	err := ErrNotOwner.WithMessage("ticket belongs to u1").WithDetails(map[string]any{"ticket_id": "t1"})
	assert.True(t, errors.Is(err, ErrNotOwner))
	assert.False(t, errors.Is(err, ErrForbidden))

	wrapped := fmt.Errorf("delete: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotOwner)
	assert.Equal(t, http.StatusForbidden, HTTPStatus(wrapped))
}

func TestToDomainErrorFallsBackToInternal(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	require.NotNil(t, de)
	assert.Equal(t, "INTERNAL_ERROR", de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Nil(t, ToDomainError(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ErrTokenGenerationFailed.Wrap(cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTokenGenerationFailed)
	assert.Contains(t, err.Error(), "refused")
}

func TestMissingFieldDetails(t *testing.T) {
	de := ToDomainError(NewMissingField("name", "email"))
	assert.Equal(t, "MISSING_FIELD", de.Code)
	assert.Equal(t, []string{"name", "email"}, de.Details["fields"])
}
