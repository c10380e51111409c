package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clone(ErrInvalidState, "dispute is not pending")
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, "dispute is not pending", err.Message)
	assert.Equal(t, "operation not allowed in current state", ErrInvalidState.Message)
}

func TestWrappedCloneStillMatches(t *testing.T) {
	err := fmt.Errorf("cast vote: %w", Clone(ErrForbidden, "claimant cannot vote"))
	assert.True(t, errors.Is(err, ErrForbidden))
	appErr := FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(Clone(ErrInvalidState, "dispute is still pending")))
	assert.False(t, Retryable(fmt.Errorf("load: %w", ErrNotFound)))
	assert.True(t, Retryable(ErrUnavailable))
	assert.True(t, Retryable(errors.New("connection refused")))
}
