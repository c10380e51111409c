package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chore-dispute-api/internal/service"
)

func TestAuthHandlerDevTokenRoundTrip(t *testing.T) {
	auth := service.NewAuthService(service.AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour})
	handler := NewAuthHandler(auth)

	c, w := newDisputeContext(http.MethodPost, "/auth/dev-token", `{"email":"alice@home.test"}`, "")
	handler.DevToken(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tokenType":"Bearer"`)
}

func TestAuthHandlerDevTokenRequiresEmail(t *testing.T) {
	handler := NewAuthHandler(service.NewAuthService(service.AuthConfig{AccessTokenSecret: "secret"}))

	c, w := newDisputeContext(http.MethodPost, "/auth/dev-token", `{"email":"not-an-email"}`, "")
	handler.DevToken(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
