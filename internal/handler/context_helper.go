package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/chore-dispute-api/internal/middleware"
	"github.com/noah-isme/chore-dispute-api/internal/models"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
	"github.com/noah-isme/chore-dispute-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireEmail returns the caller's email or writes a 401.
func requireEmail(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || strings.TrimSpace(claims.Email) == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.Email, true
}

// sameIdentity reports whether an email sent in a body matches the token.
// An omitted body email always matches.
func sameIdentity(bodyEmail, tokenEmail string) bool {
	bodyEmail = strings.TrimSpace(bodyEmail)
	return bodyEmail == "" || strings.EqualFold(bodyEmail, tokenEmail)
}
