package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
	"github.com/noah-isme/chore-dispute-api/pkg/response"
)

type tokenIssuer interface {
	IssueToken(userID, email, fullName string) (string, time.Time, error)
}

type devTokenRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"fullName"`
}

type devTokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AuthHandler mints tokens for local development. Production tokens come
// from the household identity service.
type AuthHandler struct {
	issuer tokenIssuer
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(issuer tokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// DevToken godoc
// @Summary Issue a development access token
// @Description Only registered outside production.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body devTokenRequest true "Identity"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/dev-token [post]
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token request"))
		return
	}
	token, expiresAt, err := h.issuer.IssueToken(req.UserID, req.Email, req.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, devTokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil)
}
