package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/chore-dispute-api/internal/dto"
	"github.com/noah-isme/chore-dispute-api/internal/models"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
	"github.com/noah-isme/chore-dispute-api/pkg/response"
)

const sseHeartbeat = 25 * time.Second

type disputeService interface {
	CreateDispute(ctx context.Context, req dto.CreateDisputeRequest, disputerEmail string) (*models.Dispute, error)
	ListDisputes(ctx context.Context, query dto.DisputeQuery) ([]models.Dispute, error)
	GetVote(ctx context.Context, disputeID, voterEmail string) (*models.Vote, error)
	Vote(ctx context.Context, disputeID, voterEmail string, choice models.VoteChoice) (*models.VoteStatus, error)
	Unvote(ctx context.Context, disputeID, voterEmail string) (*models.VoteStatus, error)
	GetVoteStatus(ctx context.Context, disputeID string, includeResolved bool) (*models.VoteStatus, error)
	AuthorizeDispute(ctx context.Context, disputeID, readerEmail string) (*models.Dispute, error)
	AuthorizeHome(ctx context.Context, homeID, readerEmail string) error
}

type resolutionFeed interface {
	Subscribe() (<-chan models.DisputeResolvedEvent, func())
}

// DisputeHandler exposes the dispute and voting endpoints.
type DisputeHandler struct {
	service disputeService
	feed    resolutionFeed
}

// NewDisputeHandler builds a new handler. feed may be nil, which disables the event stream.
func NewDisputeHandler(service disputeService, feed resolutionFeed) *DisputeHandler {
	return &DisputeHandler{service: service, feed: feed}
}

// Create godoc
// @Summary Open a dispute against a completed chore
// @Tags Disputes
// @Accept json
// @Produce json
// @Param payload body dto.CreateDisputeRequest true "Dispute payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /disputes [post]
func (h *DisputeHandler) Create(c *gin.Context) {
	email, ok := requireEmail(c)
	if !ok {
		return
	}
	var req dto.CreateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid dispute payload"))
		return
	}
	dispute, err := h.service.CreateDispute(c.Request.Context(), req, email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dispute)
}

// List godoc
// @Summary List disputes of a home the caller belongs to
// @Tags Disputes
// @Produce json
// @Param status query string false "Comma separated statuses (pending, approved, rejected)"
// @Param homeId query string true "Home ID"
// @Param choreId query string false "Chore ID filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /disputes [get]
func (h *DisputeHandler) List(c *gin.Context) {
	email, ok := requireEmail(c)
	if !ok {
		return
	}
	query := dto.DisputeQuery{
		HomeID:  c.Query("homeId"),
		ChoreID: c.Query("choreId"),
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				query.Status = append(query.Status, models.DisputeStatus(strings.ToLower(part)))
			}
		}
	}
	var err error
	if query.Limit, err = intQuery(c, "limit"); err != nil {
		response.Error(c, err)
		return
	}
	if query.Offset, err = intQuery(c, "offset"); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.AuthorizeHome(c.Request.Context(), query.HomeID, email); err != nil {
		response.Error(c, err)
		return
	}

	disputes, err := h.service.ListDisputes(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, offset := models.NormalizePage(query.Limit, query.Offset)
	response.Page(c, disputes, limit, offset, len(disputes))
}

// Get godoc
// @Summary Get a dispute
// @Tags Disputes
// @Produce json
// @Param id path string true "Dispute ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /disputes/{id} [get]
func (h *DisputeHandler) Get(c *gin.Context) {
	email, ok := requireEmail(c)
	if !ok {
		return
	}
	dispute, err := h.service.AuthorizeDispute(c.Request.Context(), c.Param("id"), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispute, nil)
}

// GetVote godoc
// @Summary Get a member's vote on a dispute
// @Tags Disputes
// @Produce json
// @Param id path string true "Dispute ID"
// @Param voterEmail path string true "Voter email"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /disputes/{id}/votes/{voterEmail} [get]
func (h *DisputeHandler) GetVote(c *gin.Context) {
	if !h.authorizeDispute(c) {
		return
	}
	vote, err := h.service.GetVote(c.Request.Context(), c.Param("id"), c.Param("voterEmail"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.VoteResponse{Choice: vote.Choice}, nil)
}

// Status godoc
// @Summary Get the vote tally of a dispute
// @Description Resolved disputes answer 404 DISPUTE_RESOLVED unless includeResolved=true.
// @Tags Disputes
// @Produce json
// @Param id path string true "Dispute ID"
// @Param includeResolved query bool false "Return the terminal status instead of 404"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /disputes/{id}/status [get]
func (h *DisputeHandler) Status(c *gin.Context) {
	if !h.authorizeDispute(c) {
		return
	}
	includeResolved, _ := strconv.ParseBool(c.DefaultQuery("includeResolved", "false"))
	status, err := h.service.GetVoteStatus(c.Request.Context(), c.Param("id"), includeResolved)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Vote godoc
// @Summary Cast or change a vote
// @Tags Disputes
// @Accept json
// @Produce json
// @Param id path string true "Dispute ID"
// @Param payload body dto.CastVoteRequest true "Vote payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /disputes/{id}/vote [post]
func (h *DisputeHandler) Vote(c *gin.Context) {
	email, ok := requireEmail(c)
	if !ok {
		return
	}
	var req dto.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid vote payload"))
		return
	}
	if !sameIdentity(req.VoterEmail, email) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "voterEmail must match the authenticated user"))
		return
	}
	status, err := h.service.Vote(c.Request.Context(), c.Param("id"), email, req.Choice)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Unvote godoc
// @Summary Withdraw a vote
// @Tags Disputes
// @Accept json
// @Produce json
// @Param id path string true "Dispute ID"
// @Param payload body dto.UnvoteRequest false "Unvote payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /disputes/{id}/unvote [post]
func (h *DisputeHandler) Unvote(c *gin.Context) {
	email, ok := requireEmail(c)
	if !ok {
		return
	}
	var req dto.UnvoteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unvote payload"))
			return
		}
	}
	if !sameIdentity(req.VoterEmail, email) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "voterEmail must match the authenticated user"))
		return
	}
	status, err := h.service.Unvote(c.Request.Context(), c.Param("id"), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Events godoc
// @Summary Stream dispute resolutions
// @Description Server-Sent Events; each event is named dispute.resolved.
// @Tags Disputes
// @Produce text/event-stream
// @Param homeId query string true "Home whose resolutions are streamed"
// @Param access_token query string false "Bearer token when no Authorization header is sent"
// @Success 200 {string} string "event stream"
// @Failure 403 {object} response.Envelope
// @Router /disputes/events [get]
func (h *DisputeHandler) Events(c *gin.Context) {
	if h.feed == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "event stream disabled"))
		return
	}
	email, ok := requireEmail(c)
	if !ok {
		return
	}
	homeID := c.Query("homeId")
	if err := h.service.AuthorizeHome(c.Request.Context(), homeID, email); err != nil {
		response.Error(c, err)
		return
	}
	events, cancel := h.feed.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case evt, ok := <-events:
			if !ok {
				return false
			}
			if evt.HomeID != homeID {
				return true
			}
			c.SSEvent("dispute.resolved", evt)
			return true
		}
	})
}

// authorizeDispute writes the error and returns false unless the caller may
// read the dispute named in the path.
func (h *DisputeHandler) authorizeDispute(c *gin.Context) bool {
	email, ok := requireEmail(c)
	if !ok {
		return false
	}
	if _, err := h.service.AuthorizeDispute(c.Request.Context(), c.Param("id"), email); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a non-negative integer")
	}
	return value, nil
}
