package dto

import "github.com/noah-isme/chore-dispute-api/internal/models"

// CreateDisputeRequest opens a dispute against a completed chore.
// DisputerEmail defaults to the caller and must match it when set.
type CreateDisputeRequest struct {
	ChoreID       string  `json:"choreId" validate:"required"`
	DisputerEmail string  `json:"disputerEmail,omitempty" validate:"omitempty,email"`
	Reason        string  `json:"reason" validate:"required,max=1000"`
	EvidenceURL   *string `json:"evidenceUrl,omitempty" validate:"omitempty,url"`
}

// CastVoteRequest records or changes a vote.
type CastVoteRequest struct {
	VoterEmail string            `json:"voterEmail,omitempty" validate:"omitempty,email"`
	Choice     models.VoteChoice `json:"choice" validate:"required,oneof=approve reject"`
}

// UnvoteRequest removes the caller's vote.
type UnvoteRequest struct {
	VoterEmail string `json:"voterEmail,omitempty" validate:"omitempty,email"`
}

// DisputeQuery carries list filters from the query string.
type DisputeQuery struct {
	Status  []models.DisputeStatus
	HomeID  string
	ChoreID string
	Limit   int
	Offset  int
}

// VoteResponse is the public view of a single vote.
type VoteResponse struct {
	Choice models.VoteChoice `json:"choice"`
}
