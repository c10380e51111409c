package service

import (
	"time"

	"github.com/noah-isme/chore-dispute-api/internal/models"
)

// DefaultResolutionWindow is how long a dispute may stay pending without quorum.
const DefaultResolutionWindow = 24 * time.Hour

// QuorumEvaluator computes tallies and outcomes. It holds no state beyond
// the resolution window.
type QuorumEvaluator struct {
	window time.Duration
}

// NewQuorumEvaluator constructs an evaluator; a non-positive window falls back to 24h.
func NewQuorumEvaluator(window time.Duration) QuorumEvaluator {
	if window <= 0 {
		window = DefaultResolutionWindow
	}
	return QuorumEvaluator{window: window}
}

// Window returns the resolution window.
func (q QuorumEvaluator) Window() time.Duration {
	return q.window
}

// Deadline returns when the dispute auto-resolves.
func (q QuorumEvaluator) Deadline(d models.Dispute) time.Time {
	return d.CreatedAt.Add(q.window)
}

// RequiredVotes is a simple majority of eligible voters, rounded up.
func RequiredVotes(eligible int) int {
	if eligible <= 0 {
		return 0
	}
	return (eligible + 1) / 2
}

// Evaluate tallies votes and returns the status plus the resolution due now,
// if any. Approval is checked before rejection. With no eligible voters the
// dispute can only resolve at the deadline.
func (q QuorumEvaluator) Evaluate(d models.Dispute, votes []models.Vote, eligible int, now time.Time) (models.VoteStatus, *models.Resolution) {
	status := models.VoteStatus{
		DisputeID:           d.ID,
		TotalEligibleVoters: eligible,
		RequiredVotes:       RequiredVotes(eligible),
		Deadline:            q.Deadline(d),
		Status:              d.Status,
		Resolved:            d.Status.Terminal(),
	}
	for _, vote := range votes {
		switch vote.Choice {
		case models.VoteChoiceApprove:
			status.ApproveVotes++
		case models.VoteChoiceReject:
			status.RejectVotes++
		}
	}
	status.TotalVotes = status.ApproveVotes + status.RejectVotes
	status.Is24HoursPassed = !now.Before(status.Deadline)

	if d.Status != models.DisputeStatusPending {
		return status, nil
	}
	if status.RequiredVotes > 0 {
		if status.ApproveVotes >= status.RequiredVotes {
			return status, &models.Resolution{Outcome: models.DisputeStatusApproved, Source: models.ResolutionSourceQuorum, At: now}
		}
		if status.RejectVotes >= status.RequiredVotes {
			return status, &models.Resolution{Outcome: models.DisputeStatusRejected, Source: models.ResolutionSourceQuorum, At: now}
		}
	}
	if status.Is24HoursPassed {
		return status, &models.Resolution{Outcome: models.DisputeStatusRejected, Source: models.ResolutionSourceDeadline, At: now}
	}
	return status, nil
}

// WithResolution returns status updated to reflect res.
func WithResolution(status models.VoteStatus, res *models.Resolution) models.VoteStatus {
	if res == nil {
		return status
	}
	status.Status = res.Outcome
	status.Resolved = true
	return status
}
