package repository

import (
	"context"
	"time"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

// Decider inspects a dispute and its current votes inside the per-dispute
// critical section and returns the resolution to apply, or nil to leave the
// dispute pending. It must not block.
type Decider func(dispute models.Dispute, votes []models.Vote) *models.Resolution

// DisputeStore is implemented by the Postgres repository and the in-memory store.
type DisputeStore interface {
	Create(ctx context.Context, dispute *models.Dispute) error
	GetByID(ctx context.Context, id string) (*models.Dispute, error)
	List(ctx context.Context, filter models.DisputeFilter) ([]models.Dispute, error)
	GetVote(ctx context.Context, disputeID, voterEmail string) (*models.Vote, error)
	ListVotes(ctx context.Context, disputeID string) ([]models.Vote, error)
	CastVote(ctx context.Context, disputeID, voterEmail string, choice models.VoteChoice, castAt time.Time, decide Decider) (*VoteOutcome, error)
	RemoveVote(ctx context.Context, disputeID, voterEmail string, decide Decider) (*VoteOutcome, error)
	Resolve(ctx context.Context, disputeID string, res models.Resolution) (*models.Dispute, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Dispute, error)
	ListUnappliedResolutions(ctx context.Context, cutoff time.Time, limit int) ([]models.Dispute, error)
	CompletedEffects(ctx context.Context, disputeID string) ([]string, error)
	RecordEffect(ctx context.Context, disputeID, step string, at time.Time) error
	MarkEffectsApplied(ctx context.Context, disputeID string, at time.Time) error
	Ping(ctx context.Context) error
}

var (
	_ DisputeStore = (*DisputeRepository)(nil)
	_ DisputeStore = (*MemoryDisputeStore)(nil)
)

// VoteOutcome is the state of a dispute after a serialized mutation.
type VoteOutcome struct {
	Dispute models.Dispute
	Votes   []models.Vote
	// Resolved is true only for the call that moved the dispute out of pending.
	Resolved bool
	// Changed is false when the mutation left the votes as they were, such as
	// re-casting the same choice or removing a vote that did not exist.
	Changed bool
}

// Effect steps recorded per dispute so retried side effects skip finished work.
const (
	EffectStepChore  = "chore"
	EffectStepPoints = "points"
	EffectStepNotify = "notify"
)

var (
	errDisputeNotFound = appErrors.Clone(appErrors.ErrNotFound, "dispute not found")
	errVoteNotFound    = appErrors.Clone(appErrors.ErrNotFound, "vote not found")
	errNotPending      = appErrors.Clone(appErrors.ErrInvalidState, "dispute is no longer pending")
	errPendingExists   = appErrors.Clone(appErrors.ErrInvalidState, "chore already has a pending dispute")
	errClaimantVote    = appErrors.Clone(appErrors.ErrForbidden, "claimant cannot vote on their own dispute")
)

func applyResolution(d *models.Dispute, res models.Resolution) {
	source := res.Source
	at := res.At.UTC()
	d.Status = res.Outcome
	d.ResolutionSource = &source
	d.ResolvedAt = &at
}
