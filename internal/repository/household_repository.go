package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

// Ledger reasons written by dispute resolution.
const (
	PointsReasonDisputeApproved = "dispute_approved"
	PointsReasonDisputeRejected = "dispute_rejected"
)

var errChoreNotFound = appErrors.Clone(appErrors.ErrNotFound, "chore not found")

// HouseholdRepository adapts the chores, home_members and points_ledger
// tables owned by the rest of the household application.
type HouseholdRepository struct {
	db *sqlx.DB
}

// NewHouseholdRepository constructs the repository.
func NewHouseholdRepository(db *sqlx.DB) *HouseholdRepository {
	return &HouseholdRepository{db: db}
}

// GetChore fetches the chore snapshot used to open a dispute.
func (r *HouseholdRepository) GetChore(ctx context.Context, choreID string) (*models.Chore, error) {
	const query = `SELECT id, home_id, title, status, claimed_by, points FROM chores WHERE id = $1`
	var chore models.Chore
	if err := r.db.GetContext(ctx, &chore, query, choreID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errChoreNotFound
		}
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return &chore, nil
}

// RevertChoreCompletion returns a completed chore to the unclaimed pool.
// Chores already reverted are left untouched.
func (r *HouseholdRepository) RevertChoreCompletion(ctx context.Context, choreID string) error {
	const query = `UPDATE chores SET status = 'unclaimed', claimed_by = NULL, completed_at = NULL
WHERE id = $1 AND status = 'complete'`
	if _, err := r.db.ExecContext(ctx, query, choreID); err != nil {
		return fmt.Errorf("revert chore completion: %w", err)
	}
	return nil
}

// FinalizeChoreCompletion locks in a completed chore once its dispute window closes.
func (r *HouseholdRepository) FinalizeChoreCompletion(ctx context.Context, choreID string) error {
	const query = `UPDATE chores SET finalized_at = $2 WHERE id = $1 AND status = 'complete' AND finalized_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, choreID, time.Now().UTC()); err != nil {
		return fmt.Errorf("finalize chore completion: %w", err)
	}
	return nil
}

// EligibleVoters lists home members other than excludeEmail.
func (r *HouseholdRepository) EligibleVoters(ctx context.Context, homeID, excludeEmail string) ([]string, error) {
	const query = `SELECT email FROM home_members WHERE home_id = $1 AND lower(email) <> lower($2) ORDER BY email`
	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query, homeID, excludeEmail); err != nil {
		return nil, fmt.Errorf("list eligible voters: %w", err)
	}
	return emails, nil
}

// IsMember reports whether email belongs to the home.
func (r *HouseholdRepository) IsMember(ctx context.Context, homeID, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM home_members WHERE home_id = $1 AND lower(email) = lower($2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, homeID, email); err != nil {
		return false, fmt.Errorf("check home membership: %w", err)
	}
	return exists, nil
}

// CreditPoints adds points for the member. Entries are unique per (refID, email, reason).
func (r *HouseholdRepository) CreditPoints(ctx context.Context, email, homeID string, points int, refID string) error {
	return r.insertLedger(ctx, models.PointsEntry{HomeID: homeID, Email: email, Delta: points, Reason: PointsReasonDisputeRejected, RefID: refID})
}

// DebitPoints removes points from the member. Entries are unique per (refID, email, reason).
func (r *HouseholdRepository) DebitPoints(ctx context.Context, email, homeID string, points int, refID string) error {
	return r.insertLedger(ctx, models.PointsEntry{HomeID: homeID, Email: email, Delta: -points, Reason: PointsReasonDisputeApproved, RefID: refID})
}

func (r *HouseholdRepository) insertLedger(ctx context.Context, entry models.PointsEntry) error {
	const query = `INSERT INTO points_ledger (id, home_id, email, delta, reason, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (ref_id, email, reason) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), entry.HomeID, entry.Email, entry.Delta, entry.Reason, entry.RefID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert points ledger entry: %w", err)
	}
	return nil
}
