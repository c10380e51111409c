package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	"github.com/noah-isme/chore-dispute-api/pkg/database"
)

const disputeColumns = `id, chore_id, home_id, claimant_email, disputer_email, reason, evidence_url, status,
       resolution_source, created_at, resolved_at, effects_applied_at`

const uniqueViolation = "23505"

// DisputeRepository persists disputes and votes in PostgreSQL. Mutations on a
// single dispute are serialized with a row lock on the dispute.
type DisputeRepository struct {
	db *sqlx.DB
}

// NewDisputeRepository constructs the repository.
func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create inserts a pending dispute. The partial unique index on chore_id
// rejects a second pending dispute for the same chore.
func (r *DisputeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	if dispute.ID == "" {
		dispute.ID = uuid.NewString()
	}
	if dispute.CreatedAt.IsZero() {
		dispute.CreatedAt = time.Now().UTC()
	}
	dispute.Status = models.DisputeStatusPending
	const query = `INSERT INTO disputes
	(id, chore_id, home_id, claimant_email, disputer_email, reason, evidence_url, status, created_at)
	VALUES (:id, :chore_id, :home_id, :claimant_email, :disputer_email, :reason, :evidence_url, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dispute); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return errPendingExists
		}
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

// GetByID fetches a dispute by identifier.
func (r *DisputeRepository) GetByID(ctx context.Context, id string) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	var dispute models.Dispute
	if err := r.db.GetContext(ctx, &dispute, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errDisputeNotFound
		}
		return nil, fmt.Errorf("get dispute: %w", err)
	}
	return &dispute, nil
}

// List returns disputes matching the filter, newest first.
func (r *DisputeRepository) List(ctx context.Context, filter models.DisputeFilter) ([]models.Dispute, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + disputeColumns + ` FROM disputes`)

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.HomeID != "" {
		args = append(args, filter.HomeID)
		conditions = append(conditions, fmt.Sprintf("home_id = $%d", len(args)))
	}
	if filter.ChoreID != "" {
		args = append(args, filter.ChoreID)
		conditions = append(conditions, fmt.Sprintf("chore_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit, offset := models.NormalizePage(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var disputes []models.Dispute
	if err := r.db.SelectContext(ctx, &disputes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	return disputes, nil
}

// GetVote returns a single voter's vote.
func (r *DisputeRepository) GetVote(ctx context.Context, disputeID, voterEmail string) (*models.Vote, error) {
	const query = `SELECT dispute_id, voter_email, choice, cast_at FROM dispute_votes WHERE dispute_id = $1 AND lower(voter_email) = lower($2)`
	var vote models.Vote
	if err := r.db.GetContext(ctx, &vote, query, disputeID, voterEmail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errVoteNotFound
		}
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return &vote, nil
}

// ListVotes returns every live vote on the dispute.
func (r *DisputeRepository) ListVotes(ctx context.Context, disputeID string) ([]models.Vote, error) {
	return listVotes(ctx, r.db, disputeID)
}

// CastVote upserts the vote and runs decide in the same transaction, holding
// the dispute row lock throughout.
func (r *DisputeRepository) CastVote(ctx context.Context, disputeID, voterEmail string, choice models.VoteChoice, castAt time.Time, decide Decider) (*VoteOutcome, error) {
	return r.withLockedDispute(ctx, disputeID, decide, func(tx *sqlx.Tx, dispute *models.Dispute) (bool, error) {
		if strings.EqualFold(dispute.ClaimantEmail, voterEmail) {
			return false, errClaimantVote
		}
		if dispute.Status != models.DisputeStatusPending {
			return false, errNotPending
		}
		const upsert = `INSERT INTO dispute_votes (dispute_id, voter_email, choice, cast_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (dispute_id, lower(voter_email)) DO UPDATE SET choice = EXCLUDED.choice, cast_at = EXCLUDED.cast_at
WHERE dispute_votes.choice <> EXCLUDED.choice`
		result, err := tx.ExecContext(ctx, upsert, disputeID, voterEmail, choice, castAt.UTC())
		if err != nil {
			return false, fmt.Errorf("upsert vote: %w", err)
		}
		return rowsChanged(result)
	})
}

// RemoveVote deletes the voter's vote if present and runs decide under the row lock.
func (r *DisputeRepository) RemoveVote(ctx context.Context, disputeID, voterEmail string, decide Decider) (*VoteOutcome, error) {
	return r.withLockedDispute(ctx, disputeID, decide, func(tx *sqlx.Tx, dispute *models.Dispute) (bool, error) {
		if dispute.Status != models.DisputeStatusPending {
			return false, errNotPending
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM dispute_votes WHERE dispute_id = $1 AND lower(voter_email) = lower($2)`, disputeID, voterEmail)
		if err != nil {
			return false, fmt.Errorf("delete vote: %w", err)
		}
		return rowsChanged(result)
	})
}

func (r *DisputeRepository) withLockedDispute(ctx context.Context, disputeID string, decide Decider, mutate func(*sqlx.Tx, *models.Dispute) (bool, error)) (*VoteOutcome, error) {
	var outcome *VoteOutcome
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var dispute models.Dispute
		lockQuery := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &dispute, lockQuery, disputeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errDisputeNotFound
			}
			return fmt.Errorf("lock dispute: %w", err)
		}

		changed := false
		if mutate != nil {
			var err error
			if changed, err = mutate(tx, &dispute); err != nil {
				return err
			}
		}

		votes, err := listVotes(ctx, tx, disputeID)
		if err != nil {
			return err
		}

		outcome = &VoteOutcome{Dispute: dispute, Votes: votes, Changed: changed}
		if dispute.Status == models.DisputeStatusPending && decide != nil {
			if res := decide(dispute, votes); res != nil {
				if err := resolvePending(ctx, tx, disputeID, *res); err != nil {
					return err
				}
				applyResolution(&outcome.Dispute, *res)
				outcome.Resolved = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Resolve transitions a pending dispute exactly once. Callers losing the race
// receive an InvalidState error.
func (r *DisputeRepository) Resolve(ctx context.Context, disputeID string, res models.Resolution) (*models.Dispute, error) {
	query := `UPDATE disputes SET status = $2, resolution_source = $3, resolved_at = $4
WHERE id = $1 AND status = 'pending'
RETURNING ` + disputeColumns
	var dispute models.Dispute
	err := r.db.GetContext(ctx, &dispute, query, disputeID, res.Outcome, res.Source, res.At.UTC())
	if err == nil {
		return &dispute, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve dispute: %w", err)
	}
	var status models.DisputeStatus
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM disputes WHERE id = $1`, disputeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errDisputeNotFound
		}
		return nil, fmt.Errorf("check dispute status: %w", err)
	}
	return nil, errNotPending
}

// ListExpiredPending returns pending disputes created at or before cutoff, oldest first.
func (r *DisputeRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes
WHERE status = 'pending' AND created_at <= $1
ORDER BY created_at ASC LIMIT $2`
	var disputes []models.Dispute
	if err := r.db.SelectContext(ctx, &disputes, query, cutoff.UTC(), batchLimit(limit)); err != nil {
		return nil, fmt.Errorf("list expired disputes: %w", err)
	}
	return disputes, nil
}

// ListUnappliedResolutions returns disputes resolved at or before cutoff whose
// side effects never completed.
func (r *DisputeRepository) ListUnappliedResolutions(ctx context.Context, cutoff time.Time, limit int) ([]models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes
WHERE status <> 'pending' AND effects_applied_at IS NULL AND resolved_at <= $1
ORDER BY resolved_at ASC LIMIT $2`
	var disputes []models.Dispute
	if err := r.db.SelectContext(ctx, &disputes, query, cutoff.UTC(), batchLimit(limit)); err != nil {
		return nil, fmt.Errorf("list unapplied resolutions: %w", err)
	}
	return disputes, nil
}

// CompletedEffects lists the side-effect steps already recorded for a dispute.
func (r *DisputeRepository) CompletedEffects(ctx context.Context, disputeID string) ([]string, error) {
	var steps []string
	if err := r.db.SelectContext(ctx, &steps, `SELECT step FROM dispute_effects WHERE dispute_id = $1`, disputeID); err != nil {
		return nil, fmt.Errorf("list dispute effects: %w", err)
	}
	return steps, nil
}

// RecordEffect marks a side-effect step as done.
func (r *DisputeRepository) RecordEffect(ctx context.Context, disputeID, step string, at time.Time) error {
	const query = `INSERT INTO dispute_effects (dispute_id, step, applied_at) VALUES ($1, $2, $3)
ON CONFLICT (dispute_id, step) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, disputeID, step, at.UTC()); err != nil {
		return fmt.Errorf("record dispute effect %s: %w", step, err)
	}
	return nil
}

// MarkEffectsApplied stamps the dispute once all side effects completed.
func (r *DisputeRepository) MarkEffectsApplied(ctx context.Context, disputeID string, at time.Time) error {
	const query = `UPDATE disputes SET effects_applied_at = $2 WHERE id = $1 AND effects_applied_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, disputeID, at.UTC()); err != nil {
		return fmt.Errorf("mark effects applied: %w", err)
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (r *DisputeRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func listVotes(ctx context.Context, q sqlx.QueryerContext, disputeID string) ([]models.Vote, error) {
	const query = `SELECT dispute_id, voter_email, choice, cast_at FROM dispute_votes WHERE dispute_id = $1 ORDER BY cast_at ASC`
	var votes []models.Vote
	if err := sqlx.SelectContext(ctx, q, &votes, query, disputeID); err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return votes, nil
}

func resolvePending(ctx context.Context, tx *sqlx.Tx, disputeID string, res models.Resolution) error {
	const query = `UPDATE disputes SET status = $2, resolution_source = $3, resolved_at = $4 WHERE id = $1 AND status = 'pending'`
	result, err := tx.ExecContext(ctx, query, disputeID, res.Outcome, res.Source, res.At.UTC())
	if err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resolve rows: %w", err)
	}
	if rows == 0 {
		return errNotPending
	}
	return nil
}

func rowsChanged(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func batchLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
