package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	"github.com/noah-isme/chore-dispute-api/internal/repository"
	"github.com/noah-isme/chore-dispute-api/pkg/config"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
	"github.com/noah-isme/chore-dispute-api/pkg/jobs"
)

// JobTypeDisputeEffects tags side-effect jobs on the worker queue.
const JobTypeDisputeEffects = "dispute_effects"

// ChoreProvider is the external chore workflow.
type ChoreProvider interface {
	GetChore(ctx context.Context, choreID string) (*models.Chore, error)
	RevertChoreCompletion(ctx context.Context, choreID string) error
	FinalizeChoreCompletion(ctx context.Context, choreID string) error
}

// PointsLedger is the external points store. refID makes entries idempotent.
type PointsLedger interface {
	CreditPoints(ctx context.Context, email, homeID string, points int, refID string) error
	DebitPoints(ctx context.Context, email, homeID string, points int, refID string) error
}

type resolutionNotifier interface {
	Notify(ctx context.Context, evt models.DisputeResolvedEvent) error
}

type effectsStore interface {
	GetByID(ctx context.Context, id string) (*models.Dispute, error)
	CompletedEffects(ctx context.Context, disputeID string) ([]string, error)
	RecordEffect(ctx context.Context, disputeID, step string, at time.Time) error
	MarkEffectsApplied(ctx context.Context, disputeID string, at time.Time) error
}

// EffectsRunner applies the consequences of a resolution: chore state, then
// points, then subscriber notification. Each finished step is recorded so a
// retried run resumes where the previous one stopped.
type EffectsRunner struct {
	store      effectsStore
	chores     ChoreProvider
	points     PointsLedger
	notifier   resolutionNotifier
	pointsMode string
	metrics    *MetricsService
	logger     *zap.Logger
	queue      *jobs.Queue
}

// NewEffectsRunner constructs the runner. notifier and metrics may be nil.
func NewEffectsRunner(store effectsStore, chores ChoreProvider, points PointsLedger, notifier resolutionNotifier, pointsMode string, metrics *MetricsService, logger *zap.Logger) *EffectsRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pointsMode != config.PointsModeOnResolution {
		pointsMode = config.PointsModeOnCompletion
	}
	return &EffectsRunner{
		store:      store,
		chores:     chores,
		points:     points,
		notifier:   notifier,
		pointsMode: pointsMode,
		metrics:    metrics,
		logger:     logger,
	}
}

// UseQueue routes Dispatch through a worker queue instead of running inline.
func (r *EffectsRunner) UseQueue(queue *jobs.Queue) {
	r.queue = queue
}

// Dispatch schedules side effects for a resolved dispute. Without a queue the
// effects run before Dispatch returns.
func (r *EffectsRunner) Dispatch(ctx context.Context, disputeID string) error {
	if r.queue == nil {
		return r.Apply(ctx, disputeID)
	}
	err := r.queue.Enqueue(jobs.Job{ID: effectsJobID(disputeID), Type: JobTypeDisputeEffects, Payload: disputeID})
	if errors.Is(err, jobs.ErrDuplicateJob) {
		return nil
	}
	return err
}

// HandleJob adapts Apply to the worker queue.
func (r *EffectsRunner) HandleJob(ctx context.Context, job jobs.Job) error {
	disputeID, ok := job.Payload.(string)
	if !ok || disputeID == "" {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("dispute effects job %s: missing dispute id", job.ID))
	}
	return r.Apply(ctx, disputeID)
}

// GiveUp is the queue callback for jobs that exhausted their retries.
func (r *EffectsRunner) GiveUp(job jobs.Job, err error) {
	r.metrics.EffectsFailed()
	r.logger.Error("dispute side effects abandoned until next sweep", zap.String("job_id", job.ID), zap.Error(err))
}

// Apply runs every outstanding step for a resolved dispute.
func (r *EffectsRunner) Apply(ctx context.Context, disputeID string) error {
	dispute, err := r.store.GetByID(ctx, disputeID)
	if err != nil {
		return fmt.Errorf("load dispute %s: %w", disputeID, err)
	}
	if !dispute.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidState, "dispute is still pending")
	}
	if dispute.EffectsAppliedAt != nil {
		return nil
	}

	completed, err := r.store.CompletedEffects(ctx, disputeID)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(completed))
	for _, step := range completed {
		done[step] = true
	}

	steps := []struct {
		name string
		run  func(context.Context, *models.Dispute) error
	}{
		{repository.EffectStepChore, r.applyChore},
		{repository.EffectStepPoints, r.applyPoints},
		{repository.EffectStepNotify, r.notify},
	}
	for _, step := range steps {
		if done[step.name] {
			continue
		}
		if err := step.run(ctx, dispute); err != nil {
			return fmt.Errorf("dispute %s effect %s: %w", disputeID, step.name, err)
		}
		if err := r.store.RecordEffect(ctx, disputeID, step.name, time.Now()); err != nil {
			return err
		}
	}
	return r.store.MarkEffectsApplied(ctx, disputeID, time.Now())
}

func (r *EffectsRunner) applyChore(ctx context.Context, d *models.Dispute) error {
	var err error
	if d.Status == models.DisputeStatusApproved {
		err = r.chores.RevertChoreCompletion(ctx, d.ChoreID)
	} else {
		err = r.chores.FinalizeChoreCompletion(ctx, d.ChoreID)
	}
	if errors.Is(err, appErrors.ErrNotFound) {
		r.logger.Warn("disputed chore no longer exists", zap.String("dispute_id", d.ID), zap.String("chore_id", d.ChoreID))
		return nil
	}
	return err
}

func (r *EffectsRunner) applyPoints(ctx context.Context, d *models.Dispute) error {
	credit := r.pointsMode == config.PointsModeOnResolution && d.Status == models.DisputeStatusRejected
	debit := r.pointsMode == config.PointsModeOnCompletion && d.Status == models.DisputeStatusApproved
	if !credit && !debit {
		return nil
	}
	chore, err := r.chores.GetChore(ctx, d.ChoreID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			r.logger.Warn("skipping points for missing chore", zap.String("dispute_id", d.ID), zap.String("chore_id", d.ChoreID))
			return nil
		}
		return err
	}
	if chore.Points <= 0 {
		return nil
	}
	if credit {
		return r.points.CreditPoints(ctx, d.ClaimantEmail, d.HomeID, chore.Points, d.ID)
	}
	return r.points.DebitPoints(ctx, d.ClaimantEmail, d.HomeID, chore.Points, d.ID)
}

func (r *EffectsRunner) notify(ctx context.Context, d *models.Dispute) error {
	if r.notifier == nil {
		return nil
	}
	return r.notifier.Notify(ctx, models.NewDisputeResolvedEvent(d))
}

func effectsJobID(disputeID string) string {
	return "dispute-effects:" + disputeID
}
