package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/chore-dispute-api/internal/dto"
	"github.com/noah-isme/chore-dispute-api/internal/models"
	"github.com/noah-isme/chore-dispute-api/internal/repository"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

// pollTimeout bounds one shared status evaluation. It is detached from the
// caller that started it because other pollers wait on the same result.
const pollTimeout = 10 * time.Second

type disputeStore interface {
	Create(ctx context.Context, dispute *models.Dispute) error
	GetByID(ctx context.Context, id string) (*models.Dispute, error)
	List(ctx context.Context, filter models.DisputeFilter) ([]models.Dispute, error)
	GetVote(ctx context.Context, disputeID, voterEmail string) (*models.Vote, error)
	ListVotes(ctx context.Context, disputeID string) ([]models.Vote, error)
	CastVote(ctx context.Context, disputeID, voterEmail string, choice models.VoteChoice, castAt time.Time, decide repository.Decider) (*repository.VoteOutcome, error)
	RemoveVote(ctx context.Context, disputeID, voterEmail string, decide repository.Decider) (*repository.VoteOutcome, error)
	Resolve(ctx context.Context, disputeID string, res models.Resolution) (*models.Dispute, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Dispute, error)
	ListUnappliedResolutions(ctx context.Context, cutoff time.Time, limit int) ([]models.Dispute, error)
}

type effectsDispatcher interface {
	Dispatch(ctx context.Context, disputeID string) error
}

// DisputeService orchestrates the dispute lifecycle. It is the only writer of
// disputes and votes; every caller identity is passed in explicitly.
type DisputeService struct {
	store     disputeStore
	chores    ChoreProvider
	members   MembershipProvider
	effects   effectsDispatcher
	evaluator QuorumEvaluator
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
	polls     singleflight.Group
}

// DisputeServiceOption configures the service.
type DisputeServiceOption func(*DisputeService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) DisputeServiceOption {
	return func(s *DisputeService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResolutionWindow overrides the 24h auto-resolution window.
func WithResolutionWindow(window time.Duration) DisputeServiceOption {
	return func(s *DisputeService) {
		s.evaluator = NewQuorumEvaluator(window)
	}
}

// WithDisputeMetrics attaches Prometheus counters.
func WithDisputeMetrics(metrics *MetricsService) DisputeServiceOption {
	return func(s *DisputeService) {
		s.metrics = metrics
	}
}

// NewDisputeService constructs the service with defaults.
func NewDisputeService(store disputeStore, chores ChoreProvider, members MembershipProvider, effects effectsDispatcher, validate *validator.Validate, logger *zap.Logger, opts ...DisputeServiceOption) *DisputeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DisputeService{
		store:     store,
		chores:    chores,
		members:   members,
		effects:   effects,
		evaluator: NewQuorumEvaluator(DefaultResolutionWindow),
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateDispute opens a dispute against a completed chore on behalf of disputerEmail.
func (s *DisputeService) CreateDispute(ctx context.Context, req dto.CreateDisputeRequest, disputerEmail string) (*models.Dispute, error) {
	disputerEmail = strings.TrimSpace(disputerEmail)
	if disputerEmail == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if req.DisputerEmail != "" && !strings.EqualFold(req.DisputerEmail, disputerEmail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "disputerEmail must match the authenticated user")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dispute payload")
	}

	chore, err := s.chores.GetChore(ctx, req.ChoreID)
	if err != nil {
		return nil, passThrough(err, "failed to load chore")
	}
	if chore.Status != models.ChoreStatusComplete {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only completed chores can be disputed")
	}
	if chore.ClaimantEmail == nil || *chore.ClaimantEmail == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "chore has no claimant")
	}
	if strings.EqualFold(*chore.ClaimantEmail, disputerEmail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot dispute your own chore")
	}
	member, err := s.members.IsMember(ctx, chore.HomeID, disputerEmail)
	if err != nil {
		return nil, passThrough(err, "failed to check home membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only home members can dispute this chore")
	}

	dispute := &models.Dispute{
		ChoreID:       chore.ID,
		HomeID:        chore.HomeID,
		ClaimantEmail: *chore.ClaimantEmail,
		DisputerEmail: disputerEmail,
		Reason:        req.Reason,
		EvidenceURL:   req.EvidenceURL,
		CreatedAt:     s.now(),
	}
	start := time.Now()
	err = s.store.Create(ctx, dispute)
	s.metrics.ObserveStore("create", time.Since(start))
	if err != nil {
		return nil, passThrough(err, "failed to create dispute")
	}
	s.metrics.DisputeCreated()
	s.logger.Info("dispute opened",
		zap.String("dispute_id", dispute.ID),
		zap.String("chore_id", dispute.ChoreID),
		zap.String("home_id", dispute.HomeID),
	)
	return dispute, nil
}

// GetDispute returns a dispute by id.
func (s *DisputeService) GetDispute(ctx context.Context, id string) (*models.Dispute, error) {
	dispute, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, passThrough(err, "failed to load dispute")
	}
	return dispute, nil
}

// AuthorizeDispute returns the dispute when readerEmail may see it: a member of
// its home or one of its two parties.
func (s *DisputeService) AuthorizeDispute(ctx context.Context, disputeID, readerEmail string) (*models.Dispute, error) {
	readerEmail = strings.TrimSpace(readerEmail)
	if readerEmail == "" {
		return nil, appErrors.ErrUnauthorized
	}
	dispute, err := s.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(dispute.ClaimantEmail, readerEmail) || strings.EqualFold(dispute.DisputerEmail, readerEmail) {
		return dispute, nil
	}
	if err := s.AuthorizeHome(ctx, dispute.HomeID, readerEmail); err != nil {
		return nil, err
	}
	return dispute, nil
}

// AuthorizeHome fails with Forbidden unless readerEmail belongs to the home.
func (s *DisputeService) AuthorizeHome(ctx context.Context, homeID, readerEmail string) error {
	readerEmail = strings.TrimSpace(readerEmail)
	if readerEmail == "" {
		return appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(homeID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "homeId is required")
	}
	member, err := s.members.IsMember(ctx, homeID, readerEmail)
	if err != nil {
		return passThrough(err, "failed to check home membership")
	}
	if !member {
		return appErrors.Clone(appErrors.ErrForbidden, "only home members can read its disputes")
	}
	return nil
}

// ListDisputes returns disputes matching the query.
func (s *DisputeService) ListDisputes(ctx context.Context, query dto.DisputeQuery) ([]models.Dispute, error) {
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown dispute status %q", status))
		}
	}
	disputes, err := s.store.List(ctx, models.DisputeFilter{
		Status:  query.Status,
		HomeID:  query.HomeID,
		ChoreID: query.ChoreID,
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
	if err != nil {
		return nil, passThrough(err, "failed to list disputes")
	}
	return disputes, nil
}

// GetVote returns the voter's current vote. The email matches the roster
// spelling the vote was stored under regardless of case.
func (s *DisputeService) GetVote(ctx context.Context, disputeID, voterEmail string) (*models.Vote, error) {
	voterEmail = strings.TrimSpace(voterEmail)
	dispute, err := s.store.GetByID(ctx, disputeID)
	if err != nil {
		return nil, passThrough(err, "failed to load dispute")
	}
	eligible, err := s.members.EligibleVoters(ctx, dispute.HomeID, dispute.ClaimantEmail)
	if err != nil {
		return nil, passThrough(err, "failed to load eligible voters")
	}
	if canonical, ok := findEmail(eligible, voterEmail); ok {
		voterEmail = canonical
	}
	vote, err := s.store.GetVote(ctx, disputeID, voterEmail)
	if err != nil {
		return nil, passThrough(err, "failed to load vote")
	}
	return vote, nil
}

// Vote records voterEmail's choice and resolves the dispute in the same
// critical section when the new tally reaches quorum.
func (s *DisputeService) Vote(ctx context.Context, disputeID, voterEmail string, choice models.VoteChoice) (*models.VoteStatus, error) {
	if !choice.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "choice must be approve or reject")
	}
	voterEmail = strings.TrimSpace(voterEmail)
	if voterEmail == "" {
		return nil, appErrors.ErrUnauthorized
	}
	dispute, err := s.store.GetByID(ctx, disputeID)
	if err != nil {
		return nil, passThrough(err, "failed to load dispute")
	}
	if strings.EqualFold(dispute.ClaimantEmail, voterEmail) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "claimant cannot vote on their own dispute")
	}
	if dispute.Status != models.DisputeStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "dispute is no longer pending")
	}
	eligible, err := s.members.EligibleVoters(ctx, dispute.HomeID, dispute.ClaimantEmail)
	if err != nil {
		return nil, passThrough(err, "failed to load eligible voters")
	}
	canonical, ok := findEmail(eligible, voterEmail)
	if !ok {
		eligible, canonical, ok, err = s.recheckVoter(ctx, *dispute, voterEmail)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only eligible home members can vote")
		}
	}
	voterEmail = canonical

	now := s.now()
	var status models.VoteStatus
	decide := func(d models.Dispute, votes []models.Vote) *models.Resolution {
		var res *models.Resolution
		status, res = s.evaluator.Evaluate(d, votes, len(eligible), now)
		status = WithResolution(status, res)
		return res
	}

	start := time.Now()
	outcome, err := s.store.CastVote(ctx, disputeID, voterEmail, choice, now, decide)
	s.metrics.ObserveStore("cast_vote", time.Since(start))
	if err != nil {
		return nil, passThrough(err, "failed to cast vote")
	}
	if outcome.Changed {
		s.metrics.VoteCast(choice)
	}
	if outcome.Resolved {
		s.afterResolve(ctx, outcome.Dispute)
	}
	return &status, nil
}

// Unvote removes voterEmail's vote. Removing a vote never reaches quorum, but
// an overdue dispute is still closed at its deadline.
func (s *DisputeService) Unvote(ctx context.Context, disputeID, voterEmail string) (*models.VoteStatus, error) {
	voterEmail = strings.TrimSpace(voterEmail)
	if voterEmail == "" {
		return nil, appErrors.ErrUnauthorized
	}
	dispute, err := s.store.GetByID(ctx, disputeID)
	if err != nil {
		return nil, passThrough(err, "failed to load dispute")
	}
	if dispute.Status != models.DisputeStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "dispute is no longer pending")
	}
	eligible, err := s.members.EligibleVoters(ctx, dispute.HomeID, dispute.ClaimantEmail)
	if err != nil {
		return nil, passThrough(err, "failed to load eligible voters")
	}
	if canonical, ok := findEmail(eligible, voterEmail); ok {
		voterEmail = canonical
	}

	now := s.now()
	var status models.VoteStatus
	decide := func(d models.Dispute, votes []models.Vote) *models.Resolution {
		var res *models.Resolution
		status, res = s.evaluator.Evaluate(d, votes, len(eligible), now)
		if res != nil && res.Source != models.ResolutionSourceDeadline {
			res = nil
		}
		status = WithResolution(status, res)
		return res
	}

	start := time.Now()
	outcome, err := s.store.RemoveVote(ctx, disputeID, voterEmail, decide)
	s.metrics.ObserveStore("remove_vote", time.Since(start))
	if err != nil {
		return nil, passThrough(err, "failed to remove vote")
	}
	if outcome.Resolved {
		s.afterResolve(ctx, outcome.Dispute)
	}
	return &status, nil
}

// GetVoteStatus returns the current tally and closes the dispute first when
// its deadline has passed. Resolved disputes yield DISPUTE_RESOLVED unless
// includeResolved is set, in which case the terminal status is returned.
// Concurrent polls for the same dispute share one evaluation.
func (s *DisputeService) GetVoteStatus(ctx context.Context, disputeID string, includeResolved bool) (*models.VoteStatus, error) {
	key := fmt.Sprintf("%s:%t", disputeID, includeResolved)
	value, err, _ := s.polls.Do(key, func() (interface{}, error) {
		pollCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pollTimeout)
		defer cancel()
		return s.voteStatus(pollCtx, disputeID, includeResolved)
	})
	if err != nil {
		return nil, err
	}
	status := value.(models.VoteStatus)
	return &status, nil
}

func (s *DisputeService) voteStatus(ctx context.Context, disputeID string, includeResolved bool) (models.VoteStatus, error) {
	dispute, err := s.store.GetByID(ctx, disputeID)
	if err != nil {
		return models.VoteStatus{}, passThrough(err, "failed to load dispute")
	}
	if dispute.Status.Terminal() && !includeResolved {
		return models.VoteStatus{}, appErrors.ErrDisputeResolved
	}
	eligible, err := s.members.EligibleVoters(ctx, dispute.HomeID, dispute.ClaimantEmail)
	if err != nil {
		return models.VoteStatus{}, passThrough(err, "failed to load eligible voters")
	}
	votes, err := s.store.ListVotes(ctx, disputeID)
	if err != nil {
		return models.VoteStatus{}, passThrough(err, "failed to load votes")
	}

	status, res := s.evaluator.Evaluate(*dispute, votes, len(eligible), s.now())
	if res == nil {
		return status, nil
	}
	if _, err := s.resolve(ctx, disputeID, *res); err != nil {
		return models.VoteStatus{}, err
	}
	if !includeResolved {
		return models.VoteStatus{}, appErrors.ErrDisputeResolved
	}
	current, err := s.store.GetByID(ctx, disputeID)
	if err != nil {
		return models.VoteStatus{}, passThrough(err, "failed to reload dispute")
	}
	status.Status = current.Status
	status.Resolved = current.Status.Terminal()
	return status, nil
}

// ResolveExpired closes pending disputes whose deadline has passed. It returns
// how many this call resolved.
func (s *DisputeService) ResolveExpired(ctx context.Context, limit int) (int, error) {
	now := s.now()
	expired, err := s.store.ListExpiredPending(ctx, now.Add(-s.evaluator.Window()), limit)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, dispute := range expired {
		eligible, err := s.members.EligibleVoters(ctx, dispute.HomeID, dispute.ClaimantEmail)
		if err != nil {
			s.logger.Warn("skipping expired dispute", zap.String("dispute_id", dispute.ID), zap.Error(err))
			continue
		}
		votes, err := s.store.ListVotes(ctx, dispute.ID)
		if err != nil {
			s.logger.Warn("skipping expired dispute", zap.String("dispute_id", dispute.ID), zap.Error(err))
			continue
		}
		_, res := s.evaluator.Evaluate(dispute, votes, len(eligible), now)
		if res == nil {
			continue
		}
		won, err := s.resolve(ctx, dispute.ID, *res)
		if err != nil {
			s.logger.Warn("failed to resolve expired dispute", zap.String("dispute_id", dispute.ID), zap.Error(err))
			continue
		}
		if won {
			resolved++
		}
	}
	return resolved, nil
}

// RedispatchEffects retries side effects for disputes resolved more than
// grace ago that never finished them.
func (s *DisputeService) RedispatchEffects(ctx context.Context, grace time.Duration, limit int) (int, error) {
	if s.effects == nil {
		return 0, nil
	}
	stale, err := s.store.ListUnappliedResolutions(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, dispute := range stale {
		if err := s.effects.Dispatch(ctx, dispute.ID); err != nil {
			s.logger.Warn("failed to redispatch dispute effects", zap.String("dispute_id", dispute.ID), zap.Error(err))
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// recheckVoter runs when voterEmail is missing from the eligible list, which
// can come from a roster cached before the voter joined. IsMember refreshes a
// cached roster on a miss, so a confirmed member gets a fresh voter list.
func (s *DisputeService) recheckVoter(ctx context.Context, dispute models.Dispute, voterEmail string) ([]string, string, bool, error) {
	member, err := s.members.IsMember(ctx, dispute.HomeID, voterEmail)
	if err != nil {
		return nil, "", false, passThrough(err, "failed to check home membership")
	}
	if !member {
		return nil, "", false, nil
	}
	eligible, err := s.members.EligibleVoters(ctx, dispute.HomeID, dispute.ClaimantEmail)
	if err != nil {
		return nil, "", false, passThrough(err, "failed to load eligible voters")
	}
	canonical, ok := findEmail(eligible, voterEmail)
	return eligible, canonical, ok, nil
}

// resolve applies res through the store's compare-and-swap. Losing the race
// to another resolver is success: the dispute is resolved either way.
func (s *DisputeService) resolve(ctx context.Context, disputeID string, res models.Resolution) (bool, error) {
	start := time.Now()
	dispute, err := s.store.Resolve(ctx, disputeID, res)
	s.metrics.ObserveStore("resolve", time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrInvalidState) {
			return false, nil
		}
		return false, passThrough(err, "failed to resolve dispute")
	}
	s.afterResolve(ctx, *dispute)
	return true, nil
}

func (s *DisputeService) afterResolve(ctx context.Context, dispute models.Dispute) {
	source := models.ResolutionSource("")
	if dispute.ResolutionSource != nil {
		source = *dispute.ResolutionSource
	}
	s.metrics.DisputeResolved(dispute.Status, source)
	s.logger.Info("dispute resolved",
		zap.String("dispute_id", dispute.ID),
		zap.String("outcome", string(dispute.Status)),
		zap.String("source", string(source)),
	)
	if s.effects == nil {
		return
	}
	if err := s.effects.Dispatch(ctx, dispute.ID); err != nil {
		s.logger.Warn("dispute effects not dispatched, sweeper will retry", zap.String("dispute_id", dispute.ID), zap.Error(err))
	}
}

// passThrough keeps typed errors and wraps anything else as internal.
func passThrough(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func findEmail(list []string, email string) (string, bool) {
	for _, candidate := range list {
		if strings.EqualFold(candidate, email) {
			return candidate, true
		}
	}
	return "", false
}
