package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	"github.com/noah-isme/chore-dispute-api/internal/repository"
	"github.com/noah-isme/chore-dispute-api/pkg/config"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
	"github.com/noah-isme/chore-dispute-api/pkg/jobs"
)

type flakyLedger struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    PointsLedger
}

func (l *flakyLedger) CreditPoints(ctx context.Context, email, homeID string, points int, refID string) error {
	if err := l.trip(); err != nil {
		return err
	}
	return l.inner.CreditPoints(ctx, email, homeID, points, refID)
}

func (l *flakyLedger) DebitPoints(ctx context.Context, email, homeID string, points int, refID string) error {
	if err := l.trip(); err != nil {
		return err
	}
	return l.inner.DebitPoints(ctx, email, homeID, points, refID)
}

func (l *flakyLedger) trip() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failures > 0 {
		l.failures--
		return errors.New("ledger unavailable")
	}
	return nil
}

type countingChores struct {
	mu       sync.Mutex
	reverts  int
	finalize int
	*repository.MemoryHousehold
}

func (c *countingChores) RevertChoreCompletion(ctx context.Context, choreID string) error {
	c.mu.Lock()
	c.reverts++
	c.mu.Unlock()
	return c.MemoryHousehold.RevertChoreCompletion(ctx, choreID)
}

func (c *countingChores) FinalizeChoreCompletion(ctx context.Context, choreID string) error {
	c.mu.Lock()
	c.finalize++
	c.mu.Unlock()
	return c.MemoryHousehold.FinalizeChoreCompletion(ctx, choreID)
}

func seedResolvedDispute(t *testing.T, store *repository.MemoryDisputeStore, household *repository.MemoryHousehold, outcome models.DisputeStatus) *models.Dispute {
	t.Helper()
	claimant := testClaimant
	household.PutChore(models.Chore{ID: testChore, HomeID: testHome, Status: models.ChoreStatusComplete, ClaimantEmail: &claimant, Points: 5})
	ctx := context.Background()
	dispute := &models.Dispute{ChoreID: testChore, HomeID: testHome, ClaimantEmail: testClaimant, DisputerEmail: "alice@home.test", Reason: "sloppy"}
	require.NoError(t, store.Create(ctx, dispute))
	resolved, err := store.Resolve(ctx, dispute.ID, models.Resolution{Outcome: outcome, Source: models.ResolutionSourceQuorum, At: time.Now()})
	require.NoError(t, err)
	return resolved
}

func TestEffectsRunnerResumesAfterFailure(t *testing.T) {
	store := repository.NewMemoryDisputeStore()
	household := repository.NewMemoryHousehold()
	chores := &countingChores{MemoryHousehold: household}
	ledger := &flakyLedger{failures: 1, inner: household}
	hub := NewResolutionHub(nil, nil)
	events, cancel := hub.Subscribe()
	defer cancel()

	dispute := seedResolvedDispute(t, store, household, models.DisputeStatusApproved)
	runner := NewEffectsRunner(store, chores, ledger, hub, config.PointsModeOnCompletion, nil, nil)
	ctx := context.Background()

	err := runner.Apply(ctx, dispute.ID)
	require.Error(t, err)
	steps, err := store.CompletedEffects(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{repository.EffectStepChore}, steps)
	assert.Empty(t, events)

	require.NoError(t, runner.Apply(ctx, dispute.ID))
	require.NoError(t, runner.Apply(ctx, dispute.ID))

	assert.Equal(t, 1, chores.reverts)
	assert.Equal(t, 2, ledger.calls)
	require.Len(t, household.Ledger(), 1)
	assert.Equal(t, -5, household.Ledger()[0].Delta)
	assert.Len(t, events, 1)

	stored, err := store.GetByID(ctx, dispute.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.EffectsAppliedAt)
}

func TestEffectsRunnerPointsModes(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		outcome models.DisputeStatus
		delta   int
	}{
		{name: "completion mode approved debits", mode: config.PointsModeOnCompletion, outcome: models.DisputeStatusApproved, delta: -5},
		{name: "completion mode rejected keeps points", mode: config.PointsModeOnCompletion, outcome: models.DisputeStatusRejected},
		{name: "resolution mode rejected credits", mode: config.PointsModeOnResolution, outcome: models.DisputeStatusRejected, delta: 5},
		{name: "resolution mode approved awards nothing", mode: config.PointsModeOnResolution, outcome: models.DisputeStatusApproved},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryDisputeStore()
			household := repository.NewMemoryHousehold()
			chores := &countingChores{MemoryHousehold: household}
			dispute := seedResolvedDispute(t, store, household, tc.outcome)

			runner := NewEffectsRunner(store, chores, household, nil, tc.mode, nil, nil)
			require.NoError(t, runner.Apply(context.Background(), dispute.ID))

			if tc.delta == 0 {
				assert.Empty(t, household.Ledger())
			} else {
				require.Len(t, household.Ledger(), 1)
				assert.Equal(t, tc.delta, household.Ledger()[0].Delta)
				assert.Equal(t, dispute.ID, household.Ledger()[0].RefID)
			}
			if tc.outcome == models.DisputeStatusApproved {
				assert.Equal(t, 1, chores.reverts)
			} else {
				assert.Equal(t, 1, chores.finalize)
			}
		})
	}
}

func TestEffectsRunnerRejectsPendingDispute(t *testing.T) {
	store := repository.NewMemoryDisputeStore()
	household := repository.NewMemoryHousehold()
	dispute := &models.Dispute{ChoreID: testChore, HomeID: testHome, ClaimantEmail: testClaimant, DisputerEmail: "alice@home.test", Reason: "x"}
	require.NoError(t, store.Create(context.Background(), dispute))

	runner := NewEffectsRunner(store, household, household, nil, config.PointsModeOnCompletion, nil, nil)
	err := runner.Apply(context.Background(), dispute.ID)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidState))
}

func TestEffectsRunnerSkipsMissingChore(t *testing.T) {
	store := repository.NewMemoryDisputeStore()
	household := repository.NewMemoryHousehold()
	ctx := context.Background()
	dispute := &models.Dispute{ChoreID: "gone", HomeID: testHome, ClaimantEmail: testClaimant, DisputerEmail: "alice@home.test", Reason: "x"}
	require.NoError(t, store.Create(ctx, dispute))
	_, err := store.Resolve(ctx, dispute.ID, models.Resolution{Outcome: models.DisputeStatusApproved, Source: models.ResolutionSourceQuorum, At: time.Now()})
	require.NoError(t, err)

	runner := NewEffectsRunner(store, household, household, nil, config.PointsModeOnCompletion, nil, nil)
	require.NoError(t, runner.Apply(ctx, dispute.ID))
	assert.Empty(t, household.Ledger())
}

func TestEffectsRunnerDispatchThroughQueue(t *testing.T) {
	store := repository.NewMemoryDisputeStore()
	household := repository.NewMemoryHousehold()
	dispute := seedResolvedDispute(t, store, household, models.DisputeStatusApproved)
	runner := NewEffectsRunner(store, household, household, nil, config.PointsModeOnCompletion, nil, nil)

	queue := jobs.NewQueue("effects-test", runner.HandleJob, jobs.QueueConfig{Workers: 1, RetryDelay: 10 * time.Millisecond, OnGiveUp: runner.GiveUp})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	runner.UseQueue(queue)

	require.NoError(t, runner.Dispatch(ctx, dispute.ID))
	require.NoError(t, runner.Dispatch(ctx, dispute.ID))

	require.Eventually(t, func() bool {
		stored, err := store.GetByID(ctx, dispute.ID)
		return err == nil && stored.EffectsAppliedAt != nil
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, household.Ledger(), 1)
	assert.Equal(t, models.ChoreStatusUnclaimed, mustChore(t, household).Status)
}

func TestEffectsRunnerHandleJobRequiresDisputeID(t *testing.T) {
	runner := NewEffectsRunner(repository.NewMemoryDisputeStore(), nil, nil, nil, "", nil, nil)
	err := runner.HandleJob(context.Background(), jobs.Job{ID: "x", Payload: 42})
	require.Error(t, err)
	assert.False(t, appErrors.Retryable(err))
}

func mustChore(t *testing.T, household *repository.MemoryHousehold) *models.Chore {
	t.Helper()
	chore, err := household.GetChore(context.Background(), testChore)
	require.NoError(t, err)
	return chore
}
