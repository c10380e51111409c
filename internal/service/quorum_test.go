package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chore-dispute-api/internal/models"
)

func votesOf(choices ...models.VoteChoice) []models.Vote {
	votes := make([]models.Vote, len(choices))
	for i, choice := range choices {
		votes[i] = models.Vote{DisputeID: "d-1", VoterEmail: fmt.Sprintf("voter-%d@home.test", i), Choice: choice}
	}
	return votes
}

func TestRequiredVotes(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 7: 4}
	for eligible, want := range cases {
		assert.Equal(t, want, RequiredVotes(eligible), "eligible=%d", eligible)
	}
}

func TestQuorumEvaluate(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pending := models.Dispute{ID: "d-1", Status: models.DisputeStatusPending, CreatedAt: created}
	beforeDeadline := created.Add(time.Hour)
	afterDeadline := created.Add(24 * time.Hour)

	tests := []struct {
		name     string
		votes    []models.Vote
		eligible int
		now      time.Time
		outcome  models.DisputeStatus
		source   models.ResolutionSource
	}{
		{name: "two approvals of three", votes: votesOf(models.VoteChoiceApprove, models.VoteChoiceApprove), eligible: 3, now: beforeDeadline, outcome: models.DisputeStatusApproved, source: models.ResolutionSourceQuorum},
		{name: "split vote stays pending", votes: votesOf(models.VoteChoiceApprove, models.VoteChoiceReject), eligible: 3, now: beforeDeadline},
		{name: "two rejections of three", votes: votesOf(models.VoteChoiceReject, models.VoteChoiceReject), eligible: 3, now: beforeDeadline, outcome: models.DisputeStatusRejected, source: models.ResolutionSourceQuorum},
		{name: "tie favours approval", votes: votesOf(models.VoteChoiceReject, models.VoteChoiceApprove), eligible: 2, now: beforeDeadline, outcome: models.DisputeStatusApproved, source: models.ResolutionSourceQuorum},
		{name: "no eligible voters before deadline", eligible: 0, now: beforeDeadline},
		{name: "no eligible voters after deadline", eligible: 0, now: afterDeadline, outcome: models.DisputeStatusRejected, source: models.ResolutionSourceDeadline},
		{name: "no quorum after deadline", votes: votesOf(models.VoteChoiceApprove), eligible: 3, now: afterDeadline, outcome: models.DisputeStatusRejected, source: models.ResolutionSourceDeadline},
		{name: "quorum wins over deadline", votes: votesOf(models.VoteChoiceApprove, models.VoteChoiceApprove), eligible: 3, now: afterDeadline, outcome: models.DisputeStatusApproved, source: models.ResolutionSourceQuorum},
	}

	evaluator := NewQuorumEvaluator(0)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, res := evaluator.Evaluate(pending, tc.votes, tc.eligible, tc.now)
			assert.Equal(t, len(tc.votes), status.TotalVotes)
			assert.Equal(t, RequiredVotes(tc.eligible), status.RequiredVotes)
			if tc.outcome == "" {
				assert.Nil(t, res)
				return
			}
			require.NotNil(t, res)
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.source, res.Source)
		})
	}
}

func TestQuorumEvaluateDeadlineBoundary(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispute := models.Dispute{ID: "d-1", Status: models.DisputeStatusPending, CreatedAt: created}
	evaluator := NewQuorumEvaluator(24 * time.Hour)

	status, res := evaluator.Evaluate(dispute, nil, 3, created.Add(24*time.Hour-time.Second))
	assert.Nil(t, res)
	assert.False(t, status.Is24HoursPassed)
	assert.Equal(t, created.Add(24*time.Hour), status.Deadline)

	status, res = evaluator.Evaluate(dispute, nil, 3, created.Add(24*time.Hour))
	require.NotNil(t, res)
	assert.True(t, status.Is24HoursPassed)
}

func TestQuorumEvaluateResolvedDisputeNeverResolvesAgain(t *testing.T) {
	dispute := models.Dispute{ID: "d-1", Status: models.DisputeStatusApproved, CreatedAt: time.Now().Add(-48 * time.Hour)}
	status, res := NewQuorumEvaluator(0).Evaluate(dispute, votesOf(models.VoteChoiceReject, models.VoteChoiceReject), 2, time.Now())
	assert.Nil(t, res)
	assert.True(t, status.Resolved)
	assert.Equal(t, models.DisputeStatusApproved, status.Status)
	assert.Equal(t, 2, status.RejectVotes)
}
