package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/chore-dispute-api/internal/models"
)

type memoryDispute struct {
	mu      sync.Mutex
	dispute models.Dispute
	votes   map[string]models.Vote
	effects map[string]time.Time
}

// MemoryDisputeStore keeps disputes in process memory. A store-wide lock
// guards the indexes and a per-dispute mutex serializes vote mutations.
type MemoryDisputeStore struct {
	mu             sync.RWMutex
	disputes       map[string]*memoryDispute
	pendingByChore map[string]string
}

// NewMemoryDisputeStore constructs an empty store.
func NewMemoryDisputeStore() *MemoryDisputeStore {
	return &MemoryDisputeStore{
		disputes:       make(map[string]*memoryDispute),
		pendingByChore: make(map[string]string),
	}
}

// Create inserts a pending dispute, rejecting a second pending dispute per chore.
func (s *MemoryDisputeStore) Create(_ context.Context, dispute *models.Dispute) error {
	if dispute.ID == "" {
		dispute.ID = uuid.NewString()
	}
	if dispute.CreatedAt.IsZero() {
		dispute.CreatedAt = time.Now().UTC()
	}
	dispute.Status = models.DisputeStatusPending

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pendingByChore[dispute.ChoreID]; exists {
		return errPendingExists
	}
	s.disputes[dispute.ID] = &memoryDispute{
		dispute: *dispute,
		votes:   make(map[string]models.Vote),
		effects: make(map[string]time.Time),
	}
	s.pendingByChore[dispute.ChoreID] = dispute.ID
	return nil
}

// GetByID returns a copy of the dispute.
func (s *MemoryDisputeStore) GetByID(_ context.Context, id string) (*models.Dispute, error) {
	entry := s.entry(id)
	if entry == nil {
		return nil, errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	dispute := entry.dispute
	return &dispute, nil
}

// List returns disputes matching the filter, newest first.
func (s *MemoryDisputeStore) List(_ context.Context, filter models.DisputeFilter) ([]models.Dispute, error) {
	result := make([]models.Dispute, 0)
	for _, entry := range s.entries() {
		entry.mu.Lock()
		dispute := entry.dispute
		entry.mu.Unlock()
		if matchesFilter(dispute, filter) {
			result = append(result, dispute)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	limit, offset := models.NormalizePage(filter.Limit, filter.Offset)
	if offset >= len(result) {
		return []models.Dispute{}, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetVote returns a single voter's vote.
func (s *MemoryDisputeStore) GetVote(_ context.Context, disputeID, voterEmail string) (*models.Vote, error) {
	entry := s.entry(disputeID)
	if entry == nil {
		return nil, errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	vote, ok := entry.votes[voteKey(voterEmail)]
	if !ok {
		return nil, errVoteNotFound
	}
	return &vote, nil
}

// ListVotes returns every live vote on the dispute, oldest first.
func (s *MemoryDisputeStore) ListVotes(_ context.Context, disputeID string) ([]models.Vote, error) {
	entry := s.entry(disputeID)
	if entry == nil {
		return nil, errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.sortedVotes(), nil
}

// CastVote upserts the vote and runs decide while holding the dispute's mutex.
func (s *MemoryDisputeStore) CastVote(_ context.Context, disputeID, voterEmail string, choice models.VoteChoice, castAt time.Time, decide Decider) (*VoteOutcome, error) {
	return s.withLockedDispute(disputeID, decide, func(entry *memoryDispute) (bool, error) {
		if strings.EqualFold(entry.dispute.ClaimantEmail, voterEmail) {
			return false, errClaimantVote
		}
		if entry.dispute.Status != models.DisputeStatusPending {
			return false, errNotPending
		}
		key := voteKey(voterEmail)
		if existing, ok := entry.votes[key]; ok && existing.Choice == choice {
			return false, nil
		}
		entry.votes[key] = models.Vote{
			DisputeID:  disputeID,
			VoterEmail: voterEmail,
			Choice:     choice,
			CastAt:     castAt.UTC(),
		}
		return true, nil
	})
}

// RemoveVote deletes the voter's vote if present and runs decide under the dispute's mutex.
func (s *MemoryDisputeStore) RemoveVote(_ context.Context, disputeID, voterEmail string, decide Decider) (*VoteOutcome, error) {
	return s.withLockedDispute(disputeID, decide, func(entry *memoryDispute) (bool, error) {
		if entry.dispute.Status != models.DisputeStatusPending {
			return false, errNotPending
		}
		key := voteKey(voterEmail)
		if _, ok := entry.votes[key]; !ok {
			return false, nil
		}
		delete(entry.votes, key)
		return true, nil
	})
}

func (s *MemoryDisputeStore) withLockedDispute(disputeID string, decide Decider, mutate func(*memoryDispute) (bool, error)) (*VoteOutcome, error) {
	entry := s.entry(disputeID)
	if entry == nil {
		return nil, errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	changed := false
	if mutate != nil {
		var err error
		if changed, err = mutate(entry); err != nil {
			return nil, err
		}
	}

	votes := entry.sortedVotes()
	outcome := &VoteOutcome{Dispute: entry.dispute, Votes: votes, Changed: changed}
	if entry.dispute.Status == models.DisputeStatusPending && decide != nil {
		if res := decide(entry.dispute, votes); res != nil {
			s.resolveLocked(entry, *res)
			outcome.Dispute = entry.dispute
			outcome.Resolved = true
		}
	}
	return outcome, nil
}

// Resolve transitions a pending dispute exactly once.
func (s *MemoryDisputeStore) Resolve(_ context.Context, disputeID string, res models.Resolution) (*models.Dispute, error) {
	entry := s.entry(disputeID)
	if entry == nil {
		return nil, errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.dispute.Status != models.DisputeStatusPending {
		return nil, errNotPending
	}
	s.resolveLocked(entry, res)
	dispute := entry.dispute
	return &dispute, nil
}

// voteKey folds case so one voter maps to one vote however the email is spelled.
func voteKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// resolveLocked requires entry.mu to be held.
func (s *MemoryDisputeStore) resolveLocked(entry *memoryDispute, res models.Resolution) {
	applyResolution(&entry.dispute, res)
	s.mu.Lock()
	if s.pendingByChore[entry.dispute.ChoreID] == entry.dispute.ID {
		delete(s.pendingByChore, entry.dispute.ChoreID)
	}
	s.mu.Unlock()
}

// ListExpiredPending returns pending disputes created at or before cutoff, oldest first.
func (s *MemoryDisputeStore) ListExpiredPending(_ context.Context, cutoff time.Time, limit int) ([]models.Dispute, error) {
	return s.collect(limit, func(d models.Dispute) bool {
		return d.Status == models.DisputeStatusPending && !d.CreatedAt.After(cutoff)
	}, func(d models.Dispute) time.Time { return d.CreatedAt }), nil
}

// ListUnappliedResolutions returns resolved disputes whose side effects never completed.
func (s *MemoryDisputeStore) ListUnappliedResolutions(_ context.Context, cutoff time.Time, limit int) ([]models.Dispute, error) {
	return s.collect(limit, func(d models.Dispute) bool {
		return d.Status.Terminal() && d.EffectsAppliedAt == nil && d.ResolvedAt != nil && !d.ResolvedAt.After(cutoff)
	}, func(d models.Dispute) time.Time { return *d.ResolvedAt }), nil
}

// CompletedEffects lists the side-effect steps already recorded for a dispute.
func (s *MemoryDisputeStore) CompletedEffects(_ context.Context, disputeID string) ([]string, error) {
	entry := s.entry(disputeID)
	if entry == nil {
		return nil, errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	steps := make([]string, 0, len(entry.effects))
	for step := range entry.effects {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	return steps, nil
}

// RecordEffect marks a side-effect step as done.
func (s *MemoryDisputeStore) RecordEffect(_ context.Context, disputeID, step string, at time.Time) error {
	entry := s.entry(disputeID)
	if entry == nil {
		return errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if _, done := entry.effects[step]; !done {
		entry.effects[step] = at.UTC()
	}
	return nil
}

// MarkEffectsApplied stamps the dispute once all side effects completed.
func (s *MemoryDisputeStore) MarkEffectsApplied(_ context.Context, disputeID string, at time.Time) error {
	entry := s.entry(disputeID)
	if entry == nil {
		return errDisputeNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.dispute.EffectsAppliedAt == nil {
		applied := at.UTC()
		entry.dispute.EffectsAppliedAt = &applied
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryDisputeStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryDisputeStore) entry(id string) *memoryDispute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disputes[id]
}

func (s *MemoryDisputeStore) entries() []*memoryDispute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*memoryDispute, 0, len(s.disputes))
	for _, entry := range s.disputes {
		list = append(list, entry)
	}
	return list
}

func (s *MemoryDisputeStore) collect(limit int, keep func(models.Dispute) bool, key func(models.Dispute) time.Time) []models.Dispute {
	result := make([]models.Dispute, 0)
	for _, entry := range s.entries() {
		entry.mu.Lock()
		dispute := entry.dispute
		entry.mu.Unlock()
		if keep(dispute) {
			result = append(result, dispute)
		}
	}
	sort.Slice(result, func(i, j int) bool { return key(result[i]).Before(key(result[j])) })
	if limit = batchLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (e *memoryDispute) sortedVotes() []models.Vote {
	votes := make([]models.Vote, 0, len(e.votes))
	for _, vote := range e.votes {
		votes = append(votes, vote)
	}
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].CastAt.Equal(votes[j].CastAt) {
			return votes[i].VoterEmail < votes[j].VoterEmail
		}
		return votes[i].CastAt.Before(votes[j].CastAt)
	})
	return votes
}

func matchesFilter(d models.Dispute, filter models.DisputeFilter) bool {
	if len(filter.Status) > 0 {
		found := false
		for _, status := range filter.Status {
			if d.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.HomeID != "" && d.HomeID != filter.HomeID {
		return false
	}
	if filter.ChoreID != "" && d.ChoreID != filter.ChoreID {
		return false
	}
	return true
}
