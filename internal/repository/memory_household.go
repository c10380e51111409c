package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	"github.com/noah-isme/chore-dispute-api/pkg/config"
)

// MemoryHousehold is an in-process stand-in for the chores, membership and
// points collaborators, used with the memory dispute store.
type MemoryHousehold struct {
	mu      sync.RWMutex
	chores  map[string]models.Chore
	members map[string][]string
	ledger  []models.PointsEntry
}

// NewMemoryHousehold constructs an empty household.
func NewMemoryHousehold() *MemoryHousehold {
	return &MemoryHousehold{
		chores:  make(map[string]models.Chore),
		members: make(map[string][]string),
	}
}

// PutChore inserts or replaces a chore.
func (h *MemoryHousehold) PutChore(chore models.Chore) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chores[chore.ID] = chore
}

// AddMember adds email to the home.
func (h *MemoryHousehold) AddMember(homeID, email string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.members[homeID] {
		if strings.EqualFold(existing, email) {
			return
		}
	}
	h.members[homeID] = append(h.members[homeID], email)
}

// Seed loads homes and chores from a fixture. A chore without a status is
// complete when it has a claimant and unclaimed otherwise. A claimant must be
// a member of the chore's home.
func (h *MemoryHousehold) Seed(seed config.MemorySeed) error {
	for _, home := range seed.Homes {
		if strings.TrimSpace(home.ID) == "" {
			return errors.New("seed home without id")
		}
		for _, email := range home.Members {
			if email = strings.TrimSpace(email); email != "" {
				h.AddMember(home.ID, email)
			}
		}
	}

	for _, entry := range seed.Chores {
		if entry.ID == "" || entry.HomeID == "" {
			return fmt.Errorf("seed chore %q needs id and homeId", entry.ID)
		}
		chore := models.Chore{ID: entry.ID, HomeID: entry.HomeID, Title: entry.Title, Points: entry.Points}
		claimant := strings.TrimSpace(entry.ClaimedBy)
		switch status := models.ChoreStatus(strings.ToLower(entry.Status)); status {
		case "":
			chore.Status = models.ChoreStatusUnclaimed
			if claimant != "" {
				chore.Status = models.ChoreStatusComplete
			}
		case models.ChoreStatusUnclaimed, models.ChoreStatusClaimed, models.ChoreStatusComplete:
			chore.Status = status
		default:
			return fmt.Errorf("seed chore %q has unknown status %q", entry.ID, entry.Status)
		}
		if claimant != "" {
			member, _ := h.IsMember(context.Background(), entry.HomeID, claimant)
			if !member {
				return fmt.Errorf("seed chore %q claimant %s is not a member of %s", entry.ID, claimant, entry.HomeID)
			}
			chore.ClaimantEmail = &claimant
		}
		h.PutChore(chore)
	}
	return nil
}

// Ledger returns a copy of every points entry written so far.
func (h *MemoryHousehold) Ledger() []models.PointsEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.PointsEntry(nil), h.ledger...)
}

// GetChore returns a copy of the chore.
func (h *MemoryHousehold) GetChore(_ context.Context, choreID string) (*models.Chore, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	chore, ok := h.chores[choreID]
	if !ok {
		return nil, errChoreNotFound
	}
	return &chore, nil
}

// RevertChoreCompletion returns a completed chore to the unclaimed pool.
func (h *MemoryHousehold) RevertChoreCompletion(_ context.Context, choreID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	chore, ok := h.chores[choreID]
	if !ok {
		return errChoreNotFound
	}
	if chore.Status == models.ChoreStatusComplete {
		chore.Status = models.ChoreStatusUnclaimed
		chore.ClaimantEmail = nil
		h.chores[choreID] = chore
	}
	return nil
}

// FinalizeChoreCompletion leaves the chore complete; there is nothing else to record in memory.
func (h *MemoryHousehold) FinalizeChoreCompletion(_ context.Context, choreID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.chores[choreID]; !ok {
		return errChoreNotFound
	}
	return nil
}

// EligibleVoters lists home members other than excludeEmail.
func (h *MemoryHousehold) EligibleVoters(_ context.Context, homeID, excludeEmail string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	voters := make([]string, 0, len(h.members[homeID]))
	for _, email := range h.members[homeID] {
		if !strings.EqualFold(email, excludeEmail) {
			voters = append(voters, email)
		}
	}
	return voters, nil
}

// IsMember reports whether email belongs to the home.
func (h *MemoryHousehold) IsMember(_ context.Context, homeID, email string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, member := range h.members[homeID] {
		if strings.EqualFold(member, email) {
			return true, nil
		}
	}
	return false, nil
}

// CreditPoints records a credit unless the same entry already exists.
func (h *MemoryHousehold) CreditPoints(_ context.Context, email, homeID string, points int, refID string) error {
	h.appendLedger(models.PointsEntry{HomeID: homeID, Email: email, Delta: points, Reason: PointsReasonDisputeRejected, RefID: refID})
	return nil
}

// DebitPoints records a debit unless the same entry already exists.
func (h *MemoryHousehold) DebitPoints(_ context.Context, email, homeID string, points int, refID string) error {
	h.appendLedger(models.PointsEntry{HomeID: homeID, Email: email, Delta: -points, Reason: PointsReasonDisputeApproved, RefID: refID})
	return nil
}

func (h *MemoryHousehold) appendLedger(entry models.PointsEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.ledger {
		if existing.RefID == entry.RefID && existing.Email == entry.Email && existing.Reason == entry.Reason {
			return
		}
	}
	h.ledger = append(h.ledger, entry)
}
