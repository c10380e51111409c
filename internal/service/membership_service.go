package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const rosterLoadTimeout = 5 * time.Second

// MembershipProvider is the external source of home membership.
type MembershipProvider interface {
	EligibleVoters(ctx context.Context, homeID, excludeEmail string) ([]string, error)
	IsMember(ctx context.Context, homeID, email string) (bool, error)
}

// MembershipService answers eligibility questions from a cached home roster.
// Concurrent misses for one home share a single provider load. A member added
// after the roster was cached is picked up by the refresh in IsMember; a
// removed member stays eligible until the cached entry expires.
type MembershipService struct {
	provider MembershipProvider
	cache    *RosterCache
	loads    singleflight.Group
	logger   *zap.Logger
}

// NewMembershipService constructs the service. cache may be nil.
func NewMembershipService(provider MembershipProvider, cache *RosterCache, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{provider: provider, cache: cache, logger: logger}
}

// EligibleVoters returns every home member except excludeEmail.
func (s *MembershipService) EligibleVoters(ctx context.Context, homeID, excludeEmail string) ([]string, error) {
	roster, _, err := s.roster(ctx, homeID)
	if err != nil {
		return nil, err
	}
	voters := make([]string, 0, len(roster))
	for _, email := range roster {
		if !strings.EqualFold(email, excludeEmail) {
			voters = append(voters, email)
		}
	}
	return voters, nil
}

// IsMember reports whether email belongs to the home. A miss against a cached
// roster reloads it from the provider once before answering.
func (s *MembershipService) IsMember(ctx context.Context, homeID, email string) (bool, error) {
	roster, cached, err := s.roster(ctx, homeID)
	if err != nil {
		return false, err
	}
	if _, ok := findEmail(roster, email); ok || !cached {
		return ok, nil
	}

	if err := s.Invalidate(ctx, homeID); err != nil {
		s.logger.Warn("roster refresh could not clear cache", zap.String("home_id", homeID), zap.Error(err))
	}
	roster, err = s.load(ctx, homeID)
	if err != nil {
		return false, err
	}
	_, ok := findEmail(roster, email)
	return ok, nil
}

// Invalidate drops the cached roster for a home.
func (s *MembershipService) Invalidate(ctx context.Context, homeID string) error {
	return s.cache.Invalidate(ctx, homeID)
}

// roster reports whether the result came from the cache.
func (s *MembershipService) roster(ctx context.Context, homeID string) ([]string, bool, error) {
	if cached, hit := s.cache.Lookup(ctx, homeID); hit {
		return cached, true, nil
	}
	roster, err := s.load(ctx, homeID)
	return roster, false, err
}

func (s *MembershipService) load(ctx context.Context, homeID string) ([]string, error) {
	loaded, err, _ := s.loads.Do(homeID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rosterLoadTimeout)
		defer cancel()
		roster, err := s.provider.EligibleVoters(loadCtx, homeID, "")
		if err != nil {
			return nil, fmt.Errorf("load home roster %s: %w", homeID, err)
		}
		s.cache.Store(loadCtx, homeID, roster)
		return roster, nil
	})
	if err != nil {
		return nil, err
	}
	return loaded.([]string), nil
}
