package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

type rosterProviderStub struct {
	members map[string][]string
	calls   int32
	gate    chan struct{}
	err     error
}

func (p *rosterProviderStub) EligibleVoters(ctx context.Context, homeID, excludeEmail string) ([]string, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.gate != nil {
		<-p.gate
	}
	if p.err != nil {
		return nil, p.err
	}
	result := make([]string, 0)
	for _, email := range p.members[homeID] {
		if email != excludeEmail {
			result = append(result, email)
		}
	}
	return result, nil
}

func (p *rosterProviderStub) IsMember(ctx context.Context, homeID, email string) (bool, error) {
	for _, member := range p.members[homeID] {
		if member == email {
			return true, nil
		}
	}
	return false, nil
}

type memoryRosterStore struct {
	mu      sync.Mutex
	rosters map[string][]string
	failGet bool
}

func newMemoryRosterStore() *memoryRosterStore {
	return &memoryRosterStore{rosters: make(map[string][]string)}
}

func (s *memoryRosterStore) GetRoster(ctx context.Context, homeID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errors.New("redis down")
	}
	roster, ok := s.rosters[homeID]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return append([]string(nil), roster...), nil
}

func (s *memoryRosterStore) SetRoster(ctx context.Context, homeID string, members []string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roster := append([]string(nil), members...)
	sort.Strings(roster)
	s.rosters[homeID] = roster
	return nil
}

func (s *memoryRosterStore) DeleteRoster(ctx context.Context, homeIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, homeID := range homeIDs {
		delete(s.rosters, homeID)
	}
	return nil
}

func TestMembershipServiceCachesRoster(t *testing.T) {
	provider := &rosterProviderStub{members: map[string][]string{"home-1": {"claimant@home.test", "alice@home.test", "bob@home.test"}}}
	cache := NewRosterCache(newMemoryRosterStore(), NewMetricsService(), time.Minute, nil, true)
	svc := NewMembershipService(provider, cache, nil)
	ctx := context.Background()

	voters, err := svc.EligibleVoters(ctx, "home-1", "CLAIMANT@home.test")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice@home.test", "bob@home.test"}, voters)

	member, err := svc.IsMember(ctx, "home-1", "Bob@home.test")
	require.NoError(t, err)
	assert.True(t, member)
	assert.EqualValues(t, 1, atomic.LoadInt32(&provider.calls))

	require.NoError(t, svc.Invalidate(ctx, "home-1"))
	_, err = svc.EligibleVoters(ctx, "home-1", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&provider.calls))
}

func TestMembershipServiceCachesEmptyRoster(t *testing.T) {
	provider := &rosterProviderStub{members: map[string][]string{}}
	svc := NewMembershipService(provider, NewRosterCache(newMemoryRosterStore(), nil, 0, nil, true), nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		voters, err := svc.EligibleVoters(ctx, "home-empty", "")
		require.NoError(t, err)
		assert.Empty(t, voters)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&provider.calls))
}

func TestMembershipServiceSharesConcurrentLoads(t *testing.T) {
	provider := &rosterProviderStub{
		members: map[string][]string{"home-1": {"alice@home.test"}},
		gate:    make(chan struct{}),
	}
	svc := NewMembershipService(provider, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			member, err := svc.IsMember(context.Background(), "home-1", "alice@home.test")
			assert.NoError(t, err)
			assert.True(t, member)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&provider.calls) >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(provider.gate)
	wg.Wait()

	assert.Less(t, atomic.LoadInt32(&provider.calls), int32(8))
}

func TestMembershipServiceFallsBackWhenCacheFails(t *testing.T) {
	provider := &rosterProviderStub{members: map[string][]string{"home-1": {"alice@home.test"}}}
	store := newMemoryRosterStore()
	store.failGet = true
	svc := NewMembershipService(provider, NewRosterCache(store, nil, 0, nil, true), nil)

	member, err := svc.IsMember(context.Background(), "home-1", "alice@home.test")
	require.NoError(t, err)
	assert.True(t, member)
}

func TestMembershipServiceWithoutCache(t *testing.T) {
	provider := &rosterProviderStub{err: errors.New("db down")}
	svc := NewMembershipService(provider, nil, nil)

	_, err := svc.EligibleVoters(context.Background(), "home-1", "x@home.test")
	assert.Error(t, err)
}

func TestRosterCacheDisabledAlwaysMisses(t *testing.T) {
	store := newMemoryRosterStore()
	cache := NewRosterCache(store, nil, time.Minute, nil, false)
	cache.Store(context.Background(), "home-1", []string{"a@home.test"})

	_, hit := cache.Lookup(context.Background(), "home-1")
	assert.False(t, hit)
	assert.Empty(t, store.rosters)
	assert.NoError(t, cache.Invalidate(context.Background(), "home-1"))
}

func TestMembershipServiceRefreshesCachedRosterOnMiss(t *testing.T) {
	provider := &rosterProviderStub{members: map[string][]string{"home-1": {"alice@home.test"}}}
	svc := NewMembershipService(provider, NewRosterCache(newMemoryRosterStore(), nil, time.Hour, nil, true), nil)
	ctx := context.Background()

	_, err := svc.EligibleVoters(ctx, "home-1", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&provider.calls))

	provider.members["home-1"] = append(provider.members["home-1"], "dave@home.test")
	member, err := svc.IsMember(ctx, "home-1", "Dave@home.test")
	require.NoError(t, err)
	assert.True(t, member)
	assert.EqualValues(t, 2, atomic.LoadInt32(&provider.calls))

	voters, err := svc.EligibleVoters(ctx, "home-1", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice@home.test", "dave@home.test"}, voters)
	assert.EqualValues(t, 2, atomic.LoadInt32(&provider.calls))

	member, err = svc.IsMember(ctx, "home-1", "stranger@else.test")
	require.NoError(t, err)
	assert.False(t, member)
	assert.EqualValues(t, 3, atomic.LoadInt32(&provider.calls))
}

func TestMembershipServiceLoadIgnoresCallerCancellation(t *testing.T) {
	provider := &rosterProviderStub{members: map[string][]string{"home-1": {"alice@home.test"}}}
	svc := NewMembershipService(cancelAwareMembers{MembershipProvider: provider}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	member, err := svc.IsMember(ctx, "home-1", "alice@home.test")
	require.NoError(t, err)
	assert.True(t, member)
}
