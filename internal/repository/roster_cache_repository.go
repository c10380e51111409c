package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

// rosterSentinel keeps an empty home's roster key alive so it caches as
// empty instead of missing. It can never collide with an email.
const rosterSentinel = "\x00"

// RosterCacheRepository keeps each home's member emails in a Redis set.
type RosterCacheRepository struct {
	client redis.Cmdable
	prefix string
}

// NewRosterCacheRepository constructs the repository. Keys are
// prefix + "home:<id>:members".
func NewRosterCacheRepository(client redis.Cmdable, prefix string) *RosterCacheRepository {
	return &RosterCacheRepository{client: client, prefix: prefix}
}

func (r *RosterCacheRepository) key(homeID string) string {
	return fmt.Sprintf("%shome:%s:members", r.prefix, homeID)
}

// GetRoster returns the cached members in sorted order, or ErrCacheMiss.
func (r *RosterCacheRepository) GetRoster(ctx context.Context, homeID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.key(homeID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis smembers %s: %w", homeID, err)
	}
	if len(members) == 0 {
		return nil, appErrors.ErrCacheMiss
	}

	roster := make([]string, 0, len(members)-1)
	for _, member := range members {
		if member != rosterSentinel {
			roster = append(roster, member)
		}
	}
	sort.Strings(roster)
	return roster, nil
}

// SetRoster replaces the cached roster atomically and sets its expiry.
func (r *RosterCacheRepository) SetRoster(ctx context.Context, homeID string, members []string, ttl time.Duration) error {
	key := r.key(homeID)
	values := make([]interface{}, 0, len(members)+1)
	values = append(values, rosterSentinel)
	for _, member := range members {
		values = append(values, member)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, values...)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache roster %s: %w", homeID, err)
	}
	return nil
}

// DeleteRoster drops the cached rosters of the given homes.
func (r *RosterCacheRepository) DeleteRoster(ctx context.Context, homeIDs ...string) error {
	if len(homeIDs) == 0 {
		return nil
	}
	keys := make([]string, len(homeIDs))
	for i, homeID := range homeIDs {
		keys[i] = r.key(homeID)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete rosters: %w", err)
	}
	return nil
}
