package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

// RosterStore persists cached home rosters. GetRoster returns ErrCacheMiss
// when nothing is cached.
type RosterStore interface {
	GetRoster(ctx context.Context, homeID string) ([]string, error)
	SetRoster(ctx context.Context, homeID string, members []string, ttl time.Duration) error
	DeleteRoster(ctx context.Context, homeIDs ...string) error
}

// RosterCache wraps a RosterStore with lookup metrics. Cache failures are
// logged and reported as misses; a nil or disabled cache always misses.
type RosterCache struct {
	store   RosterStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewRosterCache constructs a roster cache.
func NewRosterCache(store RosterStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *RosterCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCache{store: store, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *RosterCache) Enabled() bool {
	return c != nil && c.enabled && c.store != nil
}

// Lookup returns the cached roster for a home and whether it was a hit.
func (c *RosterCache) Lookup(ctx context.Context, homeID string) ([]string, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	roster, err := c.store.GetRoster(ctx, homeID)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("roster cache lookup failed", zap.String("home_id", homeID), zap.Error(err))
		}
		return nil, false
	}
	return roster, true
}

// Store caches a roster. Failures are logged only.
func (c *RosterCache) Store(ctx context.Context, homeID string, members []string) {
	if !c.Enabled() {
		return
	}
	if err := c.store.SetRoster(ctx, homeID, members, c.ttl); err != nil {
		c.logger.Warn("roster cache store failed", zap.String("home_id", homeID), zap.Error(err))
	}
}

// Invalidate drops the cached rosters for the given homes.
func (c *RosterCache) Invalidate(ctx context.Context, homeIDs ...string) error {
	if !c.Enabled() || len(homeIDs) == 0 {
		return nil
	}
	if err := c.store.DeleteRoster(ctx, homeIDs...); err != nil {
		c.logger.Warn("roster cache invalidate failed", zap.Strings("home_ids", homeIDs), zap.Error(err))
		return err
	}
	return nil
}
