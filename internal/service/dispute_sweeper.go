package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chore-dispute-api/pkg/config"
	"github.com/noah-isme/chore-dispute-api/pkg/lock"
)

const sweeperLockName = "dispute-sweeper"

// SweepLock elects a single sweeper across replicas. acquired=false means
// another replica holds the lock for this tick.
type SweepLock func(ctx context.Context) (release func(), acquired bool, err error)

// RedisSweepLock adapts a Redis locker to SweepLock.
func RedisSweepLock(locker *lock.RedisLocker, ttl time.Duration, logger *zap.Logger) SweepLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) (func(), bool, error) {
		lease, err := locker.TryAcquire(ctx, sweeperLockName, ttl)
		if err != nil || lease == nil {
			return nil, false, err
		}
		return func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := lease.Release(releaseCtx); err != nil {
				logger.Debug("sweeper lock release failed", zap.Error(err))
			}
		}, true, nil
	}
}

type sweepTarget interface {
	ResolveExpired(ctx context.Context, limit int) (int, error)
	RedispatchEffects(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// DisputeSweeper closes disputes whose deadline passed with nobody polling
// and retries side effects that never finished.
type DisputeSweeper struct {
	target sweepTarget
	cfg    config.DisputeConfig
	lock   SweepLock
	logger *zap.Logger
}

// NewDisputeSweeper constructs a sweeper. lock may be nil for single-replica deployments.
func NewDisputeSweeper(target sweepTarget, cfg config.DisputeConfig, lock SweepLock, logger *zap.Logger) *DisputeSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	if cfg.EffectsGrace <= 0 {
		cfg.EffectsGrace = time.Minute
	}
	return &DisputeSweeper{target: target, cfg: cfg, lock: lock, logger: logger}
}

// Start runs RunOnce on every tick until ctx is cancelled.
func (s *DisputeSweeper) Start(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sweep. It reports whether this replica swept.
func (s *DisputeSweeper) RunOnce(ctx context.Context) bool {
	if s.lock != nil {
		release, acquired, err := s.lock(ctx)
		if err != nil {
			s.logger.Sugar().Warnw("sweeper lock unavailable", "error", err)
			return false
		}
		if !acquired {
			return false
		}
		defer release()
	}

	resolved, err := s.target.ResolveExpired(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Sugar().Warnw("expired dispute sweep failed", "error", err)
	}
	redispatched, err := s.target.RedispatchEffects(ctx, s.cfg.EffectsGrace, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Sugar().Warnw("effects redispatch failed", "error", err)
	}
	if resolved > 0 || redispatched > 0 {
		s.logger.Sugar().Infow("dispute sweep finished", "resolved", resolved, "redispatched", redispatched)
	}
	return true
}
