package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CounterSweeper drops rate limit counters whose window has closed
type CounterSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenCleaner drops revocation records of tokens that have expired anyway
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically sweeps expired counters and revoked tokens.
// A failed sweep is logged and retried on the next tick.
type CleanupManager struct {
	counters CounterSweeper
	tokens   TokenCleaner
	clock    clockwork.Clock
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. Either sweeper may be nil.
func NewCleanupManager(
	counters CounterSweeper,
	tokens TokenCleaner,
	clock clockwork.Clock,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		counters: counters,
		tokens:   tokens,
		clock:    clock,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the periodic cleanup until Stop is called or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := cm.clock.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.Chan():
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep of both stores
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cm.counters != nil {
		rows, err := cm.counters.DeleteExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to sweep expired counters", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("expired counters swept", slog.Int64("rows_deleted", rows))
		}
	}

	if cm.tokens != nil {
		rows, err := cm.tokens.CleanupExpiredTokens(cleanupCtx, cm.clock.Now())
		if err != nil {
			cm.logger.Error("failed to cleanup expired tokens", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("expired token cleanup completed", slog.Int64("rows_deleted", rows))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
