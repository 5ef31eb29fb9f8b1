package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairlines/authcore/internal/lockout"
)

// SessionPruner removes expired session rows.
type SessionPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically prunes expired sessions from the store
// and stale lockout entries from memory. Revoked sessions are kept
// until they expire so their token hashes stay visible to reuse
// detection.
type CleanupManager struct {
	sessions SessionPruner
	tracker  *lockout.Tracker
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions SessionPruner,
	tracker *lockout.Tracker,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions: sessions,
		tracker:  tracker,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.sessions.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to prune expired sessions", slog.Any("error", err))
	} else if rowsDeleted > 0 {
		cm.logger.Info("expired session cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}

	if purged := cm.tracker.Purge(); purged > 0 {
		cm.logger.Info("stale lockout entries purged", slog.Int("entries", purged))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
