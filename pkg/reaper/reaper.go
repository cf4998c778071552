// Package reaper removes expired memory records on demand or on a schedule.
//
// Records stored without an expiry (the cross-learning strategy) are never
// touched. An optional SessionJanitor collaborator cleans auxiliary session
// state in the same sweep, so one scheduled job covers both.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/memstrat/memstrat-go/pkg/logging"
	"github.com/memstrat/memstrat-go/pkg/memory"
)

// SessionJanitor cleans conversation session state alongside memory expiry.
type SessionJanitor interface {
	// CleanupSessions removes inactive and stale sessions, returning how
	// many of each were removed.
	CleanupSessions(ctx context.Context, now time.Time) (inactive, stale int64, err error)
}

// CleanupStats reports one sweep.
type CleanupStats struct {
	Expired  int64 `json:"expired"`
	Inactive int64 `json:"inactive"`
	Stale    int64 `json:"stale"`
	Total    int64 `json:"total"`
}

// Config configures a Reaper.
type Config struct {
	// Janitor, when set, is invoked after memory expiry in each sweep.
	Janitor SessionJanitor

	// DryRun reports what a sweep would remove without deleting anything.
	DryRun bool

	Logger logging.Logger
}

// Reaper sweeps expired records out of a store.
type Reaper struct {
	store   memory.Store
	janitor SessionJanitor
	dryRun  bool
	logger  logging.Logger
}

// New creates a Reaper over the given store.
func New(store memory.Store, cfg *Config) *Reaper {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Reaper{
		store:   store,
		janitor: cfg.Janitor,
		dryRun:  cfg.DryRun,
		logger:  logger,
	}
}

// Sweep deletes every expired record and, when a janitor is configured,
// cleans session state. In dry-run mode it reports the expired count
// without deleting and skips the janitor.
func (r *Reaper) Sweep(ctx context.Context) (*CleanupStats, error) {
	now := time.Now()
	stats := &CleanupStats{}

	if r.dryRun {
		storeStats, err := r.store.Stats(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("count expired records: %w", err)
		}
		stats.Expired = storeStats.CleanupNeeded
		stats.Total = stats.Expired
		r.logger.Info("dry-run sweep", "would_expire", stats.Expired)
		return stats, nil
	}

	expired, err := r.store.DeleteExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("delete expired records: %w", err)
	}
	stats.Expired = expired

	if r.janitor != nil {
		inactive, stale, err := r.janitor.CleanupSessions(ctx, now)
		if err != nil {
			r.logger.Warn("session cleanup failed", "error", err)
		} else {
			stats.Inactive = inactive
			stats.Stale = stale
		}
	}

	stats.Total = stats.Expired + stats.Inactive + stats.Stale
	r.logger.Info("sweep complete",
		"expired", stats.Expired, "inactive", stats.Inactive,
		"stale", stats.Stale, "total", stats.Total)
	return stats, nil
}

// Run sweeps at each interval until the context is cancelled. Sweep errors
// are logged and the loop continues.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("scheduled sweep failed", "error", err)
			}
		}
	}
}
