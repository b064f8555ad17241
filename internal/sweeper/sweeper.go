// Package sweeper runs the scheduled maintenance pass: reclaiming
// expired counters from the store and compacting indexes whose entries
// point at deleted records. Both are optional hygiene; reads already
// tolerate expired keys and dangling index entries.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fieldnotes/pkg/config"
	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
)

var (
	expiredReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldnotes_sweeper_expired_reclaimed_total",
		Help: "Expired keys reclaimed by the sweeper.",
	})
	indexCompacted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldnotes_sweeper_index_entries_removed_total",
		Help: "Dangling index entries removed by the sweeper.",
	})
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnotes_sweeper_runs_total",
		Help: "Sweeper runs by outcome.",
	}, []string{"outcome"})
)

// Sweeper owns the scheduled pass over one store.
type Sweeper struct {
	store kv.Store
	cfg   config.SweeperConfig
}

// New returns a sweeper for the store. The store need not implement
// expiry sweeping; the index compaction half still applies.
func New(store kv.Store, cfg config.SweeperConfig) *Sweeper {
	return &Sweeper{store: store, cfg: cfg}
}

// Start launches the cron scheduler if enabled. Returns a cancel func.
func (s *Sweeper) Start(ctx context.Context) (context.CancelFunc, error) {
	if !s.cfg.Enabled {
		logger.Info("sweeper_disabled")
		return func() {}, nil
	}

	cronExpr := s.cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweeper_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid sweeper cron expression: %s", cronExpr)
	}

	logger.Info("sweeper_enabled", "cron", cronExpr, "batch", s.cfg.BatchSize, "dry_run", s.cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression and
// sleeps until then.
func (s *Sweeper) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweeper_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("sweeper_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := s.RunOnce(ctx); err != nil {
				logger.Error("sweeper_run_error", "error", err)
				runsTotal.WithLabelValues("error").Inc()
			} else {
				runsTotal.WithLabelValues("ok").Inc()
			}
		case <-ctx.Done():
			logger.Info("sweeper_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single maintenance pass: expired-key reclamation
// in batches, then index compaction.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := time.Now()
	expired, err := s.sweepExpired(ctx)
	if err != nil {
		return err
	}
	removed, err := s.compactIndexes(ctx)
	if err != nil {
		return err
	}
	logger.Info("sweeper_run_complete",
		"expired_reclaimed", expired,
		"index_entries_removed", removed,
		"elapsed", time.Since(start).String())
	return nil
}

func (s *Sweeper) sweepExpired(ctx context.Context) (int, error) {
	sw, ok := s.store.(kv.ExpirySweeper)
	if !ok {
		return 0, nil
	}
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := sw.SweepExpired(ctx, batch)
		if err != nil {
			return total, err
		}
		total += n
		expiredReclaimed.Add(float64(n))
		if n < batch {
			return total, nil
		}
	}
}

// compactIndexes removes index entries whose record is gone. Reads
// already skip these; compaction just keeps long-lived indexes from
// accumulating dead keys.
func (s *Sweeper) compactIndexes(ctx context.Context) (int, error) {
	listKeys, err := s.store.Keys(ctx, keys.IndexPrefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, lk := range listKeys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		items, err := s.store.LRange(ctx, lk, 0, -1)
		if err != nil {
			return removed, err
		}
		for _, rk := range items {
			_, gerr := s.store.Get(ctx, rk)
			if gerr == nil {
				continue
			}
			if !errors.Is(gerr, kv.ErrNotFound) {
				return removed, gerr
			}
			if s.cfg.DryRun {
				logger.Info("sweeper_would_remove", "index", lk, "key", rk)
				continue
			}
			if err := s.store.LRem(ctx, lk, 0, rk); err != nil {
				return removed, err
			}
			removed++
			indexCompacted.Inc()
		}
	}
	return removed, nil
}
