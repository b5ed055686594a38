package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deadline-planner/internal/metrics"
)

// DefaultRetention is how long completed tasks are kept.
const DefaultRetention = 30 * 24 * time.Hour

type RetentionReport struct {
	Cutoff  time.Time
	Deleted int64
}

// RetentionSweeper purges completed tasks not modified within the window.
// Cancelled and open tasks are never touched.
type RetentionSweeper struct {
	store   RetentionStore
	window  time.Duration
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRetentionSweeper(store RetentionStore, window time.Duration, log *zap.Logger, m *metrics.Metrics) *RetentionSweeper {
	if window <= 0 {
		window = DefaultRetention
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetentionSweeper{store: store, window: window, now: time.Now, log: log, metrics: m}
}

// WithClock swaps the time source.
func (s *RetentionSweeper) WithClock(now func() time.Time) *RetentionSweeper {
	s.now = now
	return s
}

func (s *RetentionSweeper) Run(ctx context.Context) (RetentionReport, error) {
	return s.RunWindow(ctx, s.window)
}

// RunWindow purges with a one-off window instead of the configured one.
func (s *RetentionSweeper) RunWindow(ctx context.Context, window time.Duration) (RetentionReport, error) {
	if window <= 0 {
		return RetentionReport{}, NewValidationError("days", "must be positive")
	}

	start := time.Now()
	report := RetentionReport{Cutoff: s.now().Add(-window)}

	deleted, err := s.store.DeleteCompletedBefore(ctx, report.Cutoff)
	s.metrics.ObserveSweep("retention", time.Since(start), err)
	if err != nil {
		s.log.Error("retention sweep failed", zap.Time("cutoff", report.Cutoff), zap.Error(err))
		return report, fmt.Errorf("retention sweep: %w: %w", ErrStoreUnavailable, err)
	}
	report.Deleted = deleted
	s.metrics.Purged(deleted)

	s.log.Info("retention sweep finished",
		zap.Time("cutoff", report.Cutoff),
		zap.Int64("deleted", deleted),
		zap.Duration("took", time.Since(start)),
	)
	return report, nil
}
