package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deadline-planner/internal/metrics"
)

// ReminderDispatcher delivers one reminder.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (Ack, error)
}

// SweepReport summarises one deadline sweep run.
type SweepReport struct {
	RunID      string
	CheckedAt  time.Time
	Duration   time.Duration
	Candidates int
	Enqueued   int
	Sent       int
	Skipped    int
	Failed     int
	NoAddress  int
	// Aborted is set when the run stopped early on cancellation.
	Aborted bool
}

// DeadlineSweeper periodically finds tasks whose reminder is due and hands
// them to the dispatcher.
type DeadlineSweeper struct {
	store       NotificationStore
	dispatcher  ReminderDispatcher
	concurrency int
	now         func() time.Time
	log         *zap.Logger
	metrics     *metrics.Metrics
}

type SweeperOption func(*DeadlineSweeper)

func WithSweepConcurrency(n int) SweeperOption {
	return func(s *DeadlineSweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *DeadlineSweeper) { s.now = now }
}

func WithSweepLogger(log *zap.Logger) SweeperOption {
	return func(s *DeadlineSweeper) { s.log = log }
}

func WithSweepMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *DeadlineSweeper) { s.metrics = m }
}

func NewDeadlineSweeper(store NotificationStore, dispatcher ReminderDispatcher, opts ...SweeperOption) *DeadlineSweeper {
	s := &DeadlineSweeper{
		store:       store,
		dispatcher:  dispatcher,
		concurrency: 4,
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sweep. Failures of single tasks are counted and logged;
// only a failing candidate query aborts the run with ErrStoreUnavailable.
// On cancellation no new dispatches start, in-flight ones settle, and the
// report comes back marked Aborted together with the context error.
func (s *DeadlineSweeper) Run(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	now := s.now()
	report := SweepReport{RunID: uuid.NewString(), CheckedAt: now}
	log := s.log.With(zap.String("run_id", report.RunID))

	if err := ctx.Err(); err != nil {
		report.Aborted = true
		return report, err
	}

	candidates, err := s.store.ListNotificationCandidates(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		s.metrics.ObserveSweep("deadline", report.Duration, err)
		log.Error("deadline sweep: list candidates", zap.Error(err))
		return report, fmt.Errorf("list candidates: %w: %w", ErrStoreUnavailable, err)
	}
	report.Candidates = len(candidates)

	var enqueued, sent, skipped, failed atomic.Int64
	var aborted atomic.Bool
	g := errgroup.Group{}
	g.SetLimit(s.concurrency)

	for i := range candidates {
		if ctx.Err() != nil {
			aborted.Store(true)
			break
		}

		task := &candidates[i]
		if !task.ShouldNotify(now) {
			continue
		}
		chatID, ok := task.User.ChatID()
		if !ok {
			report.NoAddress++
			log.Debug("owner has no chat, reminder skipped", zap.String("task_id", task.ID))
			continue
		}

		req := DispatchRequest{TaskID: task.ID, ChatID: chatID}
		g.Go(func() error {
			// The slot may free up only after cancellation.
			if ctx.Err() != nil {
				aborted.Store(true)
				return nil
			}
			enqueued.Add(1)
			ack, err := s.dispatcher.Dispatch(ctx, req)
			switch {
			case err != nil:
				failed.Add(1)
				var transient *TransientDispatchError
				if !errors.As(err, &transient) {
					log.Warn("deadline sweep: dispatch", zap.String("task_id", req.TaskID), zap.Error(err))
				}
			case ack.Outcome == OutcomeSent:
				sent.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Enqueued = int(enqueued.Load())
	report.Sent = int(sent.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())
	report.Aborted = aborted.Load()
	report.Duration = time.Since(start)

	var runErr error
	if report.Aborted {
		runErr = ctx.Err()
	}
	s.metrics.ObserveSweep("deadline", report.Duration, runErr)

	log.Info("deadline sweep finished",
		zap.Time("checked_at", report.CheckedAt),
		zap.Int("candidates", report.Candidates),
		zap.Int("enqueued", report.Enqueued),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("no_address", report.NoAddress),
		zap.Bool("aborted", report.Aborted),
		zap.Duration("took", report.Duration),
	)
	return report, runErr
}
