package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"deadline-planner/internal/metrics"
	"deadline-planner/internal/repository"
)

// Sender delivers a text to a chat. Implementations wrap ErrUndeliverable
// when the endpoint refused the recipient for good.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// DispatchRequest asks for the reminder of one task to be delivered.
type DispatchRequest struct {
	TaskID string
	ChatID int64
}

type Outcome string

const (
	// OutcomeSent means the message went out and the flag is set.
	OutcomeSent Outcome = "sent"
	// OutcomeSkipped means nothing was due: the reminder was already sent,
	// another dispatcher holds it, or the task no longer qualifies.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeGone means the task was deleted before delivery.
	OutcomeGone Outcome = "gone"
)

// errLeaseLost stops retries once another dispatcher or a deadline change
// took the lease away.
var errLeaseLost = errors.New("reminder lease lost")

// Ack reports what a dispatch did.
type Ack struct {
	TaskID   string
	Outcome  Outcome
	Attempts int
}

type DispatcherConfig struct {
	SendTimeout    time.Duration
	MaxAttempts    int
	Lease          time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	// A single attempt must fit into the lease.
	if c.Lease <= c.SendTimeout {
		c.Lease = 2 * c.SendTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Dispatcher delivers deadline reminders at most once per task. A task is
// claimed through a short lease tagged with a per-dispatch token before
// sending. The lease is renewed before every retry, and the reminder flag is
// set only after the endpoint accepted the message and only while the token
// still holds the lease.
type Dispatcher struct {
	store    NotificationStore
	sender   Sender
	reminder *ReminderService
	cfg      DispatcherConfig
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func WithDispatcherLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(store NotificationStore, sender Sender, reminder *ReminderService, cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		sender:   sender,
		reminder: reminder,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the reminder for req.TaskID unless it was already sent.
// A failed delivery leaves the flag unset and returns a
// *TransientDispatchError; other errors come from the store.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (Ack, error) {
	ack := Ack{TaskID: req.TaskID, Outcome: OutcomeSkipped}
	log := d.log.With(zap.String("task_id", req.TaskID), zap.Int64("chat_id", req.ChatID))

	now := d.now()
	token := uuid.NewString()
	claimed, err := d.store.ClaimNotification(ctx, req.TaskID, token, now, now.Add(d.cfg.Lease))
	if err != nil {
		return ack, err
	}
	if !claimed {
		log.Debug("reminder already sent or in flight")
		d.metrics.Dispatched(metrics.OutcomeSkipped)
		return ack, nil
	}

	// From here on the lease must be settled even if ctx is cancelled.
	settleCtx := context.WithoutCancel(ctx)

	task, err := d.store.Get(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("task deleted before reminder")
			ack.Outcome = OutcomeGone
			d.metrics.Dispatched(metrics.OutcomeGone)
			return ack, nil
		}
		d.release(settleCtx, log, req.TaskID, token)
		return ack, err
	}

	if !task.ShouldNotify(now) {
		d.release(settleCtx, log, req.TaskID, token)
		log.Debug("task no longer needs a reminder", zap.String("status", string(task.Status)))
		d.metrics.Dispatched(metrics.OutcomeSkipped)
		return ack, nil
	}

	text := d.reminder.DeadlineMessage(task, now)
	attempts, err := d.send(ctx, log, req, token, text)
	ack.Attempts = attempts
	if errors.Is(err, errLeaseLost) {
		log.Info("reminder lease lost before delivery", zap.Int("attempts", attempts))
		d.metrics.Dispatched(metrics.OutcomeSkipped)
		return ack, nil
	}
	if err != nil {
		d.release(settleCtx, log, req.TaskID, token)
		log.Warn("reminder not delivered", zap.Int("attempts", attempts), zap.Error(err))
		d.metrics.Dispatched(metrics.OutcomeFailed)
		return ack, &TransientDispatchError{TaskID: req.TaskID, Attempts: attempts, Err: err}
	}

	marked, err := d.store.MarkNotificationSent(settleCtx, req.TaskID, token)
	if err != nil {
		// The message is out; the lease expires and a later sweep may repeat it.
		log.Error("reminder sent but flag not stored", zap.Error(err))
		return ack, err
	}
	if !marked {
		// The deadline moved while sending; the new one gets its own reminder.
		log.Info("reminder sent but lease no longer held, flag left unset")
	}

	ack.Outcome = OutcomeSent
	d.metrics.Dispatched(metrics.OutcomeSent)
	log.Info("reminder sent",
		zap.Int("attempts", attempts),
		zap.Bool("overdue", task.IsOverdue(now)),
	)
	return ack, nil
}

func (d *Dispatcher) send(ctx context.Context, log *zap.Logger, req DispatchRequest, token, text string) (int, error) {
	attempts := 0
	op := func() error {
		if attempts > 0 {
			held, err := d.store.RenewNotification(ctx, req.TaskID, token, d.now().Add(d.cfg.Lease))
			if err != nil {
				return backoff.Permanent(err)
			}
			if !held {
				return backoff.Permanent(errLeaseLost)
			}
		}
		attempts++
		d.metrics.SendAttempt()

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()

		err := d.sender.Send(sendCtx, req.ChatID, text)
		if errors.Is(err, ErrUndeliverable) {
			return backoff.Permanent(err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.cfg.InitialBackoff
	exp.MaxInterval = d.cfg.MaxBackoff
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(d.cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("send failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	return attempts, err
}

func (d *Dispatcher) release(ctx context.Context, log *zap.Logger, taskID, token string) {
	if err := d.store.ReleaseNotification(ctx, taskID, token); err != nil {
		log.Error("release reminder lease", zap.Error(err))
	}
}
