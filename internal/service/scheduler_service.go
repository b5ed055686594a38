package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a background run. ctx is cancelled when the run times out or the
// scheduler stops.
type Job func(ctx context.Context) error

var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SchedulerService wraps cron-based jobs. A job whose previous run is still
// going is skipped, and a panicking job is logged and recovered.
type SchedulerService struct {
	cron *cron.Cron
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSchedulerService(loc *time.Location, log *zap.Logger) *SchedulerService {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log: log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())

	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(specParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule registers job under a cron spec ("@every 5m", "0 0 3 * * *" or a
// classic five-field spec). Each run gets its own timeout.
func (s *SchedulerService) Schedule(name, spec string, timeout time.Duration, job Job) (cron.EntryID, error) {
	schedule, err := specParser.Parse(spec)
	if err != nil {
		return 0, fmt.Errorf("schedule %s: invalid spec %q: %w", name, spec, err)
	}
	return s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(name, timeout, job) })), nil
}

// Next reports when the entry runs next; zero if the scheduler is stopped.
func (s *SchedulerService) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *SchedulerService) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *SchedulerService) run(name string, timeout time.Duration, job Job) {
	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		if s.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			s.log.Info("scheduled job stopped on shutdown", zap.String("job", name))
			return
		}
		s.log.Error("scheduled job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	s.log.Debug("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
