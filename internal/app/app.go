// Package app wires configuration, storage and services together.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"deadline-planner/internal/config"
	"deadline-planner/internal/metrics"
	"deadline-planner/internal/repository"
	"deadline-planner/internal/service"
)

type App struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Metrics *metrics.Metrics

	Users      *service.UserService
	Tasks      *service.TaskService
	Categories *service.CategoryService
	Reminder   *service.ReminderService
	Retention  *service.RetentionSweeper

	taskRepo *repository.TaskRepository
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Notify.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := metrics.New()
	if sqlDB, err := db.DB(); err == nil {
		if err := m.WatchDB(sqlDB, cfg.Database.Driver); err != nil {
			log.Warn("register db metrics", zap.Error(err))
		}
	}
	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	var policy service.TransitionPolicy = service.AnyTransition{}
	if cfg.Tasks.StrictTransitions {
		policy = service.StrictTransitions{}
	}

	return &App{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Metrics:    m,
		Users:      service.NewUserService(userRepo),
		Tasks:      service.NewTaskService(taskRepo, categoryRepo, service.WithTransitionPolicy(policy), service.WithTaskLogger(log.Named("tasks"))),
		Categories: service.NewCategoryService(categoryRepo),
		Reminder:   service.NewReminderService(loc),
		Retention:  service.NewRetentionSweeper(taskRepo, cfg.Retention.Window(), log.Named("retention"), m),
		taskRepo:   taskRepo,
	}, nil
}

// DeadlineSweeper builds the reminder pipeline delivering through sender.
func (a *App) DeadlineSweeper(sender service.Sender) *service.DeadlineSweeper {
	n := a.Config.Notify
	dispatcher := service.NewDispatcher(a.taskRepo, sender, a.Reminder,
		service.DispatcherConfig{
			SendTimeout: n.SendTimeout,
			MaxAttempts: n.MaxAttempts,
			Lease:       n.Lease,
		},
		service.WithDispatcherLogger(a.Log.Named("dispatcher")),
		service.WithDispatcherMetrics(a.Metrics),
	)
	return service.NewDeadlineSweeper(a.taskRepo, dispatcher,
		service.WithSweepConcurrency(n.Concurrency),
		service.WithSweepLogger(a.Log.Named("deadline_sweep")),
		service.WithSweepMetrics(a.Metrics),
	)
}

// Schedule registers both sweeps on s using the configured specs.
func (a *App) Schedule(s *service.SchedulerService, deadlines *service.DeadlineSweeper) error {
	sc := a.Config.Schedule
	if _, err := s.Schedule("deadline_sweep", sc.DeadlineSweep, sc.JobTimeout, func(ctx context.Context) error {
		_, err := deadlines.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	if _, err := s.Schedule("retention_sweep", sc.RetentionSweep, sc.JobTimeout, func(ctx context.Context) error {
		_, err := a.Retention.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	return nil
}

func (a *App) Ping(ctx context.Context) error {
	return repository.Ping(ctx, a.DB)
}

func (a *App) Close() {
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
