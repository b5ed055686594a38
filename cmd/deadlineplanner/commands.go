package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deadline-planner/internal/app"
	"deadline-planner/internal/bot"
	"deadline-planner/internal/config"
	"deadline-planner/internal/logger"
	"deadline-planner/internal/server"
	"deadline-planner/internal/service"
)

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the background sweeps and the ops endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configFile)
		},
	}
}

func newSweepCommand(configFile *string) *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a background sweep once and exit",
	}

	sweepCmd.AddCommand(&cobra.Command{
		Use:   "deadlines",
		Short: "Send due deadline reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeadlineSweep(cmd, *configFile)
		},
	})

	retentionCmd := &cobra.Command{
		Use:   "retention",
		Short: "Purge completed tasks older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, _ := cmd.Flags().GetInt("days")
			return runRetentionSweep(cmd, *configFile, days)
		},
	}
	retentionCmd.Flags().Int("days", 0, "override retention.days for this run")
	sweepCmd.AddCommand(retentionCmd)

	return sweepCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func setup(configFile string) (*config.Config, *zap.Logger, *app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := app.New(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, a, nil
}

func runServe(ctx context.Context, configFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, a, err := setup(configFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	if err := cfg.RequireTelegram(); err != nil {
		return err
	}

	api, err := bot.NewAPI(cfg.Telegram.Token, cfg.Notify.SendTimeout)
	if err != nil {
		return err
	}
	pollAPI, err := bot.NewPollingAPI(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	log.Info("bot authorized", zap.String("account", pollAPI.Self.UserName))

	notifier := bot.NewNotifier(api, cfg.Notify.RatePerSecond, log.Named("notifier"))
	deadlines := a.DeadlineSweeper(notifier)

	scheduler := service.NewSchedulerService(a.Reminder.Location(), log.Named("scheduler"))
	if err := a.Schedule(scheduler, deadlines); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	telegramBot := bot.New(pollAPI, a.Users, a.Tasks, a.Categories, a.Reminder, log.Named("bot"))
	ops := server.New(cfg.Ops.Addr, server.NewRouter(a.Ping, a.Metrics.Registry, version), log.Named("ops"))

	log.Info("deadline planner started",
		zap.String("version", version),
		zap.String("deadline_sweep", cfg.Schedule.DeadlineSweep),
		zap.String("retention_sweep", cfg.Schedule.RetentionSweep),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return telegramBot.Start(gctx) })
	g.Go(func() error { return ops.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func runDeadlineSweep(cmd *cobra.Command, configFile string) error {
	cfg, log, a, err := setup(configFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	if err := cfg.RequireTelegram(); err != nil {
		return err
	}
	api, err := bot.NewAPI(cfg.Telegram.Token, cfg.Notify.SendTimeout)
	if err != nil {
		return err
	}

	ctx, cancel := jobContext(cmd.Context(), cfg.Schedule.JobTimeout)
	defer cancel()

	report, err := a.DeadlineSweeper(bot.NewNotifier(api, cfg.Notify.RatePerSecond, log)).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d candidates, %d sent, %d skipped, %d failed\n",
		report.RunID, report.Candidates, report.Sent, report.Skipped, report.Failed)
	return nil
}

func runRetentionSweep(cmd *cobra.Command, configFile string, days int) error {
	cfg, log, a, err := setup(configFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	window := cfg.Retention.Window()
	if days != 0 {
		window = time.Duration(days) * 24 * time.Hour
	}

	ctx, cancel := jobContext(cmd.Context(), cfg.Schedule.JobTimeout)
	defer cancel()

	report, err := a.Retention.RunWindow(ctx, window)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d completed task(s) last updated before %s\n",
		report.Deleted, report.Cutoff.Format(time.RFC3339))
	return nil
}

func jobContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
