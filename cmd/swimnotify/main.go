package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swimnotify/internal/config"
	"swimnotify/internal/constants"
	"swimnotify/internal/database"
	"swimnotify/internal/gateway"
	"swimnotify/internal/models"
	"swimnotify/internal/retry"
	"swimnotify/internal/roster"
	"swimnotify/internal/service"
	"swimnotify/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes phone numbers and names)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	envPath    = flag.String("env", ".env", "Path to an optional .env file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("swimnotify %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting swimnotify")

	if err := config.LoadDotEnv(*envPath); err != nil {
		return fmt.Errorf("failed to load environment file: %w", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogLevel(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, webhook := gateway.NewWithWebhook(cfg.WhatsApp, gateway.Deps{
		Log:     db,
		Logger:  logger,
		Verbose: *verbose,
	})
	if closer, ok := provider.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warnf("Failed to close WhatsApp provider: %v", err)
			}
		}()
	}

	// A provider that cannot start yet is retried over HTTP or by reconnect
	if err := provider.Initialize(ctx); err != nil {
		logger.WithError(err).WithField(service.LogFieldProvider, provider.Name()).
			Warn("WhatsApp provider did not initialize; messages will be rejected or queued")
	}

	cronRunner, err := service.NewCronRunner(cfg.Scheduler.Timezone, logger)
	if err != nil {
		return fmt.Errorf("failed to create cron runner: %w", err)
	}
	if err := registerJobs(cronRunner, cfg, provider, logger); err != nil {
		return err
	}
	if cfg.Scheduler.Disabled {
		logger.Info("Scheduled producers are disabled; jobs can still be run over HTTP")
	} else {
		cronRunner.Start(ctx)
		for _, entry := range cronRunner.Schedule() {
			logger.WithFields(logrus.Fields{
				service.LogFieldJob: entry.Name,
				"spec":              entry.Spec,
				"next":              entry.Next,
			}).Info("Scheduled job")
		}
	}

	purger := service.NewScheduler(db, cfg.Scheduler.PurgeIntervalMin, logger)
	go purger.Start(ctx)
	defer purger.Stop()

	server := NewServer(ServerDeps{
		Provider:      provider,
		Stats:         db,
		Jobs:          cronRunner,
		Webhook:       webhook,
		WebhookSecret: cfg.WhatsApp.WAHA.WebhookSecret,
		Config:        cfg.Server,
		JobContext:    ctx,
	}, logger)

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := cronRunner.Stop(shutdownCtx); err != nil {
		logger.Warnf("Scheduled jobs did not finish before shutdown: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - phone numbers and names will be logged")
		return
	}
	if configured == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoffConfig := retry.FromModel(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	backoff := retry.NewBackoff(backoffConfig)

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// registerJobs wires the producers to their cron expressions. Without a
// roster there is nothing to produce from, so no jobs are registered.
func registerJobs(runner *service.CronRunner, cfg *models.Config, provider gateway.Provider, logger *logrus.Logger) error {
	if cfg.Roster.Path == "" {
		logger.Warn("No roster configured; scheduled producers are not registered")
		return nil
	}

	source, err := roster.NewFileSource(cfg.Roster.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}

	producers := service.NewProducers(provider, source, service.ProducerConfig{
		Location:       runner.Location(),
		AdminPhone:     cfg.Scheduler.AdminPhone,
		MaxChunkLength: cfg.Scheduler.MaxChunkLength,
		Delay:          gateway.OptionsFromConfig(cfg.WhatsApp).SendDelay,
	}, logger)

	specs := map[string]string{
		service.JobDailyReminder:   cfg.Scheduler.DailyReminder,
		service.JobWeeklyRecap:     cfg.Scheduler.WeeklyRecap,
		service.JobPaymentReminder: cfg.Scheduler.PaymentReminder,
	}
	for _, job := range producers.Jobs(logger) {
		if err := runner.Register(specs[job.Name()], job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
		}
	}
	return nil
}
