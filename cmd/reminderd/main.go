package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"

	"github.com/kmilewski/zlot/internal"
	"github.com/kmilewski/zlot/internal/domain"
	"github.com/kmilewski/zlot/internal/notify"
	"github.com/kmilewski/zlot/internal/repository"
	"github.com/kmilewski/zlot/internal/scheduler"
	"github.com/kmilewski/zlot/internal/smtp"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// SMTP settings normally live in the database; the env-derived fallback
	// keeps development setups (Mailhog) working without a settings row.
	fallback := &domain.SMTPSettings{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Encryption:  domain.Encryption(cfg.SMTPEncryption),
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		FromAddress: cfg.SMTPFrom,
		FromName:    cfg.SMTPFromName,
	}

	store := repository.New(db, fallback)
	mailer := smtp.NewClient(cfg.SMTPTimeout, logger)

	// Push is optional; without credentials the channel stays disabled and
	// reminders go out by email and in-app notification only.
	var push scheduler.PushSender
	if cfg.FCMCredentialsFile != "" {
		fcm, err := notify.NewFCMSender(ctx, cfg.FCMCredentialsFile, store, logger)
		if err != nil {
			return fmt.Errorf("fcm initialization failed: %w", err)
		}
		push = fcm
		logger.Info("Push notifications enabled")
	}

	sched := scheduler.New(store, mailer, push, store, cfg.BaseURL, time.Local, logger)

	// Schedule periodic reminder passes
	c := cron.New()
	_, err = c.AddFunc("@every "+cfg.SchedulerInterval.String(), func() {
		runPass(sched, logger)
	})
	if err != nil {
		return fmt.Errorf("scheduling reminder pass failed: %w", err)
	}

	c.Start()
	logger.Info("Scheduler started", "interval", cfg.SchedulerInterval)

	if cfg.SchedulerRunOnStart {
		runPass(sched, logger)
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	stopCtx := c.Stop()

	// Let an in-flight pass finish before exiting
	select {
	case <-stopCtx.Done():
		logger.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout exceeded, a reminder pass may still be running")
	}

	return nil
}

// runPass executes one reminder pass with a bounded context.
func runPass(sched *scheduler.Scheduler, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := sched.RunOnce(ctx, time.Now())
	if err != nil {
		logger.Error("Reminder pass failed", "error", err)
		return
	}

	if len(summary.Errors) > 0 {
		logger.Warn("Reminder pass finished with errors",
			"sent", summary.Sent, "failed", len(summary.Errors))
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
