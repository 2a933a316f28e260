package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/app"
	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/config"
	"github.com/hackgods/homeservice-dispatch/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "expiry-worker")
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("expiry worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("response_window", cfg.ResponseWindow),
		zap.Bool("deactivate_on_auto_cancel", cfg.Policy.DeactivateOnAutoCancel),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	// Run once at startup
	runOnce(rootCtx, a.Appointments, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, a.Appointments, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.AutoCancelOverdue(runCtx)
	if err != nil {
		log.Error("auto-cancel run failed", zap.Int("cancelled", n), zap.Error(err))
		return
	}
	log.Info("auto-cancel run complete", zap.Int("cancelled", n), zap.Duration("took", time.Since(start)))
}
