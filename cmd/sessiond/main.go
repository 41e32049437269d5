package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/blogpulse/internal/config"
	"github.com/xiaot623/blogpulse/internal/hub"
	"github.com/xiaot623/blogpulse/internal/logger"
	"github.com/xiaot623/blogpulse/internal/policy"
	store "github.com/xiaot623/blogpulse/internal/repository"
	"github.com/xiaot623/blogpulse/internal/service"
	transport "github.com/xiaot623/blogpulse/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.LogLevel)
	log.Info("starting sessiond",
		"port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"stale_session_timeout", cfg.StaleSessionTimeout,
		"rate_limit_rps", cfg.RateLimitRPS)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		fatal(log, "failed to initialize store", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		fatal(log, "failed to initialize policy engine", err)
	}

	// Live feed hub
	h := hub.NewHub()
	go h.Run(ctx)

	svc := service.New(db, policyEngine, h, cfg)
	go svc.RunStaleSessionSweeper(ctx)

	server := transport.NewServer(cfg, svc, h)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			fatal(log, "failed to start server", err)
		}
	}()

	log.Info("session API started", "port", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down sessiond")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to shutdown server gracefully", "error", err)
	}
	cancel()

	log.Info("sessiond stopped")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
