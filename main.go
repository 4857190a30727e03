package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitpanel/internal/api"
	"gitpanel/internal/config"
	"gitpanel/internal/logging"
	"gitpanel/internal/middleware"
	"gitpanel/internal/recent"
	"gitpanel/internal/storage"
	"gitpanel/internal/workspace"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize BadgerDB
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ws, err := workspace.NewService(cfg, logger, workspace.WithRecent(recent.New(db)))
	if err != nil {
		logger.Fatal("failed to initialize workspace", zap.Error(err))
	}
	defer ws.Shutdown()

	handler := middleware.Chain(
		api.NewHandler(ws, logger).Routes(),
		middleware.Recover(logger),
		middleware.Logger(logger),
		middleware.RequestID,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", zap.String("address", addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Event streams stay open until their clients leave.
		srv.Close()
	}
}
