package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jgirmay/meetingbot/internal/config"
	"github.com/jgirmay/meetingbot/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Init(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := logging.Get()
	defer logger.Sync()

	if cfg.Logging.Level != string(logging.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	c, err := bootstrap(cfg, logger)
	if err != nil {
		logger.Fatal("[INIT] Bootstrap failed", zap.Error(err))
	}

	if cfg.Bots.RestoreOnStart {
		restored, err := c.orchestrator.Restore(context.Background())
		if err != nil {
			logger.Warn("[INIT] Some workspace bots could not be restored", zap.Error(err))
		}
		logger.Info("[INIT] ✓ Restored workspace bots", zap.Int("count", restored))
	}

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newAPIRouter(c),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	adminServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Admin.Port),
		Handler:     newAdminRouter(c),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, adminServer} {
		srv := srv
		go func() {
			logger.Info("[INFO] Starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("[SHUTDOWN] Received signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		logger.Error("[SHUTDOWN] Server failed", zap.Error(err))
	}

	logger.Info("[SHUTDOWN] Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range []*http.Server{apiServer, adminServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("[SHUTDOWN] Server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}

	// Bots get their own grace window on top of the HTTP drain.
	logger.Info("[SHUTDOWN] Stopping workspace bots...")
	if err := c.orchestrator.Close(context.Background()); err != nil {
		logger.Warn("[SHUTDOWN] Orchestrator close error", zap.Error(err))
	}

	logger.Info("[SHUTDOWN] Closing database connection...")
	if err := c.registry.Close(); err != nil {
		logger.Warn("[SHUTDOWN] Database close error", zap.Error(err))
	}

	logger.Info("[SHUTDOWN] ✓ Graceful shutdown complete")
}
