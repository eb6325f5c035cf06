package main

import (
	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jgirmay/meetingbot/cmd/api/handlers/orchestration"
	"github.com/jgirmay/meetingbot/internal/calendar"
	"github.com/jgirmay/meetingbot/internal/config"
	"github.com/jgirmay/meetingbot/internal/health"
	"github.com/jgirmay/meetingbot/internal/join"
	"github.com/jgirmay/meetingbot/internal/logging"
	"github.com/jgirmay/meetingbot/internal/orchestration/bots"
	"github.com/jgirmay/meetingbot/pkg/repository"
)

// components holds everything main needs to run and tear down
type components struct {
	registry     *repository.Registry
	orchestrator *bots.Orchestrator
}

// bootstrap opens the store and wires the orchestrator against the
// configured calendar service and meeting runner
func bootstrap(cfg *config.Config, logger *logging.Logger) (*components, error) {
	logger.Info("[INIT] Opening database", zap.String("driver", cfg.Database.Driver))
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}

	registry := repository.NewRegistry(db)
	if err := registry.Initialize(); err != nil {
		registry.Close()
		return nil, err
	}
	if err := registry.Migrate(); err != nil {
		registry.Close()
		return nil, err
	}
	logger.Info("[INIT] ✓ Database ready")

	gateway := calendar.NewHTTPGateway(calendar.HTTPGatewayConfig{
		BaseURL:  cfg.Calendar.BaseURL,
		APIToken: cfg.Calendar.APIToken,
		Timeout:  cfg.Calendar.Timeout,
	})
	runner := join.NewHTTPRunner(cfg.Join.RunnerURL, cfg.Join.APIToken, cfg.Join.Timeout)
	logger.Info("[INIT] ✓ Calendar gateway and meeting runner configured",
		zap.String("calendar_url", cfg.Calendar.BaseURL),
		zap.String("runner_url", cfg.Join.RunnerURL),
	)

	orchestrator := bots.NewOrchestrator(bots.Config{
		PollInterval:  cfg.Bots.PollInterval,
		ShutdownGrace: cfg.Bots.ShutdownGrace,
		JoinTimeout:   cfg.Bots.JoinTimeout,
		Registerer:    prometheus.DefaultRegisterer,
	}, bots.Dependencies{
		Calendar: gateway,
		Sessions: registry.BotSessionRepository,
		Settings: registry.WorkspaceBotSettingsRepository,
		Executor: join.NewPlatformDispatcher(runner),
		Logger:   logger,
	})
	logger.Info("[INIT] ✓ Orchestrator created")

	return &components{registry: registry, orchestrator: orchestrator}, nil
}

// newAPIRouter builds the public control API
func newAPIRouter(c *components) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	orchestration.RegisterRoutes(router, c.orchestrator)
	return router
}

// newAdminRouter builds the ops router serving health and metrics
func newAdminRouter(c *components) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	checker := health.NewHealthChecker(c.registry.GetDB(), c.orchestrator)
	health.NewHealthHandler(checker).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())
	return router
}
