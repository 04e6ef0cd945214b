package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"taskpilot.app/server/common/id"
	"taskpilot.app/server/common/llm"
	"taskpilot.app/server/common/logger"
	"taskpilot.app/server/common/otel"
	"taskpilot.app/server/core/config"
	"taskpilot.app/server/core/db"
	"taskpilot.app/server/internal/agent"
	"taskpilot.app/server/internal/http/middleware"
	httprouter "taskpilot.app/server/internal/http/router"
	"taskpilot.app/server/internal/service"
	"taskpilot.app/server/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "taskpilot starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	agentClient, err := llm.NewAgentClient(llm.Config{
		Provider:        cfg.AgentLLM.Provider,
		APIKey:          cfg.AgentLLM.APIKey,
		BaseURL:         cfg.AgentLLM.BaseURL,
		Model:           cfg.AgentLLM.Model,
		ReasoningEffort: cfg.AgentLLM.ReasoningEffort,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm client ready", "provider", cfg.AgentLLM.Provider, "model", agentClient.Model())

	stores := store.NewStores(database.Pool())

	// The tools run against the same TaskService as the REST handlers,
	// so validation and ownership rules cannot drift between surfaces.
	tools := agent.NewTaskTools(service.NewTaskService(stores.Tasks()))
	loop := agent.NewLoop(agentClient, tools, cfg.Chat.MaxIterations, cfg.AgentLLM.MaxTokens)

	services := service.NewServices(stores, service.NewTxRunner(database), loop)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepExpiredSessions(sweepCtx, services.Auth())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute, // chat turns can run long
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// sweepExpiredSessions deletes expired sessions on an hourly tick.
// Auth checks reject expired tokens on their own; the sweep just keeps
// the table from growing.
func sweepExpiredSessions(ctx context.Context, auth service.AuthService) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := auth.SweepExpiredSessions(ctx); err != nil {
				slog.WarnContext(ctx, "session sweep failed", "error", err)
			}
		}
	}
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services)

	return router
}
