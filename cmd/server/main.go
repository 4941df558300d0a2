package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"llmrace/internal/completion"
	"llmrace/internal/config"
	"llmrace/internal/logger"
	"llmrace/server"
)

// cleanupInterval is how often finished races are evicted.
const cleanupInterval = 5 * time.Minute

// Run loads configuration, serves the HTTP API and shuts down gracefully
// on SIGINT or SIGTERM.
func Run() error {
	log := logger.NewFromEnv()
	defer func() { _ = log.Close() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if vcap := os.Getenv("VCAP_SERVICES"); vcap != "" {
		bindings := &config.Bindings{Client: &http.Client{Timeout: 30 * time.Second}, Log: log}
		specs, err := bindings.Discover(context.Background(), vcap)
		if err != nil {
			log.Warn("Ignoring VCAP_SERVICES: %v", err)
		} else if err := cfg.AddCustom(specs...); err != nil {
			return fmt.Errorf("service bindings: %w", err)
		} else {
			log.Info("Registered %d providers from service bindings", len(specs))
		}
	}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	registry, err := cfg.Registry(http.DefaultClient, log)
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}
	client := completion.NewClient(registry, log)

	srv := server.New(cfg, client, log)
	router := srv.Router()

	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.Port),
		Handler:        router,
		ReadTimeout:    5 * time.Minute,
		WriteTimeout:   0, // Disabled for SSE connections
		MaxHeaderBytes: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.Races().RunCleanup(ctx, cleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting on port %s", cfg.Port)
		log.Info("API endpoints available at http://localhost:%s/api", cfg.Port)
		log.Info("Providers registered: %d", registry.Len())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	srv.Races().Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited gracefully")
	return nil
}
