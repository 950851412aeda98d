// Command server runs the collaboration service: the websocket endpoint,
// the REST resources and the operational endpoints.
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

	"coauthor-backend/internal/config"
	"coauthor-backend/internal/di"
	"coauthor-backend/internal/infrastructure/observability"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	env := config.GetEnvironment()
	loader := config.NewLoader(config.ConfigDir(), env)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, level, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.IsProduction())
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	watcher, err := config.NewConfigWatcher(loader, cfg, logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	watcher.OnChange(func(next *config.Config) {
		if err := observability.SetLevel(level, next.Logging.Level); err != nil {
			logger.Warn("Ignoring log level from reloaded configuration", zap.Error(err))
			return
		}
		logger.Info("Log level updated", zap.String("level", next.Logging.Level))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, cleanup, err := di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer cleanup()

	delivered, err := container.StartDelivery(context.Background())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("address", cfg.Server.Address()),
			zap.String("environment", string(cfg.Environment)),
			zap.Strings("config_sources", cfg.LoadedFrom),
		)
		if err := container.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := container.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
		select {
		case <-delivered:
		case <-shutdownCtx.Done():
			logger.Warn("Room bus did not drain before the shutdown deadline")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
