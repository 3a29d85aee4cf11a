package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"billova/internal/amqp"
	"billova/internal/cache"
	"billova/internal/config"
	"billova/internal/core"
	apphttp "billova/internal/http"
	applog "billova/internal/log"
	"billova/internal/ocr"
	"billova/internal/services"
	"billova/internal/storage"
)

func main() {
	// .env is optional; environment variables may be set directly.
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	globalID, err := ensureGlobalUser(ctx, repo, cfg.GlobalUsername)
	if err != nil {
		logger.Error("Failed to resolve global account", "error", err, "username", cfg.GlobalUsername)
		os.Exit(1)
	}

	// AMQP publishing is optional; without a URL the services skip it.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP event publishing enabled", "exchange", cfg.AMQPExchange)
	}

	accounts := services.NewAccountService(repo, cfg.SessionDuration, cfg.MediaDir)
	expenses := services.NewExpenseService(repo, publisher, globalID)
	categories := services.NewCategoryService(repo, globalID)

	var ocrService *services.OCRService
	if cfg.OCREndpoint != "" {
		analyzer := ocr.NewClient(cfg.OCREndpoint, cfg.OCRAPIKey, cfg.OCRTimeout)
		ocrService = services.NewOCRService(analyzer, repo, expenses, publisher)
		logger.Info("Receipt scanning enabled", "endpoint", cfg.OCREndpoint)
	}

	caches := cache.NewManager()
	caches.Register(expenses.SummaryCache())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(cfg, accounts, expenses, categories, ocrService)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting billova server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Expired sessions are purged in the background.
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := repo.DeleteExpiredSessions(gctx); err != nil {
					logger.Warn("Session cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info("Expired sessions removed", "count", n)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// ensureGlobalUser resolves the shared account holding global categories,
// creating it inactive on first start. Its ID is injected into the services
// so request handling never looks it up by name.
func ensureGlobalUser(ctx context.Context, repo *storage.SQLiteRepository, username string) (int64, error) {
	user, err := repo.GetUserByUsername(ctx, username)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return 0, err
	}

	created, err := repo.CreateUser(ctx, username, username+"@localhost", "", false)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}
