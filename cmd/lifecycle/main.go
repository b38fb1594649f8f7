// Package main запускает BFF-сервис сопровождения сделок маркетплейса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/evmarket-lifecycle/internal/config"
	"github.com/mmeshcher/evmarket-lifecycle/internal/handler"
	"github.com/mmeshcher/evmarket-lifecycle/internal/mailbox"
	"github.com/mmeshcher/evmarket-lifecycle/internal/marketplace"
	"github.com/mmeshcher/evmarket-lifecycle/internal/middleware"
	"github.com/mmeshcher/evmarket-lifecycle/internal/notify"
	"github.com/mmeshcher/evmarket-lifecycle/internal/repository"
	"github.com/mmeshcher/evmarket-lifecycle/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	// .env необязателен, переменные окружения могут быть заданы напрямую
	if err := godotenv.Load(); err != nil {
		sugar.Debugw("no .env file loaded", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	box, health, closeBox, err := openMailbox(cfg)
	if err != nil {
		sugar.Fatalw("mailbox initialization error", "backend", cfg.Mailbox(), "error", err.Error())
	}
	defer closeBox()

	if cfg.MarketplaceAddress == "" {
		sugar.Warn("marketplace API address is not set, upstream calls will fail")
	}
	api := marketplace.NewClient(cfg.MarketplaceAddress, logger)

	hub := notify.NewHub(notify.DefaultCapacity, logger)

	svc := service.NewService(api, box, hub,
		service.WithLocation(loc),
		service.WithEnrichConcurrency(cfg.EnrichConcurrency),
		service.WithReconcileInterval(cfg.ReconcileInterval),
		service.WithLogger(logger),
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, hub, logger, authMiddleware, cfg.UIBaseURL, health)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая сверка сделок и предложений после оптимистичных изменений
	svc.StartReconciler(ctx)

	g.Go(func() error {
		sugar.Infow("starting lifecycle server", "addr", cfg.RunAddress, "mailbox", cfg.Mailbox())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openMailbox создаёт хранилище почтового ящика, выбранное конфигурацией.
func openMailbox(cfg *config.Config) (mailbox.Store, handler.HealthCheck, func(), error) {
	switch cfg.Mailbox() {
	case config.MailboxPostgres:
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo.Ping, func() { repo.Close() }, nil
	case config.MailboxRedis:
		r, err := mailbox.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return r, r.Ping, func() { r.Close() }, nil
	default:
		return mailbox.NewMemory(), nil, func() {}, nil
	}
}
