// Package main запускает HTTP-сервер сервиса numbermarket.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/numbermarket-system/internal/catalog"
	"github.com/mmeshcher/numbermarket-system/internal/config"
	"github.com/mmeshcher/numbermarket-system/internal/handler"
	"github.com/mmeshcher/numbermarket-system/internal/history"
	"github.com/mmeshcher/numbermarket-system/internal/ledger"
	"github.com/mmeshcher/numbermarket-system/internal/middleware"
	"github.com/mmeshcher/numbermarket-system/internal/notify"
	"github.com/mmeshcher/numbermarket-system/internal/payment"
	"github.com/mmeshcher/numbermarket-system/internal/rental"
	"github.com/mmeshcher/numbermarket-system/internal/repository"
	"github.com/mmeshcher/numbermarket-system/internal/session"
	"github.com/mmeshcher/numbermarket-system/internal/ticket"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		sugar.Fatalw("catalog load error", "file", cfg.CatalogFile, "error", err.Error())
	}
	sugar.Infow("catalog loaded", "file", cfg.CatalogFile, "services", cat.Len())

	var led ledger.Ledger
	var hist history.Log

	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer repo.Close()
		led, hist = repo, repo
	} else {
		// Без БД балансы и история живут в памяти и теряются при рестарте.
		sugar.Infow("database uri is empty, using in-memory stores")
		led = ledger.NewMemory()
		hist = history.NewMemory()
	}

	rentals := rental.NewClient(cfg.RentalAPIAddress, cfg.RentalAPIKey)
	payments := payment.NewClient(cfg.PaymentAPIAddress, cfg.PaymentAccessToken)
	notifier := notify.NewWebhook(cfg.NotifyWebhookURL, logger)

	machine := ticket.New(ticket.DefaultConfig(), session.NewStore(), cat, led, hist, rentals, payments, notifier, logger)
	defer machine.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.BridgeSecret)
	h := handler.NewHandler(machine, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting numbermarket server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
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
