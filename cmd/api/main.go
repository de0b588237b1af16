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

	"github.com/marketlane/settlement/internal/auth"
	"github.com/marketlane/settlement/internal/config"
	"github.com/marketlane/settlement/internal/fees"
	"github.com/marketlane/settlement/internal/gateway"
	"github.com/marketlane/settlement/internal/handler"
	"github.com/marketlane/settlement/internal/ledger"
	"github.com/marketlane/settlement/internal/logging"
	"github.com/marketlane/settlement/internal/middleware"
	"github.com/marketlane/settlement/internal/payout"
	"github.com/marketlane/settlement/internal/provisioning"
	"github.com/marketlane/settlement/internal/repository"
	"github.com/marketlane/settlement/internal/scheduler"
	"github.com/marketlane/settlement/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("settlement-api", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	walletRepo := repository.NewWalletRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	feeSettingRepo := repository.NewFeeSettingRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	feePolicy := fees.NewPolicy(feeSettingRepo)
	ledgerSvc := ledger.NewService(walletRepo, txnRepo, saleRepo, withdrawalRepo, feePolicy, db, cfg.SettlementHoldDays)
	payoutSvc := payout.NewService(walletRepo, withdrawalRepo, txnRepo, db, cfg.MinWithdrawalAmount)

	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)
	provisioningSvc := provisioning.NewService(walletRepo, gatewayClient)
	reconciler := webhook.NewReconciler(ledgerSvc)

	healthHandler := handler.NewHealthHandler(db)
	walletHandler := handler.NewWalletHandler(ledgerSvc, walletRepo, provisioningSvc)
	withdrawalHandler := handler.NewWithdrawalHandler(payoutSvc)
	adminHandler := handler.NewAdminHandler(ledgerSvc, feeSettingRepo, cfg.SettlementSweepBatch)
	webhookHandler := handler.NewWebhookHandler(reconciler, cfg.GatewayWebhookSecret)

	vendorAuth := middleware.Auth(cfg.JWTSecret, auth.RoleVendor, auth.RoleAdmin)
	adminAuth := middleware.Auth(cfg.JWTSecret, auth.RoleAdmin)
	idempotent := middleware.Idempotency(idempotencyRepo)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /webhooks/gateway", http.HandlerFunc(webhookHandler.Receive))

	mux.Handle("GET /api/v1/wallet", vendorAuth(http.HandlerFunc(walletHandler.Get)))
	mux.Handle("GET /api/v1/wallet/stats", vendorAuth(http.HandlerFunc(walletHandler.Stats)))
	mux.Handle("GET /api/v1/wallet/transactions", vendorAuth(http.HandlerFunc(walletHandler.Transactions)))
	mux.Handle("PUT /api/v1/wallet/bank-details", vendorAuth(http.HandlerFunc(walletHandler.UpdateBankDetails)))
	mux.Handle("POST /api/v1/wallet/account-status/sync", vendorAuth(http.HandlerFunc(walletHandler.SyncAccountStatus)))

	mux.Handle("POST /api/v1/withdrawals", vendorAuth(idempotent(http.HandlerFunc(withdrawalHandler.Create))))
	mux.Handle("GET /api/v1/withdrawals", vendorAuth(http.HandlerFunc(withdrawalHandler.List)))
	mux.Handle("GET /api/v1/withdrawals/{id}", vendorAuth(http.HandlerFunc(withdrawalHandler.Get)))
	mux.Handle("POST /api/v1/withdrawals/{id}/cancel", vendorAuth(http.HandlerFunc(withdrawalHandler.Cancel)))

	mux.Handle("POST /api/v1/admin/sales", adminAuth(idempotent(http.HandlerFunc(adminHandler.RecordSale))))
	mux.Handle("POST /api/v1/admin/credits", adminAuth(idempotent(http.HandlerFunc(adminHandler.CreditSale))))
	mux.Handle("POST /api/v1/admin/refunds", adminAuth(idempotent(http.HandlerFunc(adminHandler.Refund))))
	mux.Handle("POST /api/v1/admin/withdrawals/{id}/process", adminAuth(http.HandlerFunc(withdrawalHandler.Process)))
	mux.Handle("GET /api/v1/admin/stats", adminAuth(http.HandlerFunc(adminHandler.PlatformStats)))
	mux.Handle("POST /api/v1/admin/settlements/run", adminAuth(http.HandlerFunc(adminHandler.RunSweep)))
	mux.Handle("PUT /api/v1/admin/fees/{key}", adminAuth(http.HandlerFunc(adminHandler.UpdateFeeSetting)))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	sweep := scheduler.New(ledgerSvc, cfg.SettlementSweepSchedule, cfg.SettlementSweepBatch, logger)
	if err := sweep.Start(); err != nil {
		slog.Error("failed to start settlement scheduler", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	sweep.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
