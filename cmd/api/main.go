package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	slogenv "github.com/cbrewster/slog-env"

	"github.com/punchamoorthee/chatpay/internal/api"
	"github.com/punchamoorthee/chatpay/internal/cache"
	"github.com/punchamoorthee/chatpay/internal/config"
	"github.com/punchamoorthee/chatpay/internal/gateway"
	"github.com/punchamoorthee/chatpay/internal/llm"
	"github.com/punchamoorthee/chatpay/internal/service"
	"github.com/punchamoorthee/chatpay/internal/store"
)

func main() {
	logger := slog.New(slogenv.NewHandler(slog.NewJSONHandler(os.Stderr, nil)))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := store.Connect(ctx, cfg.DBSource)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := store.InitSchema(ctx, dbPool); err != nil {
		return err
	}
	logger.Info("database ready")

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	chatCache := cache.NewChatCache(redisClient, cfg.CacheTTL, logger)
	logger.Info("cache ready")

	ledgerStore := store.NewLedgerStore(dbPool)
	paymentStore := store.NewPaymentStore(dbPool)
	chatStore := store.NewChatStore(dbPool)

	gw := gateway.NewClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout)
	verifier := gateway.NewSignatureVerifier(cfg.RazorpayWebhookSecret)

	registry := llm.NewRegistry(llm.ParseBackend(cfg.DefaultBackend))
	registry.Register(llm.BackendOpenRouter,
		llm.NewOpenRouterClient(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.GatewayTimeout),
		cfg.OpenRouterModel, cfg.OpenRouterModels)
	if cfg.LMStudioEnabled {
		registry.Register(llm.BackendLMStudio,
			llm.NewLMStudioClient(cfg.LMStudioURL, cfg.GatewayTimeout),
			cfg.LMStudioDefaultModel, cfg.LMStudioModels)
	}

	walletSvc := service.NewWalletService(ledgerStore, paymentStore, gw, cfg.RefundDebits, logger)
	webhooks := service.NewWebhookProcessor(verifier, paymentStore, walletSvc, gw, 256, logger)
	webhooks.Start()
	defer webhooks.Close()
	chatSvc := service.NewChatService(chatStore, chatCache, registry, ledgerStore, cfg.ChatMessageCost, logger)

	handler := api.NewHandler(walletSvc, webhooks, chatSvc, registry,
		func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return dbPool.Ping(pingCtx)
		},
		func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return chatCache.Ping(pingCtx)
		},
		logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, cfg.AllowedOrigins, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
