package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/confidant-vault/confidant/internal/access"
	"github.com/confidant-vault/confidant/internal/app"
	"github.com/confidant-vault/confidant/internal/auth"
	"github.com/confidant-vault/confidant/internal/bootstrap"
	"github.com/confidant-vault/confidant/internal/identity"
	"github.com/confidant-vault/confidant/internal/keys"
	"github.com/confidant-vault/confidant/internal/observability"
	"github.com/confidant-vault/confidant/internal/platform/cache"
	"github.com/confidant-vault/confidant/internal/platform/db"
	"github.com/confidant-vault/confidant/internal/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	keyStore := keys.NewStore(
		filepath.Join(cfg.DataDir, "certs"),
		filepath.Join(cfg.DataDir, "root"),
	)

	identityRepo := identity.NewRepository(pool)
	identitySvc := identity.NewService(identityRepo, keyStore, cfg.BcryptCost, logger)

	if err := bootstrap.Run(ctx, bootstrap.Params{
		Logger:       logger,
		Pool:         pool,
		KeyStore:     keyStore,
		Identities:   identitySvc,
		RootUsername: cfg.RootUsername,
		RootPassword: cfg.RootPassword,
	}); err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}

	rootPair, err := keyStore.LoadRootKeyPair()
	if err != nil {
		logger.Error("load root key pair", slog.Any("error", err))
		os.Exit(1)
	}

	accessRepo := access.NewRepository(pool)
	accessSvc := access.NewService(accessRepo, identitySvc, logger)

	secretsRepo := secrets.NewRepository(pool)
	secretsSvc := secrets.NewService(secretsRepo, accessSvc, identitySvc, cfg.RootUsername, rootPair, logger)

	identitySvc.BindCascaders(accessSvc, secretsSvc)

	tokens := auth.NewTokenManager(redisClient, "confidant_token", cfg.TokenTTL)
	authSvc := auth.NewService(identitySvc, tokens)
	authMiddleware := auth.NewMiddleware(tokens, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     auth.NewHandler(logger, authSvc),
		AuthMiddleware:  authMiddleware,
		IdentityHandler: identity.NewHandler(logger, identitySvc),
		AccessHandler:   access.NewHandler(logger, accessSvc),
		SecretsHandler:  secrets.NewHandler(logger, secretsSvc, accessSvc, metrics),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
