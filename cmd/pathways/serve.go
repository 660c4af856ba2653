package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pathways/internal/auth"
	"pathways/internal/cache"
	"pathways/internal/catalog"
	"pathways/internal/config"
	"pathways/internal/database"
	"pathways/internal/handlers"
	"pathways/internal/logger"
	"pathways/internal/middleware"
	"pathways/internal/router"
	"pathways/internal/session"
	"pathways/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the account service HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

// serviceEnv loads configuration, builds the logger and opens a migrated
// database. The caller closes the database and syncs the logger.
func serviceEnv(ctx context.Context) (*config.Config, *zap.Logger, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "pathways")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}
	log.Info("configuration loaded", zap.String("env", cfg.Env), zap.String("addr", cfg.Addr()))

	db, err := database.Connect(ctx, cfg.DSN(), log)
	if err != nil {
		log.Sync()
		return nil, nil, nil, err
	}
	if err := database.Migrate(ctx, db, log); err != nil {
		db.Close()
		log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func runServe(ctx context.Context) error {
	cfg, log, db, err := serviceEnv(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer db.Close()

	if cfg.IsDev() {
		if err := database.Seed(ctx, db, log); err != nil {
			return err
		}
	}

	cat, err := catalog.Default()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	valkey, err := cache.ConnectValkey(ctx, cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword, log)
	if err != nil {
		return err
	}
	defer valkey.Close()

	sessions := session.NewStore(valkey)
	progressCache := cache.NewProgressCache(valkey, cache.DefaultProgressTTL)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)

	users := store.NewUserStore(db)
	progress := store.NewProgressStore(db)
	onboarding := store.NewOnboardingStore(db)
	history := store.NewHistoryStore(db)

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)
	defer limiter.Stop()

	r := router.New(router.Options{
		Tokens:      issuer,
		Sessions:    sessions,
		CORSOrigins: cfg.CORSOrigins,
		AuthLimiter: limiter,
		Log:         log,
	}, router.Handlers{
		Auth:    handlers.NewAuth(users, sessions, issuer, log),
		Account: handlers.NewAccount(users, sessions, progressCache, cat, log),
		Journey: handlers.NewJourney(onboarding, progress, history, progressCache, cat, log),
		Catalog: handlers.NewCatalog(cat, log),
		Health:  handlers.NewHealth(db, log),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Give active requests up to 30 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}
