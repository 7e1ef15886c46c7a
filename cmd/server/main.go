package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-ledger/internal/audit"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/config"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/logging"
	"expense-ledger/internal/storage"

	"go.uber.org/zap"
)

const sessionSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// app bundles everything a running server needs.
type app struct {
	db       *storage.DB
	resolver *auth.Resolver
	handler  http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	credentials := auth.NewCredentials(db)
	if err := seedAdmin(ctx, db, credentials, cfg, logger); err != nil {
		db.Close()
		return nil, err
	}

	resolver := auth.NewResolver(db, credentials, logger)
	l := ledger.New(db, audit.NewRecorder(db, logger), logger)
	h := handlers.NewHandlers(credentials, resolver, l, logger, cfg.TemplateDir, cfg.SecureCookie)

	return &app{db: db, resolver: resolver, handler: h.Routes(cfg.StaticDir)}, nil
}

// seedAdmin creates the configured admin account on an empty database.
func seedAdmin(ctx context.Context, db *storage.DB, credentials *auth.Credentials, cfg config.Config, logger *zap.Logger) error {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil
	}
	count, err := db.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := credentials.Register(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	logger.Info("created admin user", zap.String("username", cfg.AdminUser))
	return nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.db.Close()

	go sweepSessions(ctx, a.resolver, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func sweepSessions(ctx context.Context, resolver *auth.Resolver, logger *zap.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := resolver.SweepExpired(ctx)
			if err != nil {
				logger.Warn("failed to clean expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("cleaned expired sessions", zap.Int64("count", n))
			}
		}
	}
}
