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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mydiary/internal/config"
	"mydiary/internal/db"
	"mydiary/internal/diary"
	"mydiary/internal/handlers"
	"mydiary/internal/logging"
	"mydiary/internal/metrics"
	"mydiary/internal/services"
	"mydiary/internal/session"
	"mydiary/internal/store"
)

const (
	federatedAudience = "mydiary"
	feedRetryDelay    = 2 * time.Second
)

type entryStore interface {
	diary.EntryStore
	Close() error
}

// backend is the storage the server runs on: Postgres when a DSN is set,
// process memory otherwise.
type backend struct {
	entries entryStore
	users   session.UserDirectory
	closers []func() error
}

func (b *backend) close(log *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn("close backend", zap.Error(err))
		}
	}
}

func runServe(cmd *cobra.Command, opts *serverOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if opts.DatabaseURL != "" {
		cfg.DatabaseURL = opts.DatabaseURL
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("backend unavailable", zap.Error(err))
		return err
	}
	defer be.close(logger)

	auth := session.NewAuthenticator(be.users, session.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger)
	if cfg.GoogleSecret != nil {
		auth.RegisterProvider("google", session.NewHMACVerifier(cfg.GoogleSecret, federatedAudience))
	}

	registry := diary.NewRegistry(cfg.WorkspaceTTL)
	router := handlers.NewRouter(handlers.RouterConfig{
		Store:    be.entries,
		Auth:     auth,
		Registry: registry,
		Workspace: diary.Options{
			WriteTimeout: cfg.WriteTimeout,
			Logger:       logger,
			Metrics:      m,
		},
		Metrics:  m,
		Gatherer: promReg,
		Origins:  cfg.Origins,
		Logger:   logger,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errc:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	registry.CloseAll()
	logger.Info("server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; entries and users live in memory only")
		mem := store.NewMemoryStore(logger)
		return &backend{entries: mem, users: session.NewMemoryUsers(), closers: []func() error{mem.Close}}, nil
	}

	dbConn, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	be := &backend{users: session.NewPostgresUsers(dbConn), closers: []func() error{dbConn.Close}}
	if err := db.RunMigrations(ctx, dbConn); err != nil {
		be.close(logger)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var encSvc *services.EncryptionService
	if cfg.EncryptionKey != nil {
		if encSvc, err = services.NewEncryptionService(cfg.EncryptionKey); err != nil {
			be.close(logger)
			return nil, err
		}
	} else {
		logger.Warn("ENCRYPTION_KEY not set; entry text is stored in plain form")
	}

	var pg *store.PostgresStore
	switch cfg.ChangeFeed {
	case config.FeedRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			be.close(logger)
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		be.closers = append(be.closers, client.Close)
		feed := store.NewRedisFeed(client, db.EntriesChannel, logger)
		pg = store.NewPostgresStore(dbConn, encSvc, feed, logger)
		go runFeed(ctx, logger, func(ctx context.Context) error { return feed.Run(ctx, pg.Hub()) })
	default:
		listener := store.NewPGListener(cfg.DatabaseURL, db.EntriesChannel, logger)
		pg = store.NewPostgresStore(dbConn, encSvc, nil, logger)
		go runFeed(ctx, logger, func(ctx context.Context) error { return listener.Run(ctx, pg.Hub()) })
	}
	be.entries = pg
	be.closers = append(be.closers, pg.Close)
	return be, nil
}

// runFeed keeps a change feed running until ctx ends.
func runFeed(ctx context.Context, logger *zap.Logger, run func(context.Context) error) {
	for ctx.Err() == nil {
		if err := run(ctx); err != nil {
			logger.Warn("change feed stopped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(feedRetryDelay):
		}
	}
}

func openDB(ctx context.Context, dsn string) (*sqlx.DB, error) {
	dbConn, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	dbConn.SetMaxOpenConns(10)
	dbConn.SetConnMaxLifetime(2 * time.Hour)
	if err := dbConn.PingContext(ctx); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return dbConn, nil
}

func runMigrate(ctx context.Context, opts *serverOptions) error {
	_ = godotenv.Load()
	dsn := opts.DatabaseURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return errors.New("DATABASE_URL is required")
	}
	logger, err := logging.New("info", true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbConn, err := openDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	if err := db.RunMigrations(ctx, dbConn); err != nil {
		logger.Error("failed migrations", zap.Error(err))
		return err
	}
	logger.Info("migrations applied")
	return nil
}
