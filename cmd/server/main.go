package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lomect/accountd/assets"
	"github.com/lomect/accountd/internal"
	"github.com/lomect/accountd/internal/auth"
	authdb "github.com/lomect/accountd/internal/auth/db"
	"github.com/lomect/accountd/internal/db"
	"github.com/lomect/accountd/internal/db/migrate"
	"github.com/lomect/accountd/internal/email"
	"github.com/lomect/accountd/internal/email/mailgun"
	"github.com/lomect/accountd/internal/email/postmark"
	"github.com/lomect/accountd/internal/email/view"
	"github.com/lomect/accountd/internal/sessions"
	"github.com/lomect/accountd/internal/web"
	"github.com/lomect/accountd/migrations"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	writeDB, err := db.OpenSQLite(cfg.db.file, true)
	if err != nil {
		logger.Error("failed to open write database", "error", err)
		return 1
	}
	defer closeLogged(logger, "write database", writeDB)

	readDB, err := db.OpenSQLite(cfg.db.file, false)
	if err != nil {
		logger.Error("failed to open read database", "error", err)
		return 1
	}
	defer closeLogged(logger, "read database", readDB)

	if cfg.db.migrate {
		err = migrateDB(ctx, logger, writeDB)
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}
	}

	redisClient := redis.NewClient(cfg.redis)
	defer closeLogged(logger, "redis client", redisClient)

	err = redisClient.Ping(ctx).Err()
	if err != nil {
		logger.Error("failed to reach redis", "addr", cfg.redis.Addr, "error", err)
		return 1
	}

	sessionStore, err := sessions.New(redisClient, cfg.sessions)
	if err != nil {
		logger.Error("failed to create session store", "error", err)
		return 1
	}

	hasher, err := auth.NewHasher(auth.DefaultHashParams())
	if err != nil {
		logger.Error("failed to create hasher", "error", err)
		return 1
	}

	emailService := email.NewService(cfg.email.from, view.NewFSRenderer(assets.EmailFS), emailSender(cfg.email, logger))

	authService, err := auth.NewService(authdb.New(readDB, writeDB), sessionStore, hasher, emailService, cfg.auth)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler: web.NewServer(&web.ServerDeps{
			Logger:      logger,
			AuthService: authService,
			Sessions:    sessionStore,
		}),
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"publicURL", cfg.http.publicURL.String(),
			"emailSender", cfg.email.sender,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildLocalModified", internal.BuildLocalModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

func migrateDB(ctx context.Context, logger *slog.Logger, sqlDB *sql.DB) error {
	logger.Info("attempting to migrate database")

	applied, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{
		AppVersion: internal.BuildRevision,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return err
	}

	for _, m := range applied {
		logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
	}

	logger.Info("database is up to date", "applied", len(applied))

	return nil
}

func emailSender(cfg emailConfig, logger *slog.Logger) email.Sender {
	client := &http.Client{Timeout: 10 * time.Second}

	switch cfg.sender {
	case senderPostmark:
		return postmark.NewSender(client, cfg.postmark)
	case senderMailgun:
		return mailgun.NewSender(client, cfg.mailgun)
	default:
		return email.NewLogSender(logger)
	}
}

func closeLogged(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close "+name, "error", err)
	}
}
