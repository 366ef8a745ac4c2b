// Package app wires configuration into the running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/erazemk/storesapi/internal/api"
	"github.com/erazemk/storesapi/internal/auth"
	"github.com/erazemk/storesapi/internal/config"
	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/notify"
	"github.com/erazemk/storesapi/internal/observability"
	"github.com/erazemk/storesapi/internal/revocation"
	"github.com/erazemk/storesapi/internal/store"
)

// Runtime is a fully wired service.
type Runtime struct {
	Handler http.Handler
	DB      *db.DB
	Redis   *redis.Client
	Queue   notify.Queue
	Worker  *notify.Worker

	closers []func() error
}

// Close releases every connection the runtime opened.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build opens the database and redis, migrates the schema and assembles the
// HTTP handler and the email worker.
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{}

	database, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	rt.DB = database
	rt.closers = append(rt.closers, database.Close)

	if err := db.Migrate(database); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	rdb, err := OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if rdb != nil {
		rt.Redis = rdb
		rt.closers = append(rt.closers, rdb.Close)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret, err = store.GetJWTSecret(ctx, database)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("getting JWT secret: %w", err)
		}
		slog.Info("using JWT secret stored in database")
	}

	registry, err := revocation.Open(cfg.RevocationBackend, database, rdb)
	if err != nil {
		rt.Close()
		return nil, err
	}

	tokens, err := NewTokenService(cfg, database, secret)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Queue = NewQueue(cfg, rdb)
	rt.Worker, err = NewWorker(cfg, rt.Queue)
	if err != nil {
		rt.Close()
		return nil, err
	}

	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return database.PingContext(ctx) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	limiter := api.NewIPRateLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst)
	limiter.TrustedProxies, err = api.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	router := api.NewRouter(api.Deps{
		DB:           database,
		Tokens:       tokens,
		Revocations:  registry,
		Notifier:     &notify.Dispatcher{Queue: rt.Queue},
		LoginLimiter: limiter,
		HealthChecks: checks,
	})
	rt.Handler = api.LoggingMiddleware(observability.RecoverMiddleware(router))

	slog.Info("runtime ready",
		"database", database.Dialect,
		"revocation", fmt.Sprintf("%T", registry),
		"queue", fmt.Sprintf("%T", rt.Queue),
	)
	return rt, nil
}

// OpenDatabase opens the configured database.
func OpenDatabase(cfg *config.Config) (*db.DB, error) {
	dialect, err := db.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	database, err := db.OpenWithOptions(dialect, cfg.DatabaseURL, db.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		ConnLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// OpenRedis connects to redis. An empty URL returns a nil client.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewTokenService builds the token service. The admin claim is granted to users
// with the admin role and to any user ids listed in ADMIN_USER_IDS.
func NewTokenService(cfg *config.Config, database *db.DB, secret string) (*auth.TokenService, error) {
	ids, err := auth.ParseAdminIDs(cfg.AdminUserIDs)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_USER_IDS: %w", err)
	}
	byRole := auth.AdminFunc(func(ctx context.Context, userID int64) (bool, error) {
		return store.IsAdmin(ctx, database, userID)
	})

	tokens := auth.NewTokenService(secret, auth.AnyAdmin(ids, byRole))
	tokens.AccessTTL = cfg.AccessTokenTTL
	tokens.RefreshTTL = cfg.RefreshTokenTTL
	return tokens, nil
}

// NewQueue returns the redis queue when a client is available and a
// process-local queue otherwise.
func NewQueue(cfg *config.Config, rdb *redis.Client) notify.Queue {
	if rdb != nil {
		return notify.NewRedisQueue(rdb, cfg.EmailQueue)
	}
	return notify.NewMemoryQueue(1024)
}

// NewSender returns the SendGrid sender when an API key is configured.
func NewSender(cfg *config.Config) notify.Sender {
	if cfg.SendGridAPIKey == "" {
		return notify.LogSender{}
	}
	return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName)
}

// NewWorker builds the email worker for q.
func NewWorker(cfg *config.Config, q notify.Queue) (*notify.Worker, error) {
	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, err
	}
	return notify.NewWorker(q, NewSender(cfg), renderer, cfg.EmailRatePerSecond, cfg.EmailMaxAttempts), nil
}
