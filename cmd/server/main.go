package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"brokerdesk/internal/app/bootstrap"
	"brokerdesk/internal/platform/config"
	platformdb "brokerdesk/internal/platform/db"
	"brokerdesk/internal/platform/logger"
	"brokerdesk/internal/platform/metrics"
	platformredis "brokerdesk/internal/platform/redis"
	"brokerdesk/internal/platform/secrets"
	"brokerdesk/internal/platform/session"
)

// sessionCleanupInterval is how often expired session records are purged.
const sessionCleanupInterval = 15 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	if secrets.NeedsProvider(cfg) {
		provider, err := secrets.NewAWSProvider(ctx, cfg.AWS.Region)
		if err != nil {
			logg.Fatal("failed to init secrets provider", zap.Error(err))
		}
		if err := secrets.ApplyToConfig(ctx, provider, cfg); err != nil {
			logg.Fatal("failed to resolve secrets", zap.Error(err))
		}
	}
	if cfg.App.Key == "" {
		logg.Fatal("APP_KEY is not set; session cookies cannot be signed")
	}

	// db
	db, err := platformdb.Open(platformdb.Options{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		ConnectTimeout:  cfg.DB.ConnectTimeout,
	}, logg)
	if err != nil {
		logg.Fatal("failed to connect database", zap.String("source_env", cfg.DB.URLSource), zap.Error(err))
	}
	defer func() { _ = platformdb.Close(db) }()
	target, _ := platformdb.ParseURL(cfg.DB.URL)

	// Redis（任意）
	var rdb *redisv9.Client
	if tmp, err := platformredis.NewRedisClient(ctx, cfg.Redis, logg); err != nil {
		logg.Warn("Redis unavailable. Running without cache.", zap.Error(err))
	} else {
		rdb = tmp
		defer func() {
			if err := rdb.Close(); err != nil {
				logg.Error("failed to close Redis client", zap.Error(err))
			}
		}()
	}

	tableInit, err := bootstrap.ParseTableInit(cfg.Bootstrap.TableInit)
	if err != nil {
		logg.Fatal("invalid bootstrap config", zap.Error(err))
	}
	registration, err := bootstrap.ParseRegistration(cfg.Bootstrap.Registration)
	if err != nil {
		logg.Fatal("invalid bootstrap config", zap.Error(err))
	}

	cookie := session.DefaultCookieOptions()
	cookie.Name = cfg.Session.CookieName
	cookie.Lifetime = cfg.Session.Lifetime
	cookie.Secure = cfg.Session.Secure

	app, err := bootstrap.New(ctx, bootstrap.Options{
		Env:           cfg.App.Env,
		TableInit:     tableInit,
		Registration:  registration,
		StaticDir:     cfg.Bootstrap.StaticDir,
		DebugEndpoint: cfg.Bootstrap.DebugEndpoint,
		DBDriver:      target.Driver,
		DBSourceEnv:   cfg.DB.URLSource,
		SessionSecret: cfg.App.Key,
		Cookie:        cookie,
	}, bootstrap.Deps{
		DB:      db,
		Redis:   rdb,
		Log:     logg,
		Metrics: metrics.New(),
	})
	if err != nil {
		logg.Fatal("failed to initialise application", zap.Error(err))
	}

	// 管理ユーザーの作成。lazy ではこの時点でテーブルが無いので行わない
	if cfg.Admin.Username != "" && cfg.Admin.Password != "" && tableInit == bootstrap.TableInitEager {
		created, err := app.Auth.EnsureUser(ctx, cfg.Admin.Username, cfg.Admin.Password)
		if err != nil {
			logg.Error("failed to seed admin user", zap.Error(err))
		} else if created {
			logg.Info("admin user created", zap.String("username", cfg.Admin.Username))
		}
	}

	go cleanupSessions(ctx, app, logg)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           app.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logg.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("server shutdown error", zap.Error(err))
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		logg.Warn("api log queue not fully flushed", zap.Error(err))
	}
	logg.Info("server stopped")
}

// cleanupSessions purges expired session records until ctx is done.
func cleanupSessions(ctx context.Context, app *bootstrap.App, logg *zap.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.Auth.CleanupExpired(ctx)
			if err != nil {
				logg.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logg.Info("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}
