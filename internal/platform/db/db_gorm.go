// Package db opens the gorm connection for a database URL and owns the pool policy.
package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	retryInterval = 3 * time.Second
)

// Options is the connection pool policy for Open.
type Options struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration // recycle connections the server or a proxy may have dropped
	ConnectTimeout  time.Duration
}

// Target is a parsed database URL.
type Target struct {
	Driver string
	DSN    string
	// SimpleProtocol is set for transaction-mode poolers (pgbouncer=true), which
	// cannot hold prepared statements across transactions.
	SimpleProtocol bool
}

// ParseURL maps a database URL to a gorm driver and DSN.
//
//	sqlite://db/app.db      -> relative file db/app.db
//	sqlite:///db/app.db     -> relative file db/app.db
//	sqlite:////var/app.db   -> absolute file /var/app.db
//	sqlite://:memory:       -> in-memory
//	postgres://... / postgresql://...
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			return Target{}, errors.New("sqlite url has no path")
		}
		return Target{Driver: DriverSQLite, DSN: path}, nil

	case strings.HasPrefix(raw, "file:"):
		return Target{Driver: DriverSQLite, DSN: raw}, nil

	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		u, err := url.Parse(raw)
		if err != nil {
			// *url.Error は元のURLをそのまま含むので包まない
			return Target{}, fmt.Errorf("invalid postgres url %q", redact(raw))
		}
		q := u.Query()
		simple := q.Get("pgbouncer") == "true"
		// Prisma 専用パラメータは pgx がサーバーに送ってしまうので除去する
		q.Del("pgbouncer")
		q.Del("schema")
		u.RawQuery = q.Encode()
		// 接続前に pgx と同じ規則で検証する（ParseConfigError はパスワードを伏せる）
		if _, err := pgx.ParseConfig(u.String()); err != nil {
			return Target{}, fmt.Errorf("invalid postgres url: %w", err)
		}
		return Target{Driver: DriverPostgres, DSN: u.String(), SimpleProtocol: simple}, nil
	}
	return Target{}, fmt.Errorf("unsupported database url scheme: %q", redact(raw))
}

// Dialector returns the gorm dialector for t.
func (t Target) Dialector() gorm.Dialector {
	if t.Driver == DriverPostgres {
		return postgres.New(postgres.Config{DSN: t.DSN, PreferSimpleProtocol: t.SimpleProtocol})
	}
	return sqlite.Open(t.DSN)
}

// ConnectWithRetry opens a connection, retrying every 3 seconds until timeout elapses.
func ConnectWithRetry(dsn string, timeout time.Duration, opener func(dsn string) (*gorm.DB, error)) (*gorm.DB, error) {
	return connectWithRetry(dsn, timeout, retryInterval, opener, zap.NewNop())
}

func connectWithRetry(dsn string, timeout, interval time.Duration, opener func(dsn string) (*gorm.DB, error), log *zap.Logger) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("db connect failed after %v: %w", timeout, err)
		}
		log.Warn("db connect failed, retrying", zap.Error(err), zap.Duration("interval", interval))
		time.Sleep(interval)
	}
}

// Open connects to opts.URL, pings it and applies the pool policy.
func Open(opts Options, log *zap.Logger) (*gorm.DB, error) {
	target, err := ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	if target.Driver == DriverSQLite {
		if err := ensureSQLiteDir(target.DSN); err != nil {
			return nil, err
		}
	}

	opener := func(string) (*gorm.DB, error) {
		db, err := gorm.Open(target.Dialector(), &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
			TranslateError: true,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !IsHealthy(ctx, db) {
			_ = Close(db)
			return nil, errors.New("ping failed")
		}
		return db, nil
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	db, err := connectWithRetry(target.DSN, timeout, retryInterval, opener, log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	log.Info("database connected", zap.String("driver", target.Driver))
	return db, nil
}

// EnsureTables creates missing tables and columns. Safe to run on every cold start.
func EnsureTables(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// IsHealthy pings the underlying connection.
func IsHealthy(ctx context.Context, db *gorm.DB) bool {
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return sqlDB.Close()
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	return nil
}

// redact hides the userinfo part of a URL for error messages.
// The last "@" is used so that an unescaped "@" in a password is hidden too.
func redact(raw string) string {
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		if j := strings.Index(raw, "://"); j >= 0 && j < i {
			return raw[:j+3] + "***" + raw[i:]
		}
		return "***" + raw[i:]
	}
	return raw
}
