package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const (
	// DefaultQueryTimeout bounds each statement a repo issues.
	DefaultQueryTimeout = 30 * time.Second

	MaxStatementTimeout    = time.Hour
	defaultConnMaxIdleTime = 2 * time.Minute
	connectTimeout         = 10 * time.Second
)

type DB struct {
	*sql.DB
}

type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// StatementTimeout is enforced server side on every pooled connection.
	// Zero keeps the server default.
	StatementTimeout time.Duration
}

// New opens the pool and pings it once.
func New(cfg Config) (*DB, error) {
	connURL, err := withStatementTimeout(cfg.URL, cfg.StatementTimeout)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	idle := cfg.ConnMaxIdleTime
	if idle <= 0 {
		idle = defaultConnMaxIdleTime
	}
	db.SetConnMaxIdleTime(idle)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DB{db}, nil
}

// withStatementTimeout sets statement_timeout through the libpq "options"
// parameter of a postgres:// URL.
func withStatementTimeout(raw string, d time.Duration) (string, error) {
	if d < 0 || d > MaxStatementTimeout {
		return "", fmt.Errorf("statement timeout %s out of range [0, %s]", d, MaxStatementTimeout)
	}
	if d == 0 {
		return raw, nil
	}
	if !strings.HasPrefix(raw, "postgres://") && !strings.HasPrefix(raw, "postgresql://") {
		return "", fmt.Errorf("statement timeout needs a postgres:// url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse db url: %w", err)
	}
	q := u.Query()
	q.Set("options", fmt.Sprintf("-c statement_timeout=%d", d.Milliseconds()))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// queryCtx bounds a single repo statement.
func queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}

func (db *DB) Close() error {
	return db.DB.Close()
}
