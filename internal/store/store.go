// Package store manages the embedded PostgreSQL instance that backs the KPI
// tables, and the connection pool over it.
package store

import (
	"context"
	"fmt"
	"io"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config locates the analytical store. Port is the only required field;
// zero-value strings fall back to the embedded server's own defaults.
type Config struct {
	Port         uint32
	DataDir      string // postgres data files, persisted across runs
	RuntimeDir   string // extracted binaries and sockets
	User         string
	Password     string
	Database     string
	StartTimeout time.Duration
	Logger       io.Writer // embedded server log sink, nil for stdout
}

func (c Config) connString() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		c.User, c.Password, c.Port, c.Database)
}

// Store is the open handle every component queries through. Pool is exported:
// loader, kpi and export all speak pgx directly.
type Store struct {
	cfg      Config
	postgres *embeddedpostgres.EmbeddedPostgres // nil when attached to an already-running server
	Pool     *pgxpool.Pool
}

// Open connects to PostgreSQL on cfg.Port. When nothing is listening there it
// starts an embedded instance first, so `operadora load` and `operadora serve`
// can run against the same store whether or not the other already holds it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.User == "" {
		cfg.User = "operadora"
	}
	if cfg.Password == "" {
		cfg.Password = "operadora"
	}
	if cfg.Database == "" {
		cfg.Database = "operadora"
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 60 * time.Second
	}

	if pool, err := connect(ctx, cfg); err == nil {
		return &Store{cfg: cfg, Pool: pool}, nil
	}

	ecfg := embeddedpostgres.DefaultConfig().
		Username(cfg.User).
		Password(cfg.Password).
		Database(cfg.Database).
		Port(cfg.Port).
		StartTimeout(cfg.StartTimeout)
	if cfg.DataDir != "" {
		ecfg = ecfg.DataPath(cfg.DataDir)
	}
	if cfg.RuntimeDir != "" {
		ecfg = ecfg.RuntimePath(cfg.RuntimeDir)
	}
	if cfg.Logger != nil {
		ecfg = ecfg.Logger(cfg.Logger)
	}

	postgres := embeddedpostgres.NewDatabase(ecfg)
	if err := postgres.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded postgres: %w", err)
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		postgres.Stop()
		return nil, err
	}
	return &Store{cfg: cfg, postgres: postgres, Pool: pool}, nil
}

func connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres on port %d: %w", cfg.Port, err)
	}
	return pool, nil
}

// Embedded reports whether this process started the server.
func (s *Store) Embedded() bool {
	return s.postgres != nil
}

// Close releases the pool and stops the embedded server if this process
// started it.
func (s *Store) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.postgres != nil {
		return s.postgres.Stop()
	}
	return nil
}
