package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings tunes the pgx pool. Zero values fall back to defaults sized
// for a single-process deployment.
type PoolSettings struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func ConnectPostgres(ctx context.Context, s PoolSettings) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(s.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if s.MaxConns <= 0 {
		s.MaxConns = 10
	}
	if s.MinConns <= 0 {
		s.MinConns = 1
	}
	if s.MaxConnLifetime <= 0 {
		s.MaxConnLifetime = time.Hour
	}
	if s.MaxConnIdleTime <= 0 {
		s.MaxConnIdleTime = 15 * time.Minute
	}

	cfg.MaxConns = s.MaxConns
	cfg.MinConns = s.MinConns
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = s.MaxConnLifetime
	cfg.MaxConnIdleTime = s.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
