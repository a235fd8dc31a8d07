package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvillacreses/citasalud/libs/config"
)

// Config tunes the pgx pool. The defaults fit a single API instance plus one
// worker sharing a small clinic database.
type Config struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	PingTimeout     time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		MaxConns:        int32(config.Int("DB_MAX_CONNS", 8)),
		MinConns:        int32(config.Int("DB_MIN_CONNS", 2)),
		MaxConnLifetime: config.Minutes("DB_CONN_LIFETIME_MINUTES", 30*time.Minute),
		MaxConnIdleTime: config.Minutes("DB_CONN_IDLE_MINUTES", 5*time.Minute),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		c.MinConns = 1
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	return c
}

type Pool struct {
	*pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string, cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}
