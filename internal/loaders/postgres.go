package loaders

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/utils"
)

//go:embed schema.sql
var postgresSchema string

type PostgresClient struct {
	dsn  string
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, dsn string, maxConns, minConns int) (*PostgresClient, error) {
	client := &PostgresClient{
		dsn: dsn,
	}

	pool, err := client.createConnectionPool(ctx, maxConns, minConns)
	if err != nil {
		return nil, err
	}
	client.pool = pool

	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	utils.Zlog.Info("Connected to PostgreSQL", zap.Int("max_conns", maxConns))
	return client, nil
}

func (c *PostgresClient) createConnectionPool(ctx context.Context, maxConns, minConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres DSN: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 12
	}
	if minConns <= 0 {
		minConns = 1
	}
	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = int32(minConns)
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = 60 * time.Minute
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return pool, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(postgresSchema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *PostgresClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

func (c *PostgresClient) GetPool() *pgxpool.Pool {
	return c.pool
}
