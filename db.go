package rgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoDSN = errors.New("DATABASE_URL is not set")

// OpenPool connects to Postgres and pings it.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	const op = "rgs.OpenPool"

	if dsn == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoDSN)
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Avoid "prepared statement already exists" with PgBouncer/Supabase: use simple protocol (no server-side prepared statements).
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	// Pool settings for Supabase/Render: idle timeout 4m, limit open conns for pooler
	config.MaxConnIdleTime = 4 * time.Minute
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pool, nil
}
