package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// NewPgxPool opens a pool against dsn and pings it.
func NewPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}
	pcfg.HealthCheckPeriod = 30 * time.Second

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(cctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool connect: %w", err)
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgxpool ping: %w", err)
	}
	return pool, nil
}

var (
	sharedMu   sync.Mutex
	sharedPool *pgxpool.Pool
)

// SharedPool returns the process-wide pool, connecting on first use.
// A failed attempt is not cached so the next caller retries.
func SharedPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool != nil {
		return sharedPool, nil
	}
	pool, err := NewPgxPool(ctx, dsn, maxConns)
	if err != nil {
		return nil, err
	}
	sharedPool = pool
	return sharedPool, nil
}

// CloseSharedPool releases the process-wide pool at shutdown.
func CloseSharedPool() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool != nil {
		sharedPool.Close()
		sharedPool = nil
	}
}
