// Package postgres implements store.Store on PostgreSQL via pgx. One
// connection pool backs every concern; schema migrations are embedded and
// applied on startup when enabled.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/store"
)

// Store is the PostgreSQL backend.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL and optionally migrates the schema.
func New(ctx context.Context, cfg *PoolConfig) (*Store, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Start implements store.Store.
func (s *Store) Start() error {
	log.Info().Msg("Starting PostgreSQL store")
	return nil
}

// Stop closes the connection pool.
func (s *Store) Stop() error {
	log.Info().Msg("Stopping PostgreSQL store")
	s.pool.Close()
	return nil
}

// prefixColumns qualifies a column list with a table alias, for queries that
// join and need unambiguous selects.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
