// Package postgres implements the persistence interfaces on PostgreSQL
// via sqlx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/spotline/spotline/internal/persistence"
)

// DefaultTimeout bounds individual queries.
const DefaultTimeout = 5 * time.Second

// Connect opens and pings a Postgres connection pool.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// NewStore wires all repositories over one pool.
func NewStore(db *sqlx.DB) *persistence.Store {
	timeout := DefaultTimeout
	return &persistence.Store{
		Spots:   &spotRepo{db: db, timeout: timeout},
		Slots:   &slotRepo{db: db, timeout: timeout},
		Tides:   &tideRepo{db: db, timeout: timeout},
		Prompts: &promptRepo{db: db, timeout: timeout},
		Scores:  &scoreRepo{db: db, timeout: timeout},
		Logs:    &logRepo{db: db, timeout: timeout},
	}
}
