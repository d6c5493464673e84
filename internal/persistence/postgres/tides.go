package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spotline/spotline/internal/domain/tide"
)

type tideRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *tideRepo) Replace(ctx context.Context, spotID string, events []tide.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tide_events WHERE spot_id = $1`, spotID); err != nil {
		return fmt.Errorf("failed to clear tide events: %w", err)
	}
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tide_events (spot_id, ts, type, height)
			VALUES ($1, $2, $3, $4)`,
			spotID, ev.Time, ev.Type, ev.Height); err != nil {
			return fmt.Errorf("failed to insert tide event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tide replace: %w", err)
	}
	return nil
}

func (r *tideRepo) List(ctx context.Context, spotID string) ([]tide.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []tide.Event
	if err := r.db.SelectContext(ctx, &out, `
		SELECT ts AS time, type, height FROM tide_events
		WHERE spot_id = $1 ORDER BY ts`, spotID); err != nil {
		return nil, fmt.Errorf("failed to list tide events: %w", err)
	}
	return out, nil
}
