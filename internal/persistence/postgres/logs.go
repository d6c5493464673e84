package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spotline/spotline/internal/persistence"
)

type logRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *logRepo) Insert(ctx context.Context, entry persistence.ScoringLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scoring_logs
			(id, slot_id, sport, user_id, system_prompt, user_prompt, raw_response,
			 model, temperature, max_tokens, duration_ms, attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.SlotID, entry.Sport, entry.UserID,
		entry.SystemPrompt, entry.UserPrompt, entry.RawResponse,
		entry.Model, entry.Temperature, entry.MaxTokens, entry.DurationMS, entry.Attempt)
	if err != nil {
		return fmt.Errorf("failed to insert scoring log: %w", err)
	}
	return nil
}

func (r *logRepo) ListBySlot(ctx context.Context, slotID string) ([]persistence.ScoringLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.ScoringLog
	if err := r.db.SelectContext(ctx, &out, `
		SELECT id, slot_id, sport, user_id, system_prompt, user_prompt, raw_response,
		       model, temperature, max_tokens, duration_ms, attempt, created_at
		FROM scoring_logs
		WHERE slot_id = $1
		ORDER BY created_at`, slotID); err != nil {
		return nil, fmt.Errorf("failed to query scoring logs: %w", err)
	}
	return out, nil
}
