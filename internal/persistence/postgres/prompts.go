package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spotline/spotline/internal/persistence"
)

type promptRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *promptRepo) SaveSystemSportPrompt(ctx context.Context, p persistence.SystemSportPrompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// One active guideline per sport
	if p.IsActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE system_sport_prompts SET is_active = FALSE
			WHERE sport = $1 AND is_active`, p.Sport); err != nil {
			return "", fmt.Errorf("failed to retire old sport prompts: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO system_sport_prompts (id, sport, text, is_active, updated_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		p.ID, p.Sport, p.Text, p.IsActive); err != nil {
		return "", fmt.Errorf("failed to insert sport prompt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit sport prompt: %w", err)
	}
	return p.ID, nil
}

func (r *promptRepo) SaveScoringPrompt(ctx context.Context, p persistence.ScoringPrompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// One active layer per (spot, sport, user) scope
	if p.IsActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE scoring_prompts SET is_active = FALSE
			WHERE spot_id = $1 AND sport = $2
			  AND ((user_id IS NULL AND $3::text IS NULL) OR user_id = $3)
			  AND is_active`, p.SpotID, p.Sport, p.UserID); err != nil {
			return "", fmt.Errorf("failed to retire old scoring prompts: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scoring_prompts (id, spot_id, sport, user_id, spot_prompt, temporal_prompt, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		p.ID, p.SpotID, p.Sport, p.UserID, p.SpotPrompt, p.TemporalPrompt, p.IsActive); err != nil {
		return "", fmt.Errorf("failed to insert scoring prompt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit scoring prompt: %w", err)
	}
	return p.ID, nil
}

func (r *promptRepo) ActiveSystemSportPrompt(ctx context.Context, sport string) (*persistence.SystemSportPrompt, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var p persistence.SystemSportPrompt
	err := r.db.GetContext(ctx, &p, `
		SELECT id, sport, text, is_active, updated_at
		FROM system_sport_prompts
		WHERE sport = $1 AND is_active
		ORDER BY updated_at DESC LIMIT 1`, sport)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sport prompt: %w", err)
	}
	return &p, nil
}

func (r *promptRepo) ActiveScoringPrompt(ctx context.Context, spotID, sport string, userID *string) (*persistence.ScoringPrompt, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Personalized row first, system row as fallback: user_id IS NULL
	// sorts last under DESC NULLS LAST.
	var p persistence.ScoringPrompt
	err := r.db.GetContext(ctx, &p, `
		SELECT id, spot_id, sport, user_id, spot_prompt, temporal_prompt, is_active, updated_at
		FROM scoring_prompts
		WHERE spot_id = $1 AND sport = $2 AND is_active
		  AND (user_id IS NULL OR user_id = $3)
		ORDER BY user_id DESC NULLS LAST, updated_at DESC
		LIMIT 1`, spotID, sport, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scoring prompt: %w", err)
	}
	return &p, nil
}

func (r *promptRepo) ListPersonalizedUsers(ctx context.Context, spotID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var users []string
	if err := r.db.SelectContext(ctx, &users, `
		SELECT DISTINCT user_id FROM scoring_prompts
		WHERE spot_id = $1 AND is_active AND user_id IS NOT NULL
		ORDER BY user_id`, spotID); err != nil {
		return nil, fmt.Errorf("failed to list personalized users: %w", err)
	}
	return users, nil
}
