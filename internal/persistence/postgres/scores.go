package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spotline/spotline/internal/persistence"
)

type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

type scoreRow struct {
	ID            string    `db:"id"`
	SlotID        string    `db:"slot_id"`
	SlotTimestamp int64     `db:"slot_timestamp"`
	SpotID        string    `db:"spot_id"`
	Sport         string    `db:"sport"`
	UserID        *string   `db:"user_id"`
	Score         int       `db:"score"`
	Reasoning     string    `db:"reasoning"`
	Factors       []byte    `db:"factors"`
	Model         string    `db:"model"`
	ScoredAt      time.Time `db:"scored_at"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r scoreRow) toScore() (persistence.ConditionScore, error) {
	out := persistence.ConditionScore{
		ID:            r.ID,
		SlotID:        r.SlotID,
		SlotTimestamp: r.SlotTimestamp,
		SpotID:        r.SpotID,
		Sport:         r.Sport,
		UserID:        r.UserID,
		Score:         r.Score,
		Reasoning:     r.Reasoning,
		Model:         r.Model,
		ScoredAt:      r.ScoredAt,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.Factors) > 0 {
		var f persistence.ScoreFactors
		if err := json.Unmarshal(r.Factors, &f); err != nil {
			return out, fmt.Errorf("failed to decode score factors: %w", err)
		}
		out.Factors = &f
	}
	return out, nil
}

func marshalFactors(f *persistence.ScoreFactors) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode score factors: %w", err)
	}
	return b, nil
}

func (r *scoreRepo) SaveConditionScore(ctx context.Context, score persistence.ConditionScore, promptID *string, promptText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	factors, err := marshalFactors(score.Factors)
	if err != nil {
		return "", err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if score.UserID == nil {
		// System scores replace in place: the superseded row is archived
		// first, tagged with the prompt that produced the new score.
		var old scoreRow
		err := tx.GetContext(ctx, &old, `
			SELECT id, slot_id, slot_timestamp, spot_id, sport, user_id, score,
			       reasoning, factors, model, scored_at, created_at
			FROM condition_scores
			WHERE slot_id = $1 AND sport = $2 AND user_id IS NULL
			FOR UPDATE`, score.SlotID, score.Sport)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO score_history
					(id, slot_id, sport, score, reasoning, factors, model, scored_at, prompt_id, prompt_text, replaced_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
				uuid.NewString(), old.SlotID, old.Sport, old.Score, old.Reasoning,
				old.Factors, old.Model, old.ScoredAt, promptID, promptText); err != nil {
				return "", fmt.Errorf("failed to archive score: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE condition_scores
				SET score = $1, reasoning = $2, factors = $3, model = $4, scored_at = $5
				WHERE id = $6`,
				score.Score, score.Reasoning, factors, score.Model, score.ScoredAt, old.ID); err != nil {
				return "", fmt.Errorf("failed to overwrite score: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return "", fmt.Errorf("failed to commit score replace: %w", err)
			}
			return old.ID, nil
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("failed to lock existing score: %w", err)
		}
	}

	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO condition_scores
			(id, slot_id, slot_timestamp, spot_id, sport, user_id, score, reasoning, factors, model, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		score.ID, score.SlotID, score.SlotTimestamp, score.SpotID, score.Sport,
		score.UserID, score.Score, score.Reasoning, factors, score.Model, score.ScoredAt); err != nil {
		return "", fmt.Errorf("failed to insert score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit score insert: %w", err)
	}
	return score.ID, nil
}

func (r *scoreRepo) GetConditionScores(ctx context.Context, spotID string, sport string, userID *string) ([]persistence.ConditionScore, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, slot_id, slot_timestamp, spot_id, sport, user_id, score,
		       reasoning, factors, model, scored_at, created_at
		FROM condition_scores
		WHERE spot_id = $1
		  AND (user_id IS NULL OR user_id = $2)`
	args := []any{spotID, userID}
	if sport != "" {
		query += ` AND sport = $3`
		args = append(args, sport)
	}
	query += ` ORDER BY slot_timestamp, sport, created_at`

	var rows []scoreRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}

	// Reconcile by slot timestamp so scores survive slot id churn across
	// scrape generations: newest system score per (timestamp, sport),
	// personalized overlay winning when present.
	type key struct {
		ts    int64
		sport string
	}
	effective := map[key]persistence.ConditionScore{}
	for _, row := range rows {
		score, err := row.toScore()
		if err != nil {
			return nil, err
		}
		k := key{ts: score.SlotTimestamp, sport: score.Sport}
		cur, ok := effective[k]
		if !ok {
			effective[k] = score
			continue
		}
		curPersonal := cur.UserID != nil
		newPersonal := score.UserID != nil
		switch {
		case newPersonal && !curPersonal:
			effective[k] = score
		case newPersonal == curPersonal && score.CreatedAt.After(cur.CreatedAt):
			effective[k] = score
		}
	}

	out := make([]persistence.ConditionScore, 0, len(effective))
	for _, s := range effective {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotTimestamp != out[j].SlotTimestamp {
			return out[i].SlotTimestamp < out[j].SlotTimestamp
		}
		return out[i].Sport < out[j].Sport
	})
	return out, nil
}

type historyRow struct {
	ID         string    `db:"id"`
	SlotID     string    `db:"slot_id"`
	Sport      string    `db:"sport"`
	Score      int       `db:"score"`
	Reasoning  string    `db:"reasoning"`
	Factors    []byte    `db:"factors"`
	Model      string    `db:"model"`
	ScoredAt   time.Time `db:"scored_at"`
	PromptID   *string   `db:"prompt_id"`
	PromptText string    `db:"prompt_text"`
	ReplacedAt time.Time `db:"replaced_at"`
}

func (r *scoreRepo) ListHistory(ctx context.Context, slotID, sport string) ([]persistence.ScoreHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, slot_id, sport, score, reasoning, factors, model, scored_at,
		       prompt_id, prompt_text, replaced_at
		FROM score_history
		WHERE slot_id = $1 AND sport = $2
		ORDER BY replaced_at`, slotID, sport); err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}

	out := make([]persistence.ScoreHistory, len(rows))
	for i, row := range rows {
		out[i] = persistence.ScoreHistory{
			ID:         row.ID,
			SlotID:     row.SlotID,
			Sport:      row.Sport,
			Score:      row.Score,
			Reasoning:  row.Reasoning,
			Model:      row.Model,
			ScoredAt:   row.ScoredAt,
			PromptID:   row.PromptID,
			PromptText: row.PromptText,
			ReplacedAt: row.ReplacedAt,
		}
		if len(row.Factors) > 0 {
			var f persistence.ScoreFactors
			if err := json.Unmarshal(row.Factors, &f); err != nil {
				return nil, fmt.Errorf("failed to decode archived factors: %w", err)
			}
			out[i].Factors = &f
		}
	}
	return out, nil
}
