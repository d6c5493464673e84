package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spotline/spotline/internal/persistence"
)

type slotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *slotRepo) InsertScrape(ctx context.Context, scrape persistence.ForecastScrape) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO forecast_scrapes (id, spot_id, scrape_ts, is_successful, error_message, slot_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		scrape.ID, scrape.SpotID, scrape.ScrapeTS, scrape.IsSuccessful, scrape.ErrorMessage, scrape.SlotCount)
	if err != nil {
		return fmt.Errorf("failed to insert scrape: %w", err)
	}
	return nil
}

func (r *slotRepo) InsertSlots(ctx context.Context, slots []persistence.ForecastSlot) error {
	if len(slots) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_slots
			(id, spot_id, scrape_ts, timestamp, wind_speed, wind_gust, wind_dir, wave_height, wave_period, wave_dir)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return fmt.Errorf("failed to prepare slot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range slots {
		if _, err := stmt.ExecContext(ctx,
			s.ID, s.SpotID, s.ScrapeTS, s.Timestamp,
			s.WindSpeed, s.WindGust, s.WindDir,
			s.WaveHeight, s.WavePeriod, s.WaveDir); err != nil {
			return fmt.Errorf("failed to insert slot %s: %w", s.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slots: %w", err)
	}
	return nil
}

const slotColumns = `id, spot_id, scrape_ts, timestamp, wind_speed, wind_gust, wind_dir,
	wave_height, wave_period, wave_dir, created_at`

func (r *slotRepo) CurrentSlots(ctx context.Context, spotID string, now time.Time) ([]persistence.ForecastSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var latest int64
	err := r.db.GetContext(ctx, &latest, `
		SELECT scrape_ts FROM forecast_scrapes
		WHERE spot_id = $1 AND is_successful
		ORDER BY scrape_ts DESC LIMIT 1`, spotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest scrape: %w", err)
	}

	var current []persistence.ForecastSlot
	if err := r.db.SelectContext(ctx, &current, `
		SELECT `+slotColumns+`
		FROM forecast_slots
		WHERE spot_id = $1 AND scrape_ts = $2
		ORDER BY timestamp`, spotID, latest); err != nil {
		return nil, fmt.Errorf("failed to query current slots: %w", err)
	}

	// Today's slots that only older generations still carry. A fresh
	// scrape often starts at "now" and drops the earlier hours of the
	// day; the UI still wants the full day.
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var stragglers []persistence.ForecastSlot
	if err := r.db.SelectContext(ctx, &stragglers, `
		SELECT DISTINCT ON (timestamp) `+slotColumns+`
		FROM forecast_slots
		WHERE spot_id = $1
		  AND scrape_ts < $2
		  AND timestamp >= $3 AND timestamp < $4
		  AND timestamp NOT IN (
			SELECT timestamp FROM forecast_slots WHERE spot_id = $1 AND scrape_ts = $2
		  )
		ORDER BY timestamp, scrape_ts DESC`,
		spotID, latest, dayStart.UnixMilli(), dayEnd.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to query straggler slots: %w", err)
	}

	out := append(stragglers, current...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (r *slotRepo) SlotsByScrape(ctx context.Context, spotID string, scrapeTS int64) ([]persistence.ForecastSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.ForecastSlot
	if err := r.db.SelectContext(ctx, &out, `
		SELECT `+slotColumns+`
		FROM forecast_slots
		WHERE spot_id = $1 AND scrape_ts = $2
		ORDER BY timestamp`, spotID, scrapeTS); err != nil {
		return nil, fmt.Errorf("failed to query scrape slots: %w", err)
	}
	return out, nil
}

func (r *slotRepo) GetSlot(ctx context.Context, id string) (*persistence.ForecastSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var slot persistence.ForecastSlot
	err := r.db.GetContext(ctx, &slot, `
		SELECT `+slotColumns+`
		FROM forecast_slots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepo) SlotsAround(ctx context.Context, spotID string, from, to int64) ([]persistence.ForecastSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []persistence.ForecastSlot
	if err := r.db.SelectContext(ctx, &out, `
		SELECT DISTINCT ON (timestamp) `+slotColumns+`
		FROM forecast_slots
		WHERE spot_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp, scrape_ts DESC`, spotID, from, to); err != nil {
		return nil, fmt.Errorf("failed to query surrounding slots: %w", err)
	}
	return out, nil
}
