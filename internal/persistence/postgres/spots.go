package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/spotline/spotline/internal/persistence"
)

type spotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

type spotRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Lat         *float64       `db:"lat"`
	Lon         *float64       `db:"lon"`
	Sports      pq.StringArray `db:"sports"`
	WindDirFrom *float64       `db:"wind_dir_from"`
	WindDirTo   *float64       `db:"wind_dir_to"`
	Notes       string         `db:"notes"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r spotRow) toSpot() persistence.Spot {
	return persistence.Spot{
		ID:          r.ID,
		Name:        r.Name,
		Lat:         r.Lat,
		Lon:         r.Lon,
		Sports:      []string(r.Sports),
		WindDirFrom: r.WindDirFrom,
		WindDirTo:   r.WindDirTo,
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *spotRepo) Create(ctx context.Context, spot persistence.Spot) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if spot.ID == "" {
		spot.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO spots (id, name, lat, lon, sports, wind_dir_from, wind_dir_to, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		spot.ID, spot.Name, spot.Lat, spot.Lon, pq.StringArray(spot.Sports),
		spot.WindDirFrom, spot.WindDirTo, spot.Notes)
	if err != nil {
		return "", fmt.Errorf("failed to insert spot: %w", err)
	}
	return spot.ID, nil
}

func (r *spotRepo) Get(ctx context.Context, id string) (*persistence.Spot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row spotRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, lat, lon, sports, wind_dir_from, wind_dir_to, notes, created_at
		FROM spots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query spot: %w", err)
	}
	spot := row.toSpot()
	return &spot, nil
}

func (r *spotRepo) List(ctx context.Context) ([]persistence.Spot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []spotRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, lat, lon, sports, wind_dir_from, wind_dir_to, notes, created_at
		FROM spots ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}

	out := make([]persistence.Spot, len(rows))
	for i, row := range rows {
		out[i] = row.toSpot()
	}
	return out, nil
}
