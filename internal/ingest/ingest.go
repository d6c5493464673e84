// Package ingest accepts scrape and tide data from the collection
// collaborators, validates it, and hands scoring work to the queue.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/spotline/spotline/internal/domain/tide"
	"github.com/spotline/spotline/internal/persistence"
	"github.com/spotline/spotline/internal/queue"
)

// Validation thresholds for a scrape generation.
const (
	minSlots          = 10
	minFutureCoverage = 24 * time.Hour
)

// DefaultPersonalizationDelay is how long the personalization job trails
// the system job, giving system scoring a head start.
const DefaultPersonalizationDelay = 30 * time.Second

// SlotInput is one forecast slot as delivered by the scraper, before ids
// are assigned.
type SlotInput struct {
	Timestamp  int64    `json:"timestamp"`
	WindSpeed  float64  `json:"wind_speed"`
	WindGust   float64  `json:"wind_gust"`
	WindDir    float64  `json:"wind_dir"`
	WaveHeight *float64 `json:"wave_height,omitempty"`
	WavePeriod *float64 `json:"wave_period,omitempty"`
	WaveDir    *float64 `json:"wave_dir,omitempty"`
}

// Result reports one ingestion attempt.
type Result struct {
	ScrapeID     string `json:"scrape_id"`
	IsSuccessful bool   `json:"is_successful"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Service is the ingestion entry point.
type Service struct {
	store                *persistence.Store
	queue                queue.Queue
	personalizationDelay time.Duration

	now func() time.Time
}

// New builds an ingestion service. delay <= 0 uses
// DefaultPersonalizationDelay.
func New(store *persistence.Store, q queue.Queue, delay time.Duration) *Service {
	if delay <= 0 {
		delay = DefaultPersonalizationDelay
	}
	return &Service{
		store:                store,
		queue:                q,
		personalizationDelay: delay,
		now:                  time.Now,
	}
}

// SaveForecastSlots persists one scrape generation. Validation failure
// records the scrape with its error message and enqueues nothing; the
// previous successful generation stays current until the next scheduled
// scrape implicitly retries.
func (s *Service) SaveForecastSlots(ctx context.Context, spotID string, scrapeTS int64, slots []SlotInput) (Result, error) {
	scrapeID := uuid.NewString()

	if msg := s.validate(slots); msg != "" {
		scrape := persistence.ForecastScrape{
			ID:           scrapeID,
			SpotID:       spotID,
			ScrapeTS:     scrapeTS,
			IsSuccessful: false,
			ErrorMessage: &msg,
			SlotCount:    len(slots),
		}
		if err := s.store.Slots.InsertScrape(ctx, scrape); err != nil {
			return Result{}, fmt.Errorf("failed to record failed scrape: %w", err)
		}
		log.Warn().Str("spot_id", spotID).Str("reason", msg).Msg("scrape failed validation")
		return Result{ScrapeID: scrapeID, IsSuccessful: false, ErrorMessage: msg}, nil
	}

	rows := make([]persistence.ForecastSlot, len(slots))
	slotIDs := make([]string, len(slots))
	for i, in := range slots {
		id := uuid.NewString()
		slotIDs[i] = id
		rows[i] = persistence.ForecastSlot{
			ID:         id,
			SpotID:     spotID,
			ScrapeTS:   scrapeTS,
			Timestamp:  in.Timestamp,
			WindSpeed:  in.WindSpeed,
			WindGust:   in.WindGust,
			WindDir:    in.WindDir,
			WaveHeight: in.WaveHeight,
			WavePeriod: in.WavePeriod,
			WaveDir:    in.WaveDir,
		}
	}

	if err := s.store.Slots.InsertScrape(ctx, persistence.ForecastScrape{
		ID:           scrapeID,
		SpotID:       spotID,
		ScrapeTS:     scrapeTS,
		IsSuccessful: true,
		SlotCount:    len(rows),
	}); err != nil {
		return Result{}, fmt.Errorf("failed to record scrape: %w", err)
	}
	if err := s.store.Slots.InsertSlots(ctx, rows); err != nil {
		return Result{}, fmt.Errorf("failed to insert slots: %w", err)
	}

	now := s.now()
	systemJob := queue.Job{
		ID:        uuid.NewString(),
		SpotID:    spotID,
		ScrapeTS:  scrapeTS,
		SlotIDs:   slotIDs,
		NotBefore: now,
	}
	if err := s.queue.Enqueue(ctx, systemJob); err != nil {
		// Slots are durable; scoring can be replayed manually
		log.Error().Err(err).Str("spot_id", spotID).Msg("failed to enqueue system scoring job")
	}

	personalJob := queue.Job{
		ID:           uuid.NewString(),
		SpotID:       spotID,
		ScrapeTS:     scrapeTS,
		SlotIDs:      slotIDs,
		Personalized: true,
		NotBefore:    now.Add(s.personalizationDelay),
	}
	if err := s.queue.Enqueue(ctx, personalJob); err != nil {
		log.Error().Err(err).Str("spot_id", spotID).Msg("failed to enqueue personalized scoring job")
	}

	log.Info().
		Str("spot_id", spotID).
		Int64("scrape_ts", scrapeTS).
		Int("slots", len(rows)).
		Msg("scrape ingested, scoring enqueued")
	return Result{ScrapeID: scrapeID, IsSuccessful: true}, nil
}

// validate returns an empty string for a good scrape, else the reason.
func (s *Service) validate(slots []SlotInput) string {
	if len(slots) < minSlots {
		return fmt.Sprintf("too few slots: %d < %d", len(slots), minSlots)
	}

	now := s.now()
	var latest int64
	future := false
	for _, sl := range slots {
		if sl.Timestamp > now.UnixMilli() {
			future = true
		}
		if sl.Timestamp > latest {
			latest = sl.Timestamp
		}
	}
	if !future {
		return "scrape contains no future data"
	}
	if time.UnixMilli(latest).Sub(now) < minFutureCoverage {
		return fmt.Sprintf("future coverage under %s", minFutureCoverage)
	}
	return ""
}

// ReplaceTideEvents replaces a spot's entire tide set. Events are
// validated and stored sorted; no tide history is retained.
func (s *Service) ReplaceTideEvents(ctx context.Context, spotID string, events []tide.Event) error {
	for _, ev := range events {
		if ev.Type != "high" && ev.Type != "low" {
			return fmt.Errorf("invalid tide type %q", ev.Type)
		}
	}
	sorted := make([]tide.Event, len(events))
	copy(sorted, events)
	tide.SortEvents(sorted)

	if err := s.store.Tides.Replace(ctx, spotID, sorted); err != nil {
		return fmt.Errorf("failed to replace tide events: %w", err)
	}
	log.Info().Str("spot_id", spotID).Int("events", len(sorted)).Msg("tide set replaced")
	return nil
}
