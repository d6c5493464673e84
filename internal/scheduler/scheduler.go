// Package scheduler drives the periodic ingestion jobs: forecast scrapes
// and tide refreshes per spot. The actual fetching is pluggable; external
// collectors can also push through the HTTP API, in which case the
// scheduler stays disabled.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spotline/spotline/internal/domain/tide"
	"github.com/spotline/spotline/internal/ingest"
	"github.com/spotline/spotline/internal/persistence"
)

// ForecastFetcher pulls a fresh forecast for one spot.
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, spot persistence.Spot) ([]ingest.SlotInput, error)
}

// TideFetcher pulls the tide extrema for one spot.
type TideFetcher interface {
	FetchTides(ctx context.Context, spot persistence.Spot) ([]tide.Event, error)
}

// Job names accepted by RunJob.
const (
	JobScrape = "scrape"
	JobTides  = "tides"
)

// Status is a snapshot of the scheduler loop.
type Status struct {
	Running    bool                 `json:"running"`
	LastRun    map[string]time.Time `json:"last_run"`
	NextScrape time.Time            `json:"next_scrape"`
	NextTides  time.Time            `json:"next_tides"`
}

// Scheduler runs the periodic jobs on their intervals.
type Scheduler struct {
	store     *persistence.Store
	ingestSvc *ingest.Service
	forecasts ForecastFetcher
	tides     TideFetcher

	scrapeInterval time.Duration
	tideInterval   time.Duration

	mu      sync.Mutex
	running bool
	lastRun map[string]time.Time
}

// New builds a scheduler. Either fetcher may be nil, disabling its job.
func New(store *persistence.Store, svc *ingest.Service, forecasts ForecastFetcher, tides TideFetcher, scrapeInterval, tideInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:          store,
		ingestSvc:      svc,
		forecasts:      forecasts,
		tides:          tides,
		scrapeInterval: scrapeInterval,
		tideInterval:   tideInterval,
		lastRun:        map[string]time.Time{},
	}
}

// Start runs the loop until ctx is cancelled. Jobs fire when their
// interval has elapsed since the last run, checked once a minute.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Info().
		Dur("scrape_interval", s.scrapeInterval).
		Dur("tide_interval", s.tideInterval).
		Msg("scheduler started")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// First pass immediately so a fresh deploy doesn't wait a full interval
	s.checkAndRunJobs(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.checkAndRunJobs(ctx)
		}
	}
}

func (s *Scheduler) checkAndRunJobs(ctx context.Context) {
	if s.forecasts != nil && s.due(JobScrape, s.scrapeInterval) {
		if err := s.RunJob(ctx, JobScrape); err != nil {
			log.Error().Err(err).Msg("scheduled scrape failed")
		}
	}
	if s.tides != nil && s.due(JobTides, s.tideInterval) {
		if err := s.RunJob(ctx, JobTides); err != nil {
			log.Error().Err(err).Msg("scheduled tide refresh failed")
		}
	}
}

func (s *Scheduler) due(name string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	return !ok || time.Since(last) >= interval
}

// RunJob executes one named job immediately, across all spots.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	spots, err := s.store.Spots.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list spots: %w", err)
	}

	s.mu.Lock()
	s.lastRun[name] = time.Now()
	s.mu.Unlock()

	switch name {
	case JobScrape:
		for _, spot := range spots {
			s.scrapeSpot(ctx, spot)
		}
	case JobTides:
		for _, spot := range spots {
			s.refreshTides(ctx, spot)
		}
	default:
		return fmt.Errorf("unknown job %q", name)
	}
	return nil
}

func (s *Scheduler) scrapeSpot(ctx context.Context, spot persistence.Spot) {
	if s.forecasts == nil {
		return
	}
	slots, err := s.forecasts.FetchForecast(ctx, spot)
	if err != nil {
		log.Error().Err(err).Str("spot_id", spot.ID).Msg("forecast fetch failed")
		return
	}
	res, err := s.ingestSvc.SaveForecastSlots(ctx, spot.ID, time.Now().UnixMilli(), slots)
	if err != nil {
		log.Error().Err(err).Str("spot_id", spot.ID).Msg("forecast ingest failed")
		return
	}
	if !res.IsSuccessful {
		log.Warn().Str("spot_id", spot.ID).Str("reason", res.ErrorMessage).Msg("scrape rejected")
	}
}

func (s *Scheduler) refreshTides(ctx context.Context, spot persistence.Spot) {
	if s.tides == nil {
		return
	}
	events, err := s.tides.FetchTides(ctx, spot)
	if err != nil {
		log.Error().Err(err).Str("spot_id", spot.ID).Msg("tide fetch failed")
		return
	}
	if err := s.ingestSvc.ReplaceTideEvents(ctx, spot.ID, events); err != nil {
		log.Error().Err(err).Str("spot_id", spot.ID).Msg("tide replace failed")
	}
}

// GetStatus reports the loop state and next fire times.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := make(map[string]time.Time, len(s.lastRun))
	for k, v := range s.lastRun {
		last[k] = v
	}
	return Status{
		Running:    s.running,
		LastRun:    last,
		NextScrape: s.lastRun[JobScrape].Add(s.scrapeInterval),
		NextTides:  s.lastRun[JobTides].Add(s.tideInterval),
	}
}
