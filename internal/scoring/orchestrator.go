package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/spotline/spotline/internal/domain/conditions"
	"github.com/spotline/spotline/internal/domain/daylight"
	"github.com/spotline/spotline/internal/metrics"
	"github.com/spotline/spotline/internal/persistence"
)

// DefaultPace is the fixed delay between outbound model calls. Pacing is
// deterministic client-side throttling, not reactive rate limiting.
const DefaultPace = 100 * time.Millisecond

// Summary tallies one orchestrator run.
type Summary struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// workItem is one (slot, sport) pair selected for scoring.
type workItem struct {
	slot         persistence.ForecastSlot
	sport        conditions.Sport
	isContextual bool
}

// Orchestrator selects which (slot, sport) pairs of a scrape deserve a
// model call and processes them strictly sequentially. A failed pair never
// aborts the rest of the work list.
type Orchestrator struct {
	scorer     *Scorer
	store      *persistence.Store
	classifier *daylight.Classifier
	limiter    *rate.Limiter
}

// NewOrchestrator builds an Orchestrator pacing calls at the given
// interval (DefaultPace when zero).
func NewOrchestrator(scorer *Scorer, store *persistence.Store, classifier *daylight.Classifier, pace time.Duration) *Orchestrator {
	if pace <= 0 {
		pace = DefaultPace
	}
	return &Orchestrator{
		scorer:     scorer,
		store:      store,
		classifier: classifier,
		limiter:    rate.NewLimiter(rate.Every(pace), 1),
	}
}

// ScoreForecastSlots scores the system (non-personalized) pass over one
// scrape generation. Pairs are enumerated in input slot order crossed with
// the spot's supported-sport order.
func (o *Orchestrator) ScoreForecastSlots(ctx context.Context, spotID string, scrapeTS int64, slotIDs []string) (Summary, error) {
	start := time.Now()
	defer func() { metrics.ScoringRunSeconds.Observe(time.Since(start).Seconds()) }()

	work, err := o.buildWorkList(ctx, spotID, scrapeTS, slotIDs)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Total: len(work)}
	for _, item := range work {
		if err := o.limiter.Wait(ctx); err != nil {
			return summary, err
		}
		o.scoreOne(ctx, &summary, item, spotID, nil)
	}

	log.Info().
		Str("spot_id", spotID).
		Int64("scrape_ts", scrapeTS).
		Int("success", summary.Success).
		Int("failure", summary.Failure).
		Int("skipped", summary.Skipped).
		Int("total", summary.Total).
		Msg("system scoring run finished")
	return summary, nil
}

// ScoreForecastSlotsForUsers runs the personalization pass: each user with
// an active personalized prompt layer for the spot/sport gets their own
// scores; users without one are skipped since their effective score is the
// system one anyway.
func (o *Orchestrator) ScoreForecastSlotsForUsers(ctx context.Context, spotID string, scrapeTS int64, slotIDs []string, userIDs []string) (Summary, error) {
	work, err := o.buildWorkList(ctx, spotID, scrapeTS, slotIDs)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, userID := range userIDs {
		uid := userID
		for _, item := range work {
			p, err := o.store.Prompts.ActiveScoringPrompt(ctx, spotID, item.sport.Tag(), &uid)
			if err != nil || p.UserID == nil {
				continue // no personalized layer for this user/sport
			}

			summary.Total++
			if err := o.limiter.Wait(ctx); err != nil {
				return summary, err
			}
			o.scoreOne(ctx, &summary, item, spotID, &uid)
		}
	}

	log.Info().
		Str("spot_id", spotID).
		Int("users", len(userIDs)).
		Int("success", summary.Success).
		Int("failure", summary.Failure).
		Msg("personalized scoring run finished")
	return summary, nil
}

func (o *Orchestrator) scoreOne(ctx context.Context, summary *Summary, item workItem, spotID string, userID *string) {
	_, err := o.scorer.ScoreSingleSlot(ctx, item.slot.ID, item.sport.Tag(), spotID, userID, item.isContextual)
	switch {
	case err == nil:
		summary.Success++
		metrics.ScoresTotal.WithLabelValues("scored").Inc()
	case errors.Is(err, ErrNoActivePrompt):
		summary.Skipped++
		metrics.ScoresTotal.WithLabelValues("skipped").Inc()
		log.Warn().
			Str("sport", item.sport.Tag()).
			Str("slot_id", item.slot.ID).
			Msg("skipping pair without guideline text")
	default:
		summary.Failure++
		metrics.ScoresTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).
			Str("sport", item.sport.Tag()).
			Str("slot_id", item.slot.ID).
			Msg("pair exhausted retries, moving on")
	}
}

// buildWorkList enumerates the (slot, sport) pairs worth a model call:
// daylight slots for every supported sport, plus each sport class's single
// contextual slot.
func (o *Orchestrator) buildWorkList(ctx context.Context, spotID string, scrapeTS int64, slotIDs []string) ([]workItem, error) {
	spot, err := o.store.Spots.Get(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load spot %s: %w", spotID, err)
	}

	generation, err := o.store.Slots.SlotsByScrape(ctx, spotID, scrapeTS)
	if err != nil {
		return nil, fmt.Errorf("failed to load scrape slots: %w", err)
	}
	byID := make(map[string]persistence.ForecastSlot, len(generation))
	allTimes := make([]int64, 0, len(generation))
	for _, s := range generation {
		byID[s.ID] = s
		allTimes = append(allTimes, s.Timestamp)
	}

	var coords *daylight.Coordinates
	if spot.Lat != nil && spot.Lon != nil {
		coords = &daylight.Coordinates{Lat: *spot.Lat, Lon: *spot.Lon}
	}

	var work []workItem
	for _, id := range slotIDs {
		slot, ok := byID[id]
		if !ok {
			log.Warn().Str("slot_id", id).Msg("slot not part of scrape generation, skipping")
			continue
		}

		isDay := o.classifier.IsDaylight(time.UnixMilli(slot.Timestamp), coords)
		for _, tag := range spot.Sports {
			sport, ok := conditions.FromTag(tag)
			if !ok {
				log.Warn().Str("sport", tag).Msg("unknown sport tag on spot, skipping")
				continue
			}
			isCtx := o.classifier.IsContextual(slot.Timestamp, coords, sport, allTimes)
			if !isDay && !isCtx {
				continue
			}
			work = append(work, workItem{slot: slot, sport: sport, isContextual: isCtx})
		}
	}
	return work, nil
}
