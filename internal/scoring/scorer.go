package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/spotline/spotline/internal/domain/daylight"
	"github.com/spotline/spotline/internal/domain/tide"
	"github.com/spotline/spotline/internal/llm"
	"github.com/spotline/spotline/internal/metrics"
	"github.com/spotline/spotline/internal/persistence"
	"github.com/spotline/spotline/internal/prompt"
)

// ErrNoActivePrompt marks a (slot, sport) pair that cannot be scored
// because no guideline text exists for the sport. The pair is skipped
// without a model call.
var ErrNoActivePrompt = errors.New("no active system prompt for sport")

// Context window for the prompt's compressed time series: slots are
// gathered 72h back and 12h forward (plus anchor tolerance).
const (
	contextBack    = 74 * time.Hour
	contextForward = 14 * time.Hour
)

// Scorer performs a single (slot, sport, user) scoring call end to end:
// prompt assembly, model call with retries, score persistence, provenance
// log. No score or log row is written when the call ultimately fails.
type Scorer struct {
	store      *persistence.Store
	client     *llm.Client
	builder    *prompt.Builder
	classifier *daylight.Classifier
	notifier   Notifier
}

// Notifier receives every freshly persisted score. Used to push live
// updates to websocket subscribers; nil disables notification.
type Notifier interface {
	ScoreSaved(score persistence.ConditionScore)
}

// SetNotifier installs the live-update sink. Not safe to call once
// scoring has started.
func (s *Scorer) SetNotifier(n Notifier) { s.notifier = n }

// NewScorer wires a Scorer from its collaborators.
func NewScorer(store *persistence.Store, client *llm.Client, builder *prompt.Builder, classifier *daylight.Classifier) *Scorer {
	return &Scorer{
		store:      store,
		client:     client,
		builder:    builder,
		classifier: classifier,
	}
}

// ScoreSingleSlot scores one (slot, sport) pair, optionally for a specific
// user. Returns the validated model result, ErrNoActivePrompt when the
// sport has no guideline text, or the exhausted-retries error.
func (s *Scorer) ScoreSingleSlot(ctx context.Context, slotID, sport, spotID string, userID *string, isContextual bool) (*llm.Result, error) {
	slot, err := s.store.Slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %s: %w", slotID, err)
	}
	spot, err := s.store.Spots.Get(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load spot %s: %w", spotID, err)
	}

	msgs, spotPromptID, err := s.assemblePrompt(ctx, spot, slot, sport, userID, isContextual)
	if err != nil {
		return nil, err
	}

	result, err := s.client.Score(ctx, llm.Messages{System: msgs.System, User: msgs.User})
	if err != nil {
		metrics.LLMAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LLMAttemptsTotal.WithLabelValues("ok").Inc()
	metrics.LLMCallSeconds.Observe(result.Duration.Seconds())

	score := persistence.ConditionScore{
		ID:            uuid.NewString(),
		SlotID:        slot.ID,
		SlotTimestamp: slot.Timestamp,
		SpotID:        spot.ID,
		Sport:         sport,
		UserID:        userID,
		Score:         result.Score,
		Reasoning:     result.Reasoning,
		Factors:       convertFactors(result.Factors),
		Model:         result.Model,
		ScoredAt:      time.Now(),
	}
	savedID, err := s.store.Scores.SaveConditionScore(ctx, score, spotPromptID, msgs.System)
	if err != nil {
		return nil, fmt.Errorf("failed to save score: %w", err)
	}
	score.ID = savedID
	if s.notifier != nil {
		s.notifier.ScoreSaved(score)
	}

	entry := persistence.ScoringLog{
		ID:           uuid.NewString(),
		SlotID:       slot.ID,
		Sport:        sport,
		UserID:       userID,
		SystemPrompt: msgs.System,
		UserPrompt:   msgs.User,
		RawResponse:  result.Raw,
		Model:        result.Model,
		Temperature:  s.client.Temperature(),
		MaxTokens:    s.client.MaxTokens(),
		DurationMS:   result.Duration.Milliseconds(),
		Attempt:      result.Attempt,
	}
	if err := s.store.Logs.Insert(ctx, entry); err != nil {
		// The score is already durable; a lost provenance row is logged
		// but does not fail the pair.
		log.Error().Err(err).Str("slot_id", slot.ID).Msg("failed to write scoring log")
	}

	return result, nil
}

func (s *Scorer) assemblePrompt(ctx context.Context, spot *persistence.Spot, slot *persistence.ForecastSlot, sport string, userID *string, isContextual bool) (prompt.Messages, *string, error) {
	var systemText string
	sysPrompt, err := s.store.Prompts.ActiveSystemSportPrompt(ctx, sport)
	switch {
	case err == nil:
		systemText = sysPrompt.Text
	case errors.Is(err, persistence.ErrNotFound):
		// Builder falls back to the injected per-sport default text; the
		// pair is only skipped when that is missing too.
		if !s.builder.HasDefault(sport) {
			return prompt.Messages{}, nil, fmt.Errorf("%w: %s", ErrNoActivePrompt, sport)
		}
	default:
		return prompt.Messages{}, nil, fmt.Errorf("failed to resolve system prompt: %w", err)
	}

	var spotText, temporalText string
	var spotPromptID *string
	scoringPrompt, err := s.store.Prompts.ActiveScoringPrompt(ctx, spot.ID, sport, userID)
	switch {
	case err == nil:
		spotText = scoringPrompt.SpotPrompt
		temporalText = scoringPrompt.TemporalPrompt
		spotPromptID = &scoringPrompt.ID
	case errors.Is(err, persistence.ErrNotFound):
		// Spot layer is optional
	default:
		return prompt.Messages{}, nil, fmt.Errorf("failed to resolve scoring prompt: %w", err)
	}

	contextSlots, err := s.store.Slots.SlotsAround(ctx, spot.ID,
		slot.Timestamp-contextBack.Milliseconds(),
		slot.Timestamp+contextForward.Milliseconds())
	if err != nil {
		return prompt.Messages{}, nil, fmt.Errorf("failed to load context slots: %w", err)
	}

	tides, err := s.store.Tides.List(ctx, spot.ID)
	if err != nil {
		return prompt.Messages{}, nil, fmt.Errorf("failed to load tides: %w", err)
	}

	in := prompt.BuildInput{
		Sport:        sport,
		SpotName:     spot.Name,
		SystemText:   systemText,
		SpotText:     spotText,
		TemporalText: temporalText,
		Current:      slotData(*slot, tides),
		IsContextual: isContextual,
	}
	for _, cs := range contextSlots {
		if cs.Timestamp == slot.Timestamp {
			continue
		}
		in.Context = append(in.Context, slotData(cs, nil))
	}
	if spot.Lat != nil && spot.Lon != nil {
		rise, set := s.classifier.SunTimes(daylight.Coordinates{Lat: *spot.Lat, Lon: *spot.Lon}, time.UnixMilli(slot.Timestamp))
		in.Sunrise = &rise
		in.Sunset = &set
	}

	return s.builder.Build(in), spotPromptID, nil
}

// slotData maps a stored slot into prompt input; the tide annotation uses a
// throwaway used-set since only one slot is formatted per call.
func slotData(slot persistence.ForecastSlot, tides []tide.Event) prompt.SlotData {
	sd := prompt.SlotData{
		Timestamp:  slot.Timestamp,
		WindSpeed:  slot.WindSpeed,
		WindGust:   slot.WindGust,
		WindDir:    slot.WindDir,
		WaveHeight: slot.WaveHeight,
		WavePeriod: slot.WavePeriod,
		WaveDir:    slot.WaveDir,
	}
	if len(tides) > 0 {
		sd.Tide = tide.FindTideForSlot(slot.Timestamp, 0, tides, map[int64]bool{})
	}
	return sd
}

func convertFactors(f *llm.Factors) *persistence.ScoreFactors {
	if f == nil {
		return nil
	}
	return &persistence.ScoreFactors{
		WindQuality:       f.WindQuality,
		WaveQuality:       f.WaveQuality,
		TideQuality:       f.TideQuality,
		OverallConditions: f.OverallConditions,
	}
}
