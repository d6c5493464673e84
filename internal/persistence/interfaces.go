package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/spotline/spotline/internal/domain/tide"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Spot is a surfable/sailable location. Coordinates are optional; spots
// without them fall back to clock-based daylight classification and never
// get contextual slots. WindDirFrom/WindDirTo optionally bound the spot's
// favorable wind sector in compass degrees (wrap-around allowed).
type Spot struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Lat         *float64  `json:"lat,omitempty" db:"lat"`
	Lon         *float64  `json:"lon,omitempty" db:"lon"`
	Sports      []string  `json:"sports" db:"-"`
	WindDirFrom *float64  `json:"wind_dir_from,omitempty" db:"wind_dir_from"`
	WindDirTo   *float64  `json:"wind_dir_to,omitempty" db:"wind_dir_to"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ForecastScrape records one ingestion run for a spot. Failed validation
// keeps IsSuccessful false and the reason in ErrorMessage; the previous
// successful generation stays current.
type ForecastScrape struct {
	ID           string    `json:"id" db:"id"`
	SpotID       string    `json:"spot_id" db:"spot_id"`
	ScrapeTS     int64     `json:"scrape_ts" db:"scrape_ts"`
	IsSuccessful bool      `json:"is_successful" db:"is_successful"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	SlotCount    int       `json:"slot_count" db:"slot_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ForecastSlot is one discrete forecast time bucket, immutable once written.
// Timestamp (epoch ms, slot start) is the durable identity of a time-of-day
// across scrape generations; IDs are regenerated every scrape.
type ForecastSlot struct {
	ID         string    `json:"id" db:"id"`
	SpotID     string    `json:"spot_id" db:"spot_id"`
	ScrapeTS   int64     `json:"scrape_ts" db:"scrape_ts"`
	Timestamp  int64     `json:"timestamp" db:"timestamp"`
	WindSpeed  float64   `json:"wind_speed" db:"wind_speed"`
	WindGust   float64   `json:"wind_gust" db:"wind_gust"`
	WindDir    float64   `json:"wind_dir" db:"wind_dir"`
	WaveHeight *float64  `json:"wave_height,omitempty" db:"wave_height"`
	WavePeriod *float64  `json:"wave_period,omitempty" db:"wave_period"`
	WaveDir    *float64  `json:"wave_dir,omitempty" db:"wave_dir"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ScoreFactors is the optional per-dimension breakdown returned by the model.
type ScoreFactors struct {
	WindQuality       *int `json:"windQuality,omitempty"`
	WaveQuality       *int `json:"waveQuality,omitempty"`
	TideQuality       *int `json:"tideQuality,omitempty"`
	OverallConditions *int `json:"overallConditions,omitempty"`
}

// ConditionScore is the 0-100 quality score for one (slot, sport, user)
// triple. UserID nil marks the system score; at most one live system score
// exists per (slot, sport).
type ConditionScore struct {
	ID            string        `json:"id" db:"id"`
	SlotID        string        `json:"slot_id" db:"slot_id"`
	SlotTimestamp int64         `json:"slot_timestamp" db:"slot_timestamp"`
	SpotID        string        `json:"spot_id" db:"spot_id"`
	Sport         string        `json:"sport" db:"sport"`
	UserID        *string       `json:"user_id,omitempty" db:"user_id"`
	Score         int           `json:"score" db:"score"`
	Reasoning     string        `json:"reasoning" db:"reasoning"`
	Factors       *ScoreFactors `json:"factors,omitempty" db:"-"`
	Model         string        `json:"model" db:"model"`
	ScoredAt      time.Time     `json:"scored_at" db:"scored_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// ScoreHistory archives a superseded system score verbatim, tagged with the
// prompt identifiers/text that were active when it was replaced. Write-once.
type ScoreHistory struct {
	ID         string        `json:"id" db:"id"`
	SlotID     string        `json:"slot_id" db:"slot_id"`
	Sport      string        `json:"sport" db:"sport"`
	Score      int           `json:"score" db:"score"`
	Reasoning  string        `json:"reasoning" db:"reasoning"`
	Factors    *ScoreFactors `json:"factors,omitempty" db:"-"`
	Model      string        `json:"model" db:"model"`
	ScoredAt   time.Time     `json:"scored_at" db:"scored_at"`
	PromptID   *string       `json:"prompt_id,omitempty" db:"prompt_id"`
	PromptText string        `json:"prompt_text" db:"prompt_text"`
	ReplacedAt time.Time     `json:"replaced_at" db:"replaced_at"`
}

// ScoringPrompt is the spot+sport prompt layer. UserID nil is the system
// default; a personalized row takes priority when present and active.
type ScoringPrompt struct {
	ID             string    `json:"id" db:"id"`
	SpotID         string    `json:"spot_id" db:"spot_id"`
	Sport          string    `json:"sport" db:"sport"`
	UserID         *string   `json:"user_id,omitempty" db:"user_id"`
	SpotPrompt     string    `json:"spot_prompt" db:"spot_prompt"`
	TemporalPrompt string    `json:"temporal_prompt" db:"temporal_prompt"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// SystemSportPrompt is the sport-only guideline layer.
type SystemSportPrompt struct {
	ID        string    `json:"id" db:"id"`
	Sport     string    `json:"sport" db:"sport"`
	Text      string    `json:"text" db:"text"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ScoringLog is the append-only provenance record for one successful model
// call.
type ScoringLog struct {
	ID           string    `json:"id" db:"id"`
	SlotID       string    `json:"slot_id" db:"slot_id"`
	Sport        string    `json:"sport" db:"sport"`
	UserID       *string   `json:"user_id,omitempty" db:"user_id"`
	SystemPrompt string    `json:"system_prompt" db:"system_prompt"`
	UserPrompt   string    `json:"user_prompt" db:"user_prompt"`
	RawResponse  string    `json:"raw_response" db:"raw_response"`
	Model        string    `json:"model" db:"model"`
	Temperature  float64   `json:"temperature" db:"temperature"`
	MaxTokens    int       `json:"max_tokens" db:"max_tokens"`
	DurationMS   int64     `json:"duration_ms" db:"duration_ms"`
	Attempt      int       `json:"attempt" db:"attempt"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SpotRepo provides spot lookup; spot lifecycle belongs to the admin surface.
type SpotRepo interface {
	Create(ctx context.Context, spot Spot) (string, error)
	Get(ctx context.Context, id string) (*Spot, error)
	List(ctx context.Context) ([]Spot, error)
}

// SlotRepo persists forecast scrapes and their slots.
type SlotRepo interface {
	// InsertScrape records a scrape generation (successful or failed).
	InsertScrape(ctx context.Context, scrape ForecastScrape) error

	// InsertSlots writes one generation's slots.
	InsertSlots(ctx context.Context, slots []ForecastSlot) error

	// CurrentSlots returns the latest successful generation's slots, plus
	// any of today's slots present only in older generations.
	CurrentSlots(ctx context.Context, spotID string, now time.Time) ([]ForecastSlot, error)

	// SlotsByScrape returns one generation's slots ordered by timestamp.
	SlotsByScrape(ctx context.Context, spotID string, scrapeTS int64) ([]ForecastSlot, error)

	// GetSlot fetches a single slot by id.
	GetSlot(ctx context.Context, id string) (*ForecastSlot, error)

	// SlotsAround returns slots of a spot within [from, to] across
	// generations, newest generation winning per timestamp. Used for the
	// prompt's time-series context.
	SlotsAround(ctx context.Context, spotID string, from, to int64) ([]ForecastSlot, error)
}

// TideRepo stores the discrete tide extrema of a spot. The set is replaced
// wholesale on each ingestion; no history is kept.
type TideRepo interface {
	Replace(ctx context.Context, spotID string, events []tide.Event) error
	List(ctx context.Context, spotID string) ([]tide.Event, error)
}

// PromptRepo resolves the layered prompt configuration.
type PromptRepo interface {
	SaveSystemSportPrompt(ctx context.Context, p SystemSportPrompt) (string, error)
	SaveScoringPrompt(ctx context.Context, p ScoringPrompt) (string, error)

	// ActiveSystemSportPrompt returns the active sport-level guideline text,
	// or ErrNotFound when none is configured.
	ActiveSystemSportPrompt(ctx context.Context, sport string) (*SystemSportPrompt, error)

	// ActiveScoringPrompt resolves the spot+sport layer: a personalized
	// active row for userID wins, else the system (null user) row, else
	// ErrNotFound.
	ActiveScoringPrompt(ctx context.Context, spotID, sport string, userID *string) (*ScoringPrompt, error)

	// ListPersonalizedUsers returns the distinct users holding an active
	// personalized prompt layer for the spot.
	ListPersonalizedUsers(ctx context.Context, spotID string) ([]string, error)
}

// ScoreRepo persists condition scores with replace-and-archive semantics.
type ScoreRepo interface {
	// SaveConditionScore inserts the score, or, for a system score whose
	// (slot, sport) already has a live system row, archives the old row to
	// history (tagged with the supplied prompt id/text) and overwrites it
	// in place. The archive-then-overwrite sequence is atomic.
	SaveConditionScore(ctx context.Context, score ConditionScore, promptID *string, promptText string) (string, error)

	// GetConditionScores returns reconciled scores for a spot, keyed by slot
	// timestamp: deduplicated system scores (most recent per timestamp),
	// overlaid with the user's personalized scores when userID is set.
	// Sorted ascending by slot timestamp. sport may be empty for all sports.
	GetConditionScores(ctx context.Context, spotID string, sport string, userID *string) ([]ConditionScore, error)

	// ListHistory returns archived system scores for a slot/sport.
	ListHistory(ctx context.Context, slotID, sport string) ([]ScoreHistory, error)
}

// ScoringLogRepo appends provenance records.
type ScoringLogRepo interface {
	Insert(ctx context.Context, entry ScoringLog) error
	ListBySlot(ctx context.Context, slotID string) ([]ScoringLog, error)
}

// Store aggregates all persistence interfaces.
type Store struct {
	Spots   SpotRepo
	Slots   SlotRepo
	Tides   TideRepo
	Prompts PromptRepo
	Scores  ScoreRepo
	Logs    ScoringLogRepo
}
