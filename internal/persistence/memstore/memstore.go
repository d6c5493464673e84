// Package memstore is an in-memory implementation of the persistence
// interfaces, used by tests and by dev setups without Postgres. Semantics
// mirror the postgres package, including the archive-then-overwrite rule
// for system scores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spotline/spotline/internal/domain/tide"
	"github.com/spotline/spotline/internal/persistence"
)

// Mem holds all tables behind one mutex; the write volume here is a
// scoring pipeline, not a trading feed.
type Mem struct {
	mu          sync.Mutex
	spots       map[string]persistence.Spot
	scrapes     []persistence.ForecastScrape
	slots       []persistence.ForecastSlot
	tides       map[string][]tide.Event
	sysPrompts  []persistence.SystemSportPrompt
	spotPrompts []persistence.ScoringPrompt
	scores      []persistence.ConditionScore
	history     []persistence.ScoreHistory
	logs        []persistence.ScoringLog
}

// New returns an empty in-memory store wired into a persistence.Store.
func New() (*Mem, *persistence.Store) {
	m := &Mem{
		spots: make(map[string]persistence.Spot),
		tides: make(map[string][]tide.Event),
	}
	return m, &persistence.Store{
		Spots:   m,
		Slots:   m,
		Tides:   tideRepo{m},
		Prompts: m,
		Scores:  m,
		Logs:    m,
	}
}

func (m *Mem) Create(ctx context.Context, spot persistence.Spot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if spot.ID == "" {
		spot.ID = uuid.NewString()
	}
	if spot.CreatedAt.IsZero() {
		spot.CreatedAt = time.Now()
	}
	m.spots[spot.ID] = spot
	return spot.ID, nil
}

func (m *Mem) Get(ctx context.Context, id string) (*persistence.Spot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spots[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &s, nil
}

func (m *Mem) List(ctx context.Context) ([]persistence.Spot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.Spot, 0, len(m.spots))
	for _, s := range m.spots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Mem) InsertScrape(ctx context.Context, scrape persistence.ForecastScrape) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if scrape.CreatedAt.IsZero() {
		scrape.CreatedAt = time.Now()
	}
	m.scrapes = append(m.scrapes, scrape)
	return nil
}

func (m *Mem) InsertSlots(ctx context.Context, slots []persistence.ForecastSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range slots {
		if slots[i].CreatedAt.IsZero() {
			slots[i].CreatedAt = time.Now()
		}
	}
	m.slots = append(m.slots, slots...)
	return nil
}

func (m *Mem) CurrentSlots(ctx context.Context, spotID string, now time.Time) ([]persistence.ForecastSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest int64 = -1
	for _, sc := range m.scrapes {
		if sc.SpotID == spotID && sc.IsSuccessful && sc.ScrapeTS > latest {
			latest = sc.ScrapeTS
		}
	}
	if latest < 0 {
		return nil, nil
	}

	seen := make(map[int64]bool)
	var out []persistence.ForecastSlot
	for _, s := range m.slots {
		if s.SpotID == spotID && s.ScrapeTS == latest {
			out = append(out, s)
			seen[s.Timestamp] = true
		}
	}

	// Today's slots that only exist in older generations stay visible
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UnixMilli()
	dayEnd := dayStart + (24 * time.Hour).Milliseconds()
	older := make(map[int64]persistence.ForecastSlot)
	for _, s := range m.slots {
		if s.SpotID != spotID || s.ScrapeTS == latest || seen[s.Timestamp] {
			continue
		}
		if s.Timestamp < dayStart || s.Timestamp >= dayEnd {
			continue
		}
		if prev, ok := older[s.Timestamp]; !ok || s.ScrapeTS > prev.ScrapeTS {
			older[s.Timestamp] = s
		}
	}
	for _, s := range older {
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *Mem) SlotsByScrape(ctx context.Context, spotID string, scrapeTS int64) ([]persistence.ForecastSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.ForecastSlot
	for _, s := range m.slots {
		if s.SpotID == spotID && s.ScrapeTS == scrapeTS {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *Mem) GetSlot(ctx context.Context, id string) (*persistence.ForecastSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ID == id {
			out := s
			return &out, nil
		}
	}
	return nil, persistence.ErrNotFound
}

func (m *Mem) SlotsAround(ctx context.Context, spotID string, from, to int64) ([]persistence.ForecastSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	best := make(map[int64]persistence.ForecastSlot)
	for _, s := range m.slots {
		if s.SpotID != spotID || s.Timestamp < from || s.Timestamp > to {
			continue
		}
		if prev, ok := best[s.Timestamp]; !ok || s.ScrapeTS > prev.ScrapeTS {
			best[s.Timestamp] = s
		}
	}

	out := make([]persistence.ForecastSlot, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// tideRepo wraps Mem so its List does not clash with SpotRepo's.
type tideRepo struct{ m *Mem }

func (r tideRepo) Replace(ctx context.Context, spotID string, events []tide.Event) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := make([]tide.Event, len(events))
	copy(cp, events)
	tide.SortEvents(cp)
	r.m.tides[spotID] = cp
	return nil
}

func (r tideRepo) List(ctx context.Context, spotID string) ([]tide.Event, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := make([]tide.Event, len(r.m.tides[spotID]))
	copy(cp, r.m.tides[spotID])
	return cp, nil
}

func (m *Mem) SaveSystemSportPrompt(ctx context.Context, p persistence.SystemSportPrompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now()
	m.sysPrompts = append(m.sysPrompts, p)
	return p.ID, nil
}

func (m *Mem) SaveScoringPrompt(ctx context.Context, p persistence.ScoringPrompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now()
	m.spotPrompts = append(m.spotPrompts, p)
	return p.ID, nil
}

func (m *Mem) ActiveSystemSportPrompt(ctx context.Context, sport string) (*persistence.SystemSportPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *persistence.SystemSportPrompt
	for i := range m.sysPrompts {
		p := m.sysPrompts[i]
		if p.Sport == sport && p.IsActive {
			if best == nil || p.UpdatedAt.After(best.UpdatedAt) {
				best = &p
			}
		}
	}
	if best == nil {
		return nil, persistence.ErrNotFound
	}
	out := *best
	return &out, nil
}

func (m *Mem) ActiveScoringPrompt(ctx context.Context, spotID, sport string, userID *string) (*persistence.ScoringPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pick := func(user *string) *persistence.ScoringPrompt {
		var best *persistence.ScoringPrompt
		for i := range m.spotPrompts {
			p := m.spotPrompts[i]
			if p.SpotID != spotID || p.Sport != sport || !p.IsActive {
				continue
			}
			if (user == nil) != (p.UserID == nil) {
				continue
			}
			if user != nil && *p.UserID != *user {
				continue
			}
			if best == nil || p.UpdatedAt.After(best.UpdatedAt) {
				best = &p
			}
		}
		return best
	}

	if userID != nil {
		if p := pick(userID); p != nil {
			out := *p
			return &out, nil
		}
	}
	if p := pick(nil); p != nil {
		out := *p
		return &out, nil
	}
	return nil, persistence.ErrNotFound
}

func (m *Mem) ListPersonalizedUsers(ctx context.Context, spotID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range m.spotPrompts {
		if p.SpotID == spotID && p.IsActive && p.UserID != nil && !seen[*p.UserID] {
			seen[*p.UserID] = true
			out = append(out, *p.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mem) SaveConditionScore(ctx context.Context, score persistence.ConditionScore, promptID *string, promptText string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if score.ScoredAt.IsZero() {
		score.ScoredAt = now
	}

	if score.UserID == nil {
		for i := range m.scores {
			old := &m.scores[i]
			if old.SlotID == score.SlotID && old.Sport == score.Sport && old.UserID == nil {
				m.history = append(m.history, persistence.ScoreHistory{
					ID:         uuid.NewString(),
					SlotID:     old.SlotID,
					Sport:      old.Sport,
					Score:      old.Score,
					Reasoning:  old.Reasoning,
					Factors:    old.Factors,
					Model:      old.Model,
					ScoredAt:   old.ScoredAt,
					PromptID:   promptID,
					PromptText: promptText,
					ReplacedAt: now,
				})
				old.Score = score.Score
				old.Reasoning = score.Reasoning
				old.Factors = score.Factors
				old.Model = score.Model
				old.ScoredAt = score.ScoredAt
				old.CreatedAt = now
				return old.ID, nil
			}
		}
	}

	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = now
	}
	m.scores = append(m.scores, score)
	return score.ID, nil
}

func (m *Mem) GetConditionScores(ctx context.Context, spotID string, sport string, userID *string) ([]persistence.ConditionScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct {
		ts    int64
		sport string
	}
	effective := make(map[key]persistence.ConditionScore)

	// System scores first, most recently created winning per timestamp
	for _, s := range m.scores {
		if s.SpotID != spotID || s.UserID != nil {
			continue
		}
		if sport != "" && s.Sport != sport {
			continue
		}
		k := key{ts: s.SlotTimestamp, sport: s.Sport}
		if prev, ok := effective[k]; !ok || s.CreatedAt.After(prev.CreatedAt) {
			effective[k] = s
		}
	}

	// Personalized overlay always wins when present
	if userID != nil {
		for _, s := range m.scores {
			if s.SpotID != spotID || s.UserID == nil || *s.UserID != *userID {
				continue
			}
			if sport != "" && s.Sport != sport {
				continue
			}
			effective[key{ts: s.SlotTimestamp, sport: s.Sport}] = s
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

func (m *Mem) ListHistory(ctx context.Context, slotID, sport string) ([]persistence.ScoreHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.ScoreHistory
	for _, h := range m.history {
		if h.SlotID == slotID && h.Sport == sport {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *Mem) Insert(ctx context.Context, entry persistence.ScoringLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *Mem) ListBySlot(ctx context.Context, slotID string) ([]persistence.ScoringLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.ScoringLog
	for _, l := range m.logs {
		if l.SlotID == slotID {
			out = append(out, l)
		}
	}
	return out, nil
}
