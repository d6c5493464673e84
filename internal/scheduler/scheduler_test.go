package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotline/spotline/internal/domain/tide"
	"github.com/spotline/spotline/internal/ingest"
	"github.com/spotline/spotline/internal/persistence"
	"github.com/spotline/spotline/internal/persistence/memstore"
	"github.com/spotline/spotline/internal/queue"
)

type stubForecasts struct {
	calls int
}

func (f *stubForecasts) FetchForecast(ctx context.Context, spot persistence.Spot) ([]ingest.SlotInput, error) {
	f.calls++
	var out []ingest.SlotInput
	start := time.Now()
	for i := 0; i < 30; i++ {
		out = append(out, ingest.SlotInput{
			Timestamp: start.Add(time.Duration(i) * time.Hour).UnixMilli(),
			WindSpeed: 14,
		})
	}
	return out, nil
}

type stubTides struct {
	calls int
}

func (f *stubTides) FetchTides(ctx context.Context, spot persistence.Spot) ([]tide.Event, error) {
	f.calls++
	return []tide.Event{
		{Time: time.Now().Add(2 * time.Hour).UnixMilli(), Type: "low", Height: 0.4},
		{Time: time.Now().Add(8 * time.Hour).UnixMilli(), Type: "high", Height: 1.7},
	}, nil
}

func fixture(t *testing.T) (*persistence.Store, *ingest.Service) {
	t.Helper()
	_, store := memstore.New()
	_, err := store.Spots.Create(context.Background(), persistence.Spot{ID: "spot1", Name: "Guincho", Sports: []string{"surfing"}})
	require.NoError(t, err)
	return store, ingest.New(store, queue.NewMemory(8), time.Second)
}

func TestRunJob_ScrapeIngestsAllSpots(t *testing.T) {
	store, svc := fixture(t)
	forecasts := &stubForecasts{}
	s := New(store, svc, forecasts, nil, time.Hour, time.Hour)

	require.NoError(t, s.RunJob(context.Background(), JobScrape))
	assert.Equal(t, 1, forecasts.calls)

	slots, err := store.Slots.CurrentSlots(context.Background(), "spot1", time.Now())
	require.NoError(t, err)
	assert.Len(t, slots, 30)
}

func TestRunJob_TidesReplaced(t *testing.T) {
	store, svc := fixture(t)
	tides := &stubTides{}
	s := New(store, svc, nil, tides, time.Hour, time.Hour)

	require.NoError(t, s.RunJob(context.Background(), JobTides))
	assert.Equal(t, 1, tides.calls)

	events, err := store.Tides.List(context.Background(), "spot1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRunJob_UnknownName(t *testing.T) {
	store, svc := fixture(t)
	s := New(store, svc, nil, nil, time.Hour, time.Hour)
	assert.Error(t, s.RunJob(context.Background(), "compact"))
}

func TestDue_IntervalGate(t *testing.T) {
	store, svc := fixture(t)
	s := New(store, svc, nil, nil, time.Hour, time.Hour)

	assert.True(t, s.due(JobScrape, time.Hour), "never-run job is due")
	s.mu.Lock()
	s.lastRun[JobScrape] = time.Now()
	s.mu.Unlock()
	assert.False(t, s.due(JobScrape, time.Hour))

	s.mu.Lock()
	s.lastRun[JobScrape] = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()
	assert.True(t, s.due(JobScrape, time.Hour))
}

func TestGetStatus(t *testing.T) {
	store, svc := fixture(t)
	s := New(store, svc, &stubForecasts{}, nil, time.Hour, 24*time.Hour)

	require.NoError(t, s.RunJob(context.Background(), JobScrape))
	status := s.GetStatus()
	assert.False(t, status.Running)
	assert.WithinDuration(t, time.Now().Add(time.Hour), status.NextScrape, time.Minute)
}
