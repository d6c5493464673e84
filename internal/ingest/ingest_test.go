package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotline/spotline/internal/domain/tide"
	"github.com/spotline/spotline/internal/persistence/memstore"
	"github.com/spotline/spotline/internal/queue"
)

func hourly(from time.Time, n int) []SlotInput {
	var out []SlotInput
	for i := 0; i < n; i++ {
		out = append(out, SlotInput{
			Timestamp: from.Add(time.Duration(i) * time.Hour).UnixMilli(),
			WindSpeed: 15,
		})
	}
	return out
}

func drain(t *testing.T, q queue.Queue) []*queue.Job {
	t.Helper()
	var jobs []*queue.Job
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		job, err := q.Dequeue(ctx)
		cancel()
		if err != nil {
			return jobs
		}
		jobs = append(jobs, job)
	}
}

func TestSaveForecastSlots_EnqueuesSystemThenPersonalized(t *testing.T) {
	_, store := memstore.New()
	q := queue.NewMemory(8)
	svc := New(store, q, 30*time.Second)

	now := time.Now()
	res, err := svc.SaveForecastSlots(context.Background(), "spot1", now.UnixMilli(), hourly(now, 30))
	require.NoError(t, err)
	assert.True(t, res.IsSuccessful)
	assert.NotEmpty(t, res.ScrapeID)

	jobs := drain(t, q)
	require.Len(t, jobs, 2)
	assert.False(t, jobs[0].Personalized)
	assert.True(t, jobs[1].Personalized)
	assert.Equal(t, jobs[0].SlotIDs, jobs[1].SlotIDs)
	assert.True(t, jobs[1].NotBefore.After(jobs[0].NotBefore), "personalization trails the system pass")

	slots, err := store.Slots.CurrentSlots(context.Background(), "spot1", now)
	require.NoError(t, err)
	assert.Len(t, slots, 30)
}

func TestSaveForecastSlots_TooFewSlots(t *testing.T) {
	_, store := memstore.New()
	q := queue.NewMemory(8)
	svc := New(store, q, 0)

	now := time.Now()
	res, err := svc.SaveForecastSlots(context.Background(), "spot1", now.UnixMilli(), hourly(now, 5))
	require.NoError(t, err)
	assert.False(t, res.IsSuccessful)
	assert.Contains(t, res.ErrorMessage, "too few slots")
	assert.Empty(t, drain(t, q), "failed validation must not enqueue scoring")
}

func TestSaveForecastSlots_NoFutureData(t *testing.T) {
	_, store := memstore.New()
	q := queue.NewMemory(8)
	svc := New(store, q, 0)

	past := time.Now().Add(-48 * time.Hour)
	res, err := svc.SaveForecastSlots(context.Background(), "spot1", past.UnixMilli(), hourly(past, 12))
	require.NoError(t, err)
	assert.False(t, res.IsSuccessful)
	assert.Contains(t, res.ErrorMessage, "no future data")
}

func TestSaveForecastSlots_InsufficientFutureCoverage(t *testing.T) {
	_, store := memstore.New()
	q := queue.NewMemory(8)
	svc := New(store, q, 0)

	now := time.Now()
	res, err := svc.SaveForecastSlots(context.Background(), "spot1", now.UnixMilli(), hourly(now.Add(-2*time.Hour), 14))
	require.NoError(t, err)
	assert.False(t, res.IsSuccessful)
	assert.Contains(t, res.ErrorMessage, "future coverage")
}

func TestReplaceTideEvents_SortsAndValidates(t *testing.T) {
	_, store := memstore.New()
	svc := New(store, queue.NewMemory(8), 0)
	ctx := context.Background()

	events := []tide.Event{
		{Time: 3000, Type: "high", Height: 1.8},
		{Time: 1000, Type: "low", Height: 0.3},
	}
	require.NoError(t, svc.ReplaceTideEvents(ctx, "spot1", events))

	stored, err := store.Tides.List(ctx, "spot1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(1000), stored[0].Time)

	err = svc.ReplaceTideEvents(ctx, "spot1", []tide.Event{{Time: 1, Type: "slack"}})
	assert.Error(t, err)

	// Replacement is wholesale
	require.NoError(t, svc.ReplaceTideEvents(ctx, "spot1", []tide.Event{{Time: 9000, Type: "low", Height: 0.2}}))
	stored, err = store.Tides.List(ctx, "spot1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(9000), stored[0].Time)
}
