package daylight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotline/spotline/internal/domain/conditions"
)

// Guincho, Portugal — the reference spot used across the suite.
var guincho = Coordinates{Lat: 38.70, Lon: -9.42}

func hourlySlots(day time.Time, from, to int) []int64 {
	var out []int64
	for h := from; h <= to; h++ {
		out = append(out, day.Add(time.Duration(h)*time.Hour).UnixMilli())
	}
	return out
}

func TestIsDaylight_WithCoordinates(t *testing.T) {
	c := NewClassifier(time.UTC)
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)

	assert.True(t, c.IsDaylight(day.Add(12*time.Hour), &guincho))
	assert.False(t, c.IsDaylight(day.Add(1*time.Hour), &guincho))
	assert.False(t, c.IsDaylight(day.Add(23*time.Hour), &guincho))
}

func TestIsDaylight_FallbackWithoutCoordinates(t *testing.T) {
	c := NewClassifier(time.UTC)
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)

	assert.False(t, c.IsDaylight(day.Add(8*time.Hour), nil))
	assert.True(t, c.IsDaylight(day.Add(9*time.Hour), nil))
	assert.True(t, c.IsDaylight(day.Add(18*time.Hour), nil))
	assert.False(t, c.IsDaylight(day.Add(19*time.Hour), nil))
}

func TestContextualSlot_SurfClassLastBeforeSunrise(t *testing.T) {
	c := NewClassifier(time.UTC)
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	slots := hourlySlots(day, 0, 19)

	rise, _ := c.SunTimes(guincho, day.Add(6*time.Hour))
	ms, ok := c.ContextualSlot(&guincho, conditions.ClassSurf, slots)
	require.True(t, ok)

	// The chosen slot's whole window ends by sunrise; the next hourly
	// slot's window does not.
	chosen := time.UnixMilli(ms)
	assert.False(t, chosen.Add(time.Hour).After(rise))
	assert.True(t, chosen.Add(2*time.Hour).After(rise))
}

func TestContextualSlot_SunriseInsideWindowPicksPreviousSlot(t *testing.T) {
	c := NewClassifier(time.UTC)
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	slots := hourlySlots(day, 0, 19)

	// Mid-winter Guincho sunrise falls mid-slot (around 07:54), so the
	// hourly slot containing it must be skipped in favor of the one before.
	rise, _ := c.SunTimes(guincho, day.Add(6*time.Hour))
	require.True(t, rise.After(rise.Truncate(time.Hour)), "sunrise expected off the hour")

	ms, ok := c.ContextualSlot(&guincho, conditions.ClassSurf, slots)
	require.True(t, ok)
	assert.Equal(t, rise.Truncate(time.Hour).Add(-time.Hour).UnixMilli(), ms)
}

func TestContextualSlot_WindClassFirstAfterSunset(t *testing.T) {
	c := NewClassifier(time.UTC)
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	slots := hourlySlots(day, 0, 23)

	_, set := c.SunTimes(guincho, day.Add(18*time.Hour))
	ms, ok := c.ContextualSlot(&guincho, conditions.ClassWind, slots)
	require.True(t, ok)

	chosen := time.UnixMilli(ms)
	assert.True(t, chosen.After(set))
	assert.False(t, chosen.Add(-time.Hour).After(set))
}

func TestContextualSlot_NoCoordinatesNever(t *testing.T) {
	c := NewClassifier(time.UTC)
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)

	_, ok := c.ContextualSlot(nil, conditions.ClassSurf, hourlySlots(day, 0, 23))
	assert.False(t, ok)
}

func TestIsContextual_SingularPerSport(t *testing.T) {
	c := NewClassifier(time.UTC)
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	slots := hourlySlots(day, 0, 19)

	surf := conditions.Surfing{}
	count := 0
	for _, ms := range slots {
		if c.IsContextual(ms, &guincho, surf, slots) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
