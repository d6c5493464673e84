package tide

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(h, m int) int64 {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute).UnixMilli()
}

func TestFindTideForSlot_ExactMatchInsideWindow(t *testing.T) {
	events := []Event{
		{Time: ms(4, 30), Type: "low", Height: 0.4},
		{Time: ms(10, 45), Type: "high", Height: 1.9},
	}
	used := map[int64]bool{}

	m := FindTideForSlot(ms(10, 0), ms(13, 0), events, used)
	require.NotNil(t, m)
	assert.True(t, m.IsExactTime)
	assert.Equal(t, "high", m.Type)
	assert.Equal(t, 1.9, m.Height)
	assert.Equal(t, "10:45", m.TimeStr)
	assert.True(t, used[ms(10, 45)])
}

func TestFindTideForSlot_BoundaryIsExclusive(t *testing.T) {
	events := []Event{{Time: ms(13, 0), Type: "high", Height: 1.8}}
	used := map[int64]bool{}

	// Event at exactly 13:00 belongs to the next window, not [10:00, 13:00)
	m := FindTideForSlot(ms(10, 0), ms(13, 0), events, used)
	require.NotNil(t, m)
	assert.False(t, m.IsExactTime)
	assert.True(t, m.IsRising) // approaching a high

	next := FindTideForSlot(ms(13, 0), ms(16, 0), events, used)
	require.NotNil(t, next)
	assert.True(t, next.IsExactTime)
	assert.Equal(t, ms(13, 0), next.Time)
}

func TestFindTideForSlot_NoDoubleAttribution(t *testing.T) {
	events := []Event{{Time: ms(11, 0), Type: "low", Height: 0.3}}
	used := map[int64]bool{}

	first := FindTideForSlot(ms(10, 0), ms(13, 0), events, used)
	require.NotNil(t, first)
	assert.True(t, first.IsExactTime)

	// Overlapping window asked later must not claim the same extremum
	second := FindTideForSlot(ms(9, 0), ms(12, 0), events, used)
	if second != nil {
		assert.False(t, second.IsExactTime)
	}
}

func TestFindTideForSlot_TrendFromBrackets(t *testing.T) {
	events := []Event{
		{Time: ms(8, 0), Type: "low", Height: 0.2},
		{Time: ms(14, 30), Type: "high", Height: 1.8},
	}

	m := FindTideForSlot(ms(10, 0), ms(13, 0), events, map[int64]bool{})
	require.NotNil(t, m)
	assert.False(t, m.IsExactTime)
	assert.True(t, m.IsRising)
	assert.False(t, m.IsFalling)
}

func TestFindTideForSlot_TrendFromBeforeOnly(t *testing.T) {
	afterHigh := []Event{{Time: ms(8, 0), Type: "high", Height: 1.7}}
	m := FindTideForSlot(ms(10, 0), ms(13, 0), afterHigh, map[int64]bool{})
	require.NotNil(t, m)
	assert.True(t, m.IsFalling)

	afterLow := []Event{{Time: ms(8, 0), Type: "low", Height: 0.3}}
	m = FindTideForSlot(ms(10, 0), ms(13, 0), afterLow, map[int64]bool{})
	require.NotNil(t, m)
	assert.True(t, m.IsRising)
}

func TestFindTideForSlot_TrendFromAfterOnly(t *testing.T) {
	beforeHigh := []Event{{Time: ms(15, 0), Type: "high", Height: 1.7}}
	m := FindTideForSlot(ms(10, 0), ms(13, 0), beforeHigh, map[int64]bool{})
	require.NotNil(t, m)
	assert.True(t, m.IsRising)

	beforeLow := []Event{{Time: ms(15, 0), Type: "low", Height: 0.2}}
	m = FindTideForSlot(ms(10, 0), ms(13, 0), beforeLow, map[int64]bool{})
	require.NotNil(t, m)
	assert.True(t, m.IsFalling)
}

func TestFindTideForSlot_DefaultWindowAndEmptySet(t *testing.T) {
	assert.Nil(t, FindTideForSlot(ms(10, 0), 0, nil, map[int64]bool{}))

	// Zero slotEnd defaults to a 3h window
	events := []Event{{Time: ms(12, 30), Type: "high", Height: 1.5}}
	m := FindTideForSlot(ms(10, 0), 0, events, map[int64]bool{})
	require.NotNil(t, m)
	assert.True(t, m.IsExactTime)
}

func TestFindTideForSlot_MistypedAdjacentEventsUseHeights(t *testing.T) {
	// Two adjacent "high" rows that are not a genuine peak pair: the trend
	// between brackets is decided by heights, not declared types.
	events := []Event{
		{Time: ms(8, 0), Type: "high", Height: 1.9},
		{Time: ms(14, 0), Type: "high", Height: 1.1},
	}
	m := FindTideForSlot(ms(10, 0), ms(13, 0), events, map[int64]bool{})
	require.NotNil(t, m)
	assert.True(t, m.IsFalling)
}

func TestSortEvents(t *testing.T) {
	events := []Event{
		{Time: ms(14, 0)},
		{Time: ms(2, 0)},
		{Time: ms(8, 0)},
	}
	SortEvents(events)
	assert.Equal(t, ms(2, 0), events[0].Time)
	assert.Equal(t, ms(14, 0), events[2].Time)
}
