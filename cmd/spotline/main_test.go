package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotline/spotline/internal/persistence"
)

func TestSlotIDsByGeneration_KeepsStragglers(t *testing.T) {
	slots := []persistence.ForecastSlot{
		{ID: "old-a", ScrapeTS: 1000, Timestamp: 100},
		{ID: "new-a", ScrapeTS: 2000, Timestamp: 200},
		{ID: "new-b", ScrapeTS: 2000, Timestamp: 300},
		{ID: "old-b", ScrapeTS: 1000, Timestamp: 150},
	}

	gens := slotIDsByGeneration(slots)
	require.Len(t, gens, 2)

	// Oldest generation first, and every slot id is retained under its
	// own scrape timestamp.
	assert.Equal(t, int64(1000), gens[0].scrapeTS)
	assert.ElementsMatch(t, []string{"old-a", "old-b"}, gens[0].slotIDs)
	assert.Equal(t, int64(2000), gens[1].scrapeTS)
	assert.ElementsMatch(t, []string{"new-a", "new-b"}, gens[1].slotIDs)
}

func TestSlotIDsByGeneration_SingleGeneration(t *testing.T) {
	slots := []persistence.ForecastSlot{
		{ID: "a", ScrapeTS: 5000},
		{ID: "b", ScrapeTS: 5000},
	}
	gens := slotIDsByGeneration(slots)
	require.Len(t, gens, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, gens[0].slotIDs)
}
