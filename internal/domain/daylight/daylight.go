package daylight

import (
	"sort"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/spotline/spotline/internal/domain/conditions"
)

// Coordinates locates a spot for astronomical daylight calculation.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Fallback window for spots without coordinates: local-clock hours treated
// as daylight.
const (
	fallbackStartHour = 9
	fallbackEndHour   = 18
)

// Classifier decides which forecast slots are worth spending scoring budget
// on: everything in daylight, plus the single slot bracketing sunrise or
// sunset per sport class.
type Classifier struct {
	loc *time.Location
}

// NewClassifier returns a classifier using loc as the local clock for spots
// without coordinates and for calendar-date selection. A nil loc means UTC.
func NewClassifier(loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Classifier{loc: loc}
}

// SunTimes returns sunrise and sunset for the calendar date of t at the
// given coordinates.
func (c *Classifier) SunTimes(coords Coordinates, t time.Time) (time.Time, time.Time) {
	local := t.In(c.loc)
	rise, set := sunrise.SunriseSunset(coords.Lat, coords.Lon, local.Year(), local.Month(), local.Day())
	return rise, set
}

// IsDaylight reports whether ts falls between sunrise and sunset at the
// spot. Without coordinates it approximates daylight as local-clock hour
// in [9, 18].
func (c *Classifier) IsDaylight(ts time.Time, coords *Coordinates) bool {
	if coords == nil {
		h := ts.In(c.loc).Hour()
		return h >= fallbackStartHour && h <= fallbackEndHour
	}

	rise, set := c.SunTimes(*coords, ts)
	return !ts.Before(rise) && !ts.After(set)
}

// defaultSlotWindow bounds a slot when its duration cannot be inferred
// from neighbors.
const defaultSlotWindow = 3 * time.Hour

// ContextualSlot returns the one slot timestamp (epoch ms) in slotTimes that
// brackets the daylight boundary for the given sport class: the latest slot
// whose whole window ends by sunrise for surf-class sports, the earliest
// slot starting after sunset for wind-class sports. Spots without
// coordinates have no contextual slots.
func (c *Classifier) ContextualSlot(coords *Coordinates, class conditions.Class, slotTimes []int64) (int64, bool) {
	if coords == nil || len(slotTimes) == 0 {
		return 0, false
	}

	sorted := make([]int64, len(slotTimes))
	copy(sorted, slotTimes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var best int64
	found := false

	for i, ms := range sorted {
		ts := time.UnixMilli(ms)
		rise, set := c.SunTimes(*coords, ts)

		switch class {
		case conditions.ClassSurf:
			// A slot whose window contains sunrise is already daylight;
			// the dawn-patrol slot is the last one fully before it.
			if !slotEnd(sorted, i).After(rise) && (!found || ms > best) {
				best = ms
				found = true
			}
		case conditions.ClassWind:
			if ts.After(set) && (!found || ms < best) {
				best = ms
				found = true
			}
		}
	}

	return best, found
}

// slotEnd infers the window end of sorted[i]: the next slot's start, else
// the preceding gap, else the default window.
func slotEnd(sorted []int64, i int) time.Time {
	if i+1 < len(sorted) {
		return time.UnixMilli(sorted[i+1])
	}
	if i > 0 {
		return time.UnixMilli(sorted[i] + (sorted[i] - sorted[i-1]))
	}
	return time.UnixMilli(sorted[i]).Add(defaultSlotWindow)
}

// IsContextual reports whether the slot at tsMs is the sport's single
// bracketing slot within the scrape.
func (c *Classifier) IsContextual(tsMs int64, coords *Coordinates, sport conditions.Sport, slotTimes []int64) bool {
	best, ok := c.ContextualSlot(coords, sport.Class(), slotTimes)
	return ok && best == tsMs
}
