package tide

import (
	"sort"
	"time"
)

// Event is one stored tide extremum for a spot.
type Event struct {
	Time   int64   `json:"time" db:"time"`
	Type   string  `json:"type" db:"type"` // "high" or "low"
	Height float64 `json:"height" db:"height"`
}

// Match is the result of attributing tide state to a forecast slot. Either
// an extremum falls inside the slot window (IsExactTime with full event
// data), or only a rising/falling trend can be inferred from the bracketing
// extrema.
type Match struct {
	IsExactTime bool    `json:"isExactTime"`
	Time        int64   `json:"time,omitempty"`
	Type        string  `json:"type,omitempty"`
	Height      float64 `json:"height,omitempty"`
	TimeStr     string  `json:"timeStr,omitempty"`
	IsRising    bool    `json:"isRising,omitempty"`
	IsFalling   bool    `json:"isFalling,omitempty"`
}

// DefaultSlotDuration is assumed when a slot has no explicit end.
const DefaultSlotDuration = 3 * time.Hour

// FindTideForSlot attributes a tide extremum or trend to the slot window
// [slotStart, slotEnd). slotEnd may be zero, in which case the window is
// slotStart + DefaultSlotDuration. events must be sorted ascending by time.
//
// The window is inclusive at the start and exclusive at the end, so an
// extremum landing exactly on a slot boundary belongs to the next slot.
// used tracks event times already attributed to earlier slots of the same
// spot/day; together with the half-open window it guarantees each extremum
// is attributed to exactly one slot. A nil return means the spot has no
// tide data at all.
func FindTideForSlot(slotStart, slotEnd int64, events []Event, used map[int64]bool) *Match {
	if len(events) == 0 {
		return nil
	}
	if slotEnd == 0 {
		slotEnd = slotStart + DefaultSlotDuration.Milliseconds()
	}

	for _, ev := range events {
		if ev.Time >= slotEnd {
			break
		}
		if ev.Time < slotStart {
			continue
		}
		if used != nil && used[ev.Time] {
			continue
		}
		if used != nil {
			used[ev.Time] = true
		}
		return &Match{
			IsExactTime: true,
			Time:        ev.Time,
			Type:        ev.Type,
			Height:      ev.Height,
			TimeStr:     time.UnixMilli(ev.Time).UTC().Format("15:04"),
		}
	}

	// No extremum inside the window: infer a trend from the nearest
	// bracketing events.
	var before, after *Event
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Time <= slotStart {
			before = &events[i]
			break
		}
	}
	for i := range events {
		if events[i].Time >= slotEnd {
			after = &events[i]
			break
		}
	}

	switch {
	case before != nil && after != nil:
		rising := after.Height > before.Height
		return &Match{IsRising: rising, IsFalling: !rising}
	case before != nil:
		// After a low the tide rises, after a high it falls.
		rising := before.Type == "low"
		return &Match{IsRising: rising, IsFalling: !rising}
	case after != nil:
		// Approaching a high the tide rises, approaching a low it falls.
		rising := after.Type == "high"
		return &Match{IsRising: rising, IsFalling: !rising}
	default:
		return nil
	}
}

// SortEvents orders events ascending by time, as FindTideForSlot requires.
func SortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Time < events[j].Time })
}
