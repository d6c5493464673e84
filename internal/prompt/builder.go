package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/spotline/spotline/internal/domain/conditions"
	"github.com/spotline/spotline/internal/domain/tide"
)

// Defaults maps a sport tag to its fallback guideline text, used when no
// active system prompt row exists. Injected at construction so tests can
// override without process-wide mutation.
type Defaults map[string]string

// SlotData is the forecast data the builder formats into prompt lines.
type SlotData struct {
	Timestamp  int64
	WindSpeed  float64
	WindGust   float64
	WindDir    float64
	WaveHeight *float64
	WavePeriod *float64
	WaveDir    *float64
	Tide       *tide.Match
}

// BuildInput collects the layered configuration and slot data for one
// scoring call.
type BuildInput struct {
	Sport          string
	SpotName       string
	SystemText     string // sport guidelines; empty falls back to Defaults
	SpotText       string // spot characteristics
	TemporalText   string // temporal-trend instructions
	Current        SlotData
	Context        []SlotData // surrounding slots, any order
	Sunrise        *time.Time
	Sunset         *time.Time
	IsContextual   bool
}

// Messages is the system/user prompt pair sent to the model.
type Messages struct {
	System string
	User   string
}

// Anchor offsets for the compressed time-series context: four historical
// points and one look-ahead. A slot is only used as an anchor when it lies
// within anchorTolerance of the target offset; stale proxies are omitted.
var anchorOffsets = []time.Duration{
	-72 * time.Hour,
	-48 * time.Hour,
	-24 * time.Hour,
	-12 * time.Hour,
	12 * time.Hour,
}

const anchorTolerance = 2 * time.Hour

// Builder composes layered scoring prompts.
type Builder struct {
	defaults Defaults
}

// NewBuilder returns a Builder with the given per-sport fallback texts.
func NewBuilder(defaults Defaults) *Builder {
	if defaults == nil {
		defaults = Defaults{}
	}
	return &Builder{defaults: defaults}
}

// HasDefault reports whether fallback guideline text exists for a sport.
func (b *Builder) HasDefault(sport string) bool {
	return b.defaults[sport] != ""
}

// Build assembles the system and user prompt for one slot. A zero-length
// context produces a user prompt with only the Current line.
func (b *Builder) Build(in BuildInput) Messages {
	return Messages{
		System: b.buildSystem(in),
		User:   b.buildUser(in),
	}
}

func (b *Builder) buildSystem(in BuildInput) string {
	var sb strings.Builder

	guidelines := in.SystemText
	if guidelines == "" {
		guidelines = b.defaults[in.Sport]
	}
	if guidelines != "" {
		sb.WriteString(guidelines)
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("Spot: %s.", in.SpotName))
	if in.SpotText != "" {
		sb.WriteString(" ")
		sb.WriteString(in.SpotText)
	}
	sb.WriteString("\n")

	if in.TemporalText != "" {
		sb.WriteString("\n")
		sb.WriteString(in.TemporalText)
		sb.WriteString("\n")
	}

	if in.IsContextual {
		sb.WriteString("\n")
		sb.WriteString(b.contextualCaveat(in))
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond with strict JSON only, no prose: " +
		`{"score": <integer 0-100>, "reasoning": "<max 200 chars>", ` +
		`"factors": {"windQuality": <0-100>, "waveQuality": <0-100>, ` +
		`"tideQuality": <0-100>, "overallConditions": <0-100>}}. ` +
		"The factors object is optional.")

	return sb.String()
}

func (b *Builder) contextualCaveat(in BuildInput) string {
	side := "outside daylight"
	if sport, ok := conditions.FromTag(in.Sport); ok {
		switch sport.Class() {
		case conditions.ClassSurf:
			side = "before sunrise"
			if in.Sunrise != nil {
				side = fmt.Sprintf("before sunrise (%s)", in.Sunrise.Format("15:04"))
			}
		case conditions.ClassWind:
			side = "after sunset"
			if in.Sunset != nil {
				side = fmt.Sprintf("after sunset (%s)", in.Sunset.Format("15:04"))
			}
		}
	}
	return fmt.Sprintf("Note: this slot is %s and is included only for temporal "+
		"context. It is too dark for a session; score it low for darkness.", side)
}

func (b *Builder) buildUser(in BuildInput) string {
	var sb strings.Builder
	sb.WriteString("Current: ")
	sb.WriteString(formatSlot(in.Current))

	currentTime := time.UnixMilli(in.Current.Timestamp)
	for _, offset := range anchorOffsets {
		slot, ok := nearestSlot(in.Context, currentTime.Add(offset))
		if !ok {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(anchorLabel(offset))
		sb.WriteString(": ")
		sb.WriteString(formatSlot(slot))
	}

	return sb.String()
}

// nearestSlot finds the context slot closest to target, rejecting anything
// farther than anchorTolerance.
func nearestSlot(ctx []SlotData, target time.Time) (SlotData, bool) {
	var best SlotData
	bestDiff := anchorTolerance + time.Millisecond
	for _, s := range ctx {
		diff := time.UnixMilli(s.Timestamp).Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if diff <= anchorTolerance && diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	return best, bestDiff <= anchorTolerance
}

func anchorLabel(offset time.Duration) string {
	hours := int(offset.Hours())
	if hours < 0 {
		return fmt.Sprintf("%dh ago", -hours)
	}
	return fmt.Sprintf("%dh ahead", hours)
}

func formatSlot(s SlotData) string {
	t := time.UnixMilli(s.Timestamp).UTC()
	line := fmt.Sprintf("%s wind %.0fkt gust %.0fkt dir %.0f°",
		t.Format("Mon 15:04"), s.WindSpeed, s.WindGust, s.WindDir)

	if s.WaveHeight != nil {
		line += fmt.Sprintf(", waves %.1fm", *s.WaveHeight)
		if s.WavePeriod != nil {
			line += fmt.Sprintf(" @%.0fs", *s.WavePeriod)
		}
		if s.WaveDir != nil {
			line += fmt.Sprintf(" from %.0f°", *s.WaveDir)
		}
	}

	if s.Tide != nil {
		switch {
		case s.Tide.IsExactTime:
			line += fmt.Sprintf(", %s tide %.1fm at %s", s.Tide.Type, s.Tide.Height, s.Tide.TimeStr)
		case s.Tide.IsRising:
			line += ", tide rising"
		case s.Tide.IsFalling:
			line += ", tide falling"
		}
	}

	return line
}
