package conditions

// Class groups sports by which side of the day their contextual slot sits on:
// surf-class sports score the last slot before sunrise, wind-class sports the
// first slot after sunset.
type Class int

const (
	ClassSurf Class = iota
	ClassWind
)

// Conditions carries the forecast values a sport's criteria are judged on.
// Wave fields are nil for spots whose feed has no swell data.
type Conditions struct {
	WindSpeedKts float64
	WindGustKts  float64
	WindDirDeg   float64
	WaveHeightM  *float64
	WavePeriodS  *float64
	WaveDirDeg   *float64
}

// Sport is the closed set of supported watersports. Each implementation owns
// its minimum-condition test and its "epic day" heuristic; adding a sport
// means adding one implementation, not touching conditionals elsewhere.
type Sport interface {
	Tag() string
	Class() Class
	MeetsMinimum(c Conditions) bool
	IsEpic(c Conditions) bool
}

// Surfing is wave-driven: needs swell with some period behind it, and epic
// days need size, a long period, and wind light enough not to chop it up.
type Surfing struct{}

func (Surfing) Tag() string  { return "surfing" }
func (Surfing) Class() Class { return ClassSurf }

func (Surfing) MeetsMinimum(c Conditions) bool {
	if c.WaveHeightM == nil || c.WavePeriodS == nil {
		return false
	}
	return *c.WaveHeightM >= 0.8 && *c.WavePeriodS >= 8.0
}

func (Surfing) IsEpic(c Conditions) bool {
	if c.WaveHeightM == nil || c.WavePeriodS == nil {
		return false
	}
	return *c.WaveHeightM >= 1.5 && *c.WavePeriodS >= 11.0 && c.WindSpeedKts < 12.0
}

// Wingfoil needs sustained wind; epic means strong and steady, with gusts
// not spiking far above the mean.
type Wingfoil struct{}

func (Wingfoil) Tag() string  { return "wingfoil" }
func (Wingfoil) Class() Class { return ClassWind }

func (Wingfoil) MeetsMinimum(c Conditions) bool {
	return c.WindSpeedKts >= 12.0
}

func (Wingfoil) IsEpic(c Conditions) bool {
	if c.WindSpeedKts < 20.0 {
		return false
	}
	return c.WindGustKts <= c.WindSpeedKts*1.4
}

// Windsurfing sits a notch above wingfoil on the wind scale.
type Windsurfing struct{}

func (Windsurfing) Tag() string  { return "windsurfing" }
func (Windsurfing) Class() Class { return ClassWind }

func (Windsurfing) MeetsMinimum(c Conditions) bool {
	return c.WindSpeedKts >= 14.0
}

func (Windsurfing) IsEpic(c Conditions) bool {
	if c.WindSpeedKts < 22.0 {
		return false
	}
	return c.WindGustKts <= c.WindSpeedKts*1.5
}

var registry = []Sport{Surfing{}, Wingfoil{}, Windsurfing{}}

// All returns every supported sport in a stable order.
func All() []Sport {
	out := make([]Sport, len(registry))
	copy(out, registry)
	return out
}

// FromTag resolves a sport tag to its implementation.
func FromTag(tag string) (Sport, bool) {
	for _, s := range registry {
		if s.Tag() == tag {
			return s, true
		}
	}
	return nil, false
}
