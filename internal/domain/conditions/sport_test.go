package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestFromTag(t *testing.T) {
	s, ok := FromTag("surfing")
	require.True(t, ok)
	assert.Equal(t, ClassSurf, s.Class())

	w, ok := FromTag("wingfoil")
	require.True(t, ok)
	assert.Equal(t, ClassWind, w.Class())

	_, ok = FromTag("kitebuggy")
	assert.False(t, ok)
}

func TestSurfing_MeetsMinimum(t *testing.T) {
	s := Surfing{}

	assert.True(t, s.MeetsMinimum(Conditions{WaveHeightM: f64(1.0), WavePeriodS: f64(9)}))
	assert.False(t, s.MeetsMinimum(Conditions{WaveHeightM: f64(0.5), WavePeriodS: f64(9)}))
	assert.False(t, s.MeetsMinimum(Conditions{WaveHeightM: f64(1.0), WavePeriodS: f64(5)}))

	// No swell data at all: never rideable
	assert.False(t, s.MeetsMinimum(Conditions{WindSpeedKts: 5}))
}

func TestSurfing_IsEpic(t *testing.T) {
	s := Surfing{}

	epic := Conditions{WaveHeightM: f64(2.0), WavePeriodS: f64(12), WindSpeedKts: 6}
	assert.True(t, s.IsEpic(epic))

	blown := epic
	blown.WindSpeedKts = 18
	assert.False(t, s.IsEpic(blown))
}

func TestWingfoil_Criteria(t *testing.T) {
	w := Wingfoil{}

	assert.False(t, w.MeetsMinimum(Conditions{WindSpeedKts: 10}))
	assert.True(t, w.MeetsMinimum(Conditions{WindSpeedKts: 14}))

	assert.True(t, w.IsEpic(Conditions{WindSpeedKts: 22, WindGustKts: 26}))
	// Gusty beyond 1.4x mean disqualifies an epic call
	assert.False(t, w.IsEpic(Conditions{WindSpeedKts: 20, WindGustKts: 32}))
	assert.False(t, w.IsEpic(Conditions{WindSpeedKts: 15, WindGustKts: 16}))
}

func TestAll_StableOrder(t *testing.T) {
	tags := []string{}
	for _, s := range All() {
		tags = append(tags, s.Tag())
	}
	assert.Equal(t, []string{"surfing", "wingfoil", "windsurfing"}, tags)
}
