package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionInRange_SimpleSector(t *testing.T) {
	assert.True(t, DirectionInRange(90, 45, 135))
	assert.True(t, DirectionInRange(45, 45, 135))
	assert.True(t, DirectionInRange(135, 45, 135))
	assert.False(t, DirectionInRange(200, 45, 135))
	assert.False(t, DirectionInRange(0, 45, 135))
}

func TestDirectionInRange_WrapAroundNorth(t *testing.T) {
	// Classic NW-NE sector crossing zero
	assert.True(t, DirectionInRange(350, 315, 45))
	assert.True(t, DirectionInRange(10, 315, 45))
	assert.True(t, DirectionInRange(0, 315, 45))
	assert.True(t, DirectionInRange(315, 315, 45))
	assert.True(t, DirectionInRange(45, 315, 45))
	assert.False(t, DirectionInRange(200, 315, 45))
	assert.False(t, DirectionInRange(90, 315, 45))
}

func TestDirectionInRange_NormalizesInputs(t *testing.T) {
	assert.True(t, DirectionInRange(-10, 315, 45))  // -10 == 350
	assert.True(t, DirectionInRange(370, 315, 45))  // 370 == 10
	assert.False(t, DirectionInRange(540, 315, 45)) // 540 == 180
}
