package conditions

// DirectionInRange reports whether a compass direction falls inside the
// sector [from, to], measured clockwise in degrees. Ranges that cross
// north (from > to, e.g. 315..45) wrap around zero.
func DirectionInRange(dir, from, to float64) bool {
	dir = normalizeDegrees(dir)
	from = normalizeDegrees(from)
	to = normalizeDegrees(to)

	if from <= to {
		return dir >= from && dir <= to
	}

	// Wrap-around sector: accept either side of north
	return dir >= from || dir <= to
}

// normalizeDegrees maps any angle onto [0, 360)
func normalizeDegrees(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}
