package prompt

// BuiltinDefaults returns the hard-coded fallback guideline text per sport,
// used when no active system prompt row exists for the sport. Callers pass
// this (or a test override) into NewBuilder.
func BuiltinDefaults() Defaults {
	return Defaults{
		"surfing": "You rate surf conditions on a 0-100 scale. Prioritize wave " +
			"height and period over wind; light offshore or no wind is best, " +
			"onshore wind over 12kt degrades quality quickly. Under 0.8m or " +
			"under 8s period is barely rideable.",
		"wingfoil": "You rate wingfoil conditions on a 0-100 scale. Wind is the " +
			"primary factor: under 12kt is not rideable, 15-25kt is the sweet " +
			"spot. Steady wind beats gusty wind; penalize gusts far above the " +
			"mean. Flat water or small chop is a plus.",
		"windsurfing": "You rate windsurfing conditions on a 0-100 scale. Under " +
			"14kt is underpowered, 18-30kt is prime. Reward steady strong wind " +
			"and penalize heavy gust spreads. Swell can add quality for wave " +
			"riding spots.",
	}
}
