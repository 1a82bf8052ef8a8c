package consumption

// Derive converts an ordered series of cumulative readings for one meter into
// one consumption value per reading.
//
// The first element is always NoData. A negative difference is treated as a
// single counter wrap and corrected by adding rolloverMax; several wraps
// between two samples cannot be detected. The result is clamped at zero so a
// misconfigured maximum never yields a negative amount.
func Derive(ordered []Reading, rolloverMax float64) []Value {
	out := make([]Value, len(ordered))
	if len(ordered) == 0 {
		return out
	}

	wrap := NormalizeRollover(rolloverMax)
	out[0] = NoData()
	for i := 1; i < len(ordered); i++ {
		out[i] = Delta(ordered[i-1].Value, ordered[i].Value, wrap)
	}
	return out
}

// Delta computes the consumption between two consecutive counter values.
func Delta(prev, curr *float64, rolloverMax float64) Value {
	if !usable(prev) || !usable(curr) {
		return Invalid()
	}

	diff := *curr - *prev
	if diff < 0 {
		diff += NormalizeRollover(rolloverMax)
	}
	if diff < 0 {
		diff = 0
	}
	return Amount(diff)
}
