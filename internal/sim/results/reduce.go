package results

// Reducer combines one tick's per-agent property values into one recorded
// value. Values arrive in population order; a reducer must not depend on that
// order beyond floating-point rounding.
type Reducer func(values []float64) float64

// EventReducer combines one tick's per-agent trigger flags.
type EventReducer func(fired []bool) int

func Sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func CountTriggered(fired []bool) int {
	n := 0
	for _, f := range fired {
		if f {
			n++
		}
	}
	return n
}
