package predictor

import "math"

// Bounds applied to model output. Both are multiples of DurationIncrement, so
// clamping before or after rounding gives the same result.
const (
	DurationIncrement  = 5
	MinModelDuration   = 10
	MaxModelDuration   = 120
	MinModelConfidence = 0.5
	MaxModelConfidence = 0.95
)

// RoundToIncrement rounds minutes to the nearest multiple of 5. A value
// exactly halfway goes to the lower multiple (57.5 -> 55).
func RoundToIncrement(minutes float64) int {
	steps := math.Ceil(minutes/DurationIncrement - 0.5)
	return int(steps) * DurationIncrement
}

// ClampDuration limits a model duration to [10, 120].
func ClampDuration(minutes int) int {
	return min(max(minutes, MinModelDuration), MaxModelDuration)
}

// ModelDuration turns a raw model output into the reported duration:
// round to the 5-minute grid first, then clamp.
func ModelDuration(raw float64) int {
	return ClampDuration(RoundToIncrement(raw))
}

// ModelConfidence derives the reported confidence from the model's R².
func ModelConfidence(r2 float64) float64 {
	if math.IsNaN(r2) {
		return MinModelConfidence
	}
	c := math.Min(MaxModelConfidence, math.Max(MinModelConfidence, r2))
	return round2(c)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
