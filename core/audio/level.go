package audio

import "math"

// LevelDB returns the RMS level of the samples in dBFS, clamped at
// SilenceLevel.
func LevelDB(samples []float32) float64 {
	if len(samples) == 0 {
		return SilenceLevel
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return SilenceLevel
	}

	return math.Max(20*math.Log10(rms), SilenceLevel)
}

// LevelProbability maps a level onto [0, 1] around the threshold, reaching 0.5
// at the threshold and saturating 12 dB either side of it. Capture devices
// without a model-backed detector report this as the speech probability.
func LevelProbability(levelDB, thresholdDB float64) float64 {
	const span = 12.0
	p := 0.5 + (levelDB-thresholdDB)/(2*span)
	return math.Min(1, math.Max(0, p))
}
