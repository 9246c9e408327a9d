package audio

import "math"

// DefaultSilenceThreshold is the RMS level below which a frame counts as
// silent. Tuned for typical living-room microphone noise floors.
const DefaultSilenceThreshold = 0.001

// RMS computes the root-mean-square energy of the samples. An empty slice
// has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Silent reports whether the samples fall below the given RMS threshold.
// An empty slice is silent.
func Silent(samples []float32, threshold float64) bool {
	return RMS(samples) < threshold
}
