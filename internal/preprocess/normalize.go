// Package preprocess converts raw CSI samples into fixed-length feature vectors.
package preprocess

import (
	"fmt"
	"math"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/features"
)

// Epsilon is added to the amplitude standard deviation so that constant vectors
// normalize to zeros instead of NaN.
const Epsilon = 1e-6

// FeatureVector is a normalized sample of length 2·S: S z-scored amplitudes followed by
// S phases scaled to [-1, 1].
type FeatureVector []float64

// Subcarriers returns S, the number of subcarriers the vector was sized to.
func (v FeatureVector) Subcarriers() int {
	return len(v) / 2
}

// Amplitude returns the amplitude half of the vector.
func (v FeatureVector) Amplitude() []float64 {
	return v[:len(v)/2]
}

// Phase returns the phase half of the vector.
func (v FeatureVector) Phase() []float64 {
	return v[len(v)/2:]
}

// Resize returns a copy of values right-padded with zeros or truncated to exactly n entries.
func Resize(values []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, values)
	return out
}

// Normalize resizes the amplitude and phase of s to subcarriers entries each, z-scores
// the amplitude against its own mean and standard deviation and divides the phase by π.
// The mean and deviation are taken after resizing, so padded zeros take part in them.
//
// Normalize fails with csi.ErrMalformedInput when the sample has no amplitude and with a
// csi.ConfigError when subcarriers is not positive.
func Normalize(s csi.Sample, subcarriers int) (FeatureVector, error) {
	if subcarriers <= 0 {
		return nil, csi.NewConfigError("subcarrier count must be positive, got %d", subcarriers)
	}
	if len(s.Amplitude) == 0 {
		return nil, fmt.Errorf("%w: empty amplitude vector", csi.ErrMalformedInput)
	}

	vec := make(FeatureVector, 2*subcarriers)

	amp := vec[:subcarriers]
	copy(amp, s.Amplitude)

	mean := features.Mean(amp)
	scale := features.StdDev(amp) + Epsilon
	for i := range amp {
		amp[i] = (amp[i] - mean) / scale
	}

	phase := vec[subcarriers:]
	copy(phase, s.Phase)
	for i := range phase {
		phase[i] /= math.Pi
	}

	return vec, nil
}
