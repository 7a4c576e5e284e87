package app

import "math"

const (
	defaultMinAmplitude = 0.0
	defaultMaxAmplitude = 50.0

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	minimumRange = 10.0
	binsPerUnit  = 4 // 0.25 amplitude units per bin
)

// AmplitudeBounds represents the calculated amplitude boundaries
type AmplitudeBounds struct {
	Min  float64 // 5th percentile amplitude, less a margin
	Max  float64 // 95th percentile amplitude, plus a margin
	Mean float64
}

func defaultAmplitudeBounds() AmplitudeBounds {
	return AmplitudeBounds{
		Min:  defaultMinAmplitude,
		Max:  defaultMaxAmplitude,
		Mean: (defaultMinAmplitude + defaultMaxAmplitude) / 2,
	}
}

// AmplitudeHistogram maintains a histogram of amplitude values with fixed width bins
type AmplitudeHistogram struct {
	bins       map[int]uint32 // Map of bin index to count
	totalCount uint64         // Total number of samples
	sum        float64
	minBin     int // Cache for min bin
	maxBin     int // Cache for max bin
}

// NewAmplitudeHistogram creates a new histogram
func NewAmplitudeHistogram() *AmplitudeHistogram {
	return &AmplitudeHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

func getBinIndex(amp float64) int {
	return int(math.Floor(amp * binsPerUnit))
}

func binValue(bin int) float64 {
	return float64(bin) / binsPerUnit
}

// scaleDown scales all bin counts down by factor of 2
func (h *AmplitudeHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}

		if bin < h.minBin {
			h.minBin = bin
		}
		if bin > h.maxBin {
			h.maxBin = bin
		}
	}
	h.totalCount /= 2
	h.sum /= 2
}

// Update adds a new amplitude reading to the histogram
func (h *AmplitudeHistogram) Update(amp float64) {
	if math.IsNaN(amp) || math.IsInf(amp, 0) {
		return
	}

	bin := getBinIndex(amp)

	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++
	h.sum += amp

	if bin < h.minBin {
		h.minBin = bin
	}
	if bin > h.maxBin {
		h.maxBin = bin
	}
}

// Count returns the number of readings in the histogram.
func (h *AmplitudeHistogram) Count() uint64 {
	return h.totalCount
}

// Clear resets the histogram
func (h *AmplitudeHistogram) Clear() {
	h.bins = make(map[int]uint32)
	h.totalCount = 0
	h.sum = 0
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
}

// GetPercentileBounds returns amplitude bounds based on the 5th and 95th percentiles
func (h *AmplitudeHistogram) GetPercentileBounds() AmplitudeBounds {
	if h.totalCount < minimumSampleCount {
		return defaultAmplitudeBounds()
	}

	target5th := h.totalCount * 5 / 100

	var count uint64
	var min5th, max95th int

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target5th {
			min5th = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target5th {
			max95th = bin
			break
		}
	}

	lo, hi := binValue(min5th), binValue(max95th+1)
	if hi-lo < minimumRange {
		center := (hi + lo) / 2
		lo = center - minimumRange/2
		hi = center + minimumRange/2
	}

	margin := (hi - lo) / 10
	return AmplitudeBounds{
		Min:  math.Max(0, lo-margin), // amplitudes are magnitudes
		Max:  hi + margin,
		Mean: h.sum / float64(h.totalCount),
	}
}

// SmoothBounds represents a smoothed version of the histogram bounds
type SmoothBounds struct {
	hist    *AmplitudeHistogram
	alpha   float64         // Smoothing factor (0-1)
	current AmplitudeBounds // Current smoothed bounds
}

// NewSmoothBounds creates a new bounds smoother
func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{
		hist:    NewAmplitudeHistogram(),
		alpha:   alpha,
		current: defaultAmplitudeBounds(),
	}
}

// Update adds a new amplitude reading and returns smoothed bounds
func (s *SmoothBounds) Update(amp float64) AmplitudeBounds {
	s.hist.Update(amp)

	newBounds := s.hist.GetPercentileBounds()

	// Apply exponential smoothing
	s.current.Min = s.current.Min*(1-s.alpha) + newBounds.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + newBounds.Max*s.alpha
	s.current.Mean = newBounds.Mean

	return s.current
}

// Current returns the current smoothed bounds
func (s *SmoothBounds) Current() AmplitudeBounds {
	return s.current
}

// Exact returns the unsmoothed percentile bounds of everything seen so far.
func (s *SmoothBounds) Exact() AmplitudeBounds {
	return s.hist.GetPercentileBounds()
}

// Clear resets the histogram and bounds
func (s *SmoothBounds) Clear() {
	s.hist.Clear()
	s.current = defaultAmplitudeBounds()
}
