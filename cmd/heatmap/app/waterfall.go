package app

import (
	"math"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

// LabelSpan is a run of consecutive rows sharing a label.
type LabelSpan struct {
	Label      string
	Start, End int // row range [Start, End)
}

// WaterfallData holds one row of amplitudes per sample, in arrival order.
type WaterfallData struct {
	Width, Height                int // subcarriers x samples
	TimestampStart, TimestampEnd int64
	AmplitudeMin, AmplitudeMax   float64
	BoundsTracker                *SmoothBounds
	Labels                       []LabelSpan
	Rows                         [][]float64
}

func NewWaterfallData(b *SmoothBounds) *WaterfallData {
	return &WaterfallData{
		TimestampStart: math.MaxInt64,
		TimestampEnd:   math.MinInt64,
		AmplitudeMin:   math.MaxFloat64,
		AmplitudeMax:   -math.MaxFloat64,
		BoundsTracker:  b,
	}
}

// Update appends the amplitude vector of s as a new row.
func (w *WaterfallData) Update(s *csi.Sample) {
	w.Width = max(w.Width, len(s.Amplitude))

	w.TimestampStart = min(w.TimestampStart, s.Timestamp)
	w.TimestampEnd = max(w.TimestampEnd, s.Timestamp)

	row := make([]float64, len(s.Amplitude))
	for i, amp := range s.Amplitude {
		row[i] = amp
		w.AmplitudeMin = min(w.AmplitudeMin, amp)
		w.AmplitudeMax = max(w.AmplitudeMax, amp)
		w.BoundsTracker.Update(amp)
	}
	w.Rows = append(w.Rows, row)

	if n := len(w.Labels); n > 0 && w.Labels[n-1].Label == s.Label {
		w.Labels[n-1].End = w.Height + 1
	} else {
		w.Labels = append(w.Labels, LabelSpan{Label: s.Label, Start: w.Height, End: w.Height + 1})
	}
	w.Height++
}

// Empty reports whether no sample was added.
func (w *WaterfallData) Empty() bool {
	return w.Height == 0
}
