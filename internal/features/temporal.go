package features

import (
	"github.com/roman-kulish/wifi-csi/internal/csi"
)

// StabilityThreshold is the mean amplitude-std variation below which a label is
// considered temporally stable.
const StabilityThreshold = 5.0

// TemporalStability slides a window of windowSize consecutive statistics over stats with
// stride 1 and returns, per window position, the standard deviation of AmpStd and of
// PhaseStd across the window. Both sequences have max(0, len(stats)-windowSize+1) entries.
func TemporalStability(stats []Stats, windowSize int) (ampStdVar, phaseStdVar []float64, err error) {
	if windowSize <= 0 {
		return nil, nil, csi.NewConfigError("window size must be positive, got %d", windowSize)
	}

	n := len(stats) - windowSize + 1
	if n <= 0 {
		return []float64{}, []float64{}, nil
	}

	ampStd := make([]float64, len(stats))
	phaseStd := make([]float64, len(stats))
	for i := range stats {
		ampStd[i] = stats[i].AmpStd
		phaseStd[i] = stats[i].PhaseStd
	}

	ampStdVar = make([]float64, n)
	phaseStdVar = make([]float64, n)
	for i := 0; i < n; i++ {
		ampStdVar[i] = StdDev(ampStd[i : i+windowSize])
		phaseStdVar[i] = StdDev(phaseStd[i : i+windowSize])
	}

	return ampStdVar, phaseStdVar, nil
}

// LabelStability is the temporal analysis result of one label group.
type LabelStability struct {
	Label             string    `json:"label"`
	Samples           int       `json:"samples"`
	AmpStdVariation   []float64 `json:"amp_std_variation"`
	PhaseStdVariation []float64 `json:"phase_std_variation"`
	MeanAmpStdVar     float64   `json:"mean_amp_std_variation"`
	MeanPhaseStdVar   float64   `json:"mean_phase_std_variation"`
	Stable            bool      `json:"stable"`
}

// SkippedGroup reports a label group too short for the analysis window.
type SkippedGroup struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

// TemporalReport is the outcome of AnalyzeTemporal.
type TemporalReport struct {
	WindowSize int              `json:"window_size"`
	Labels     []LabelStability `json:"labels"`
	Skipped    []SkippedGroup   `json:"skipped"`
}

// AnalyzeTemporal runs TemporalStability on every group with at least windowSize
// records. Shorter groups are listed in Skipped and are not counted as unstable.
func AnalyzeTemporal(groups []Group, windowSize int) (*TemporalReport, error) {
	if windowSize <= 0 {
		return nil, csi.NewConfigError("window size must be positive, got %d", windowSize)
	}

	report := &TemporalReport{
		WindowSize: windowSize,
		Labels:     make([]LabelStability, 0, len(groups)),
		Skipped:    make([]SkippedGroup, 0),
	}

	for _, g := range groups {
		if len(g.Records) < windowSize {
			report.Skipped = append(report.Skipped, SkippedGroup{Label: g.Label, Samples: len(g.Records)})
			continue
		}

		ampVar, phaseVar, err := TemporalStability(g.Stats(), windowSize)
		if err != nil {
			return nil, err
		}

		ls := LabelStability{
			Label:             g.Label,
			Samples:           len(g.Records),
			AmpStdVariation:   ampVar,
			PhaseStdVariation: phaseVar,
			MeanAmpStdVar:     Mean(ampVar),
			MeanPhaseStdVar:   Mean(phaseVar),
		}
		ls.Stable = ls.MeanAmpStdVar < StabilityThreshold

		report.Labels = append(report.Labels, ls)
	}

	return report, nil
}
