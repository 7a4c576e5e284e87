package features

import (
	"fmt"
	"slices"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

// UnknownLabel is the group name given to unlabelled samples during analysis.
const UnknownLabel = "unknown"

// Stats holds scalar descriptors of one sample's raw amplitude and phase.
type Stats struct {
	AmpMean   float64 `json:"amp_mean"`
	AmpStd    float64 `json:"amp_std"`
	AmpVar    float64 `json:"amp_var"`
	AmpMin    float64 `json:"amp_min"`
	AmpMax    float64 `json:"amp_max"`
	AmpRange  float64 `json:"amp_range"`
	AmpMedian float64 `json:"amp_median"`
	AmpQ25    float64 `json:"amp_q25"`
	AmpQ75    float64 `json:"amp_q75"`

	PhaseMean float64 `json:"phase_mean"`
	PhaseStd  float64 `json:"phase_std"`
	PhaseVar  float64 `json:"phase_var"`

	RSSI           int `json:"rssi"`
	NumSubcarriers int `json:"num_subcarriers"`
}

// Names returns the JSON names of the Stats fields in declaration order.
func Names() []string {
	return []string{
		"amp_mean", "amp_std", "amp_var", "amp_min", "amp_max", "amp_range",
		"amp_median", "amp_q25", "amp_q75",
		"phase_mean", "phase_std", "phase_var",
		"rssi", "num_subcarriers",
	}
}

// ComputeSampleStats computes descriptive statistics on the raw, non-normalized vectors
// of s. An empty amplitude vector yields csi.ErrMalformedInput; an empty phase vector
// yields zero phase statistics.
func ComputeSampleStats(s csi.Sample) (Stats, error) {
	if len(s.Amplitude) == 0 {
		return Stats{}, fmt.Errorf("%w: empty amplitude vector", csi.ErrMalformedInput)
	}

	sorted := slices.Clone(s.Amplitude)
	slices.Sort(sorted)

	st := Stats{
		AmpMean:   Mean(sorted),
		AmpVar:    Variance(sorted),
		AmpMin:    sorted[0],
		AmpMax:    sorted[len(sorted)-1],
		AmpMedian: percentileSorted(sorted, 50),
		AmpQ25:    percentileSorted(sorted, 25),
		AmpQ75:    percentileSorted(sorted, 75),

		RSSI:           s.RSSI,
		NumSubcarriers: s.SubcarrierCount,
	}
	st.AmpStd = StdDev(sorted)
	st.AmpRange = st.AmpMax - st.AmpMin

	if len(s.Phase) > 0 {
		st.PhaseMean = Mean(s.Phase)
		st.PhaseVar = Variance(s.Phase)
		st.PhaseStd = StdDev(s.Phase)
	}

	return st, nil
}

// Record pairs the statistics of one sample with its label and device timestamp.
type Record struct {
	Stats
	Label     string `json:"label"`
	Timestamp int64  `json:"timestamp"`

	seq int // position in the input sequence
}

// Group is the arrival-ordered statistics of all samples sharing a label.
type Group struct {
	Label   string
	Records []Record
}

// Stats returns the bare statistics of the group in arrival order.
func (g Group) Stats() []Stats {
	out := make([]Stats, len(g.Records))
	for i := range g.Records {
		out[i] = g.Records[i].Stats
	}
	return out
}

// AggregateByLabel computes per-sample statistics and groups them by label. Groups are
// returned in order of first occurrence and records keep arrival order within a group.
// Unlabelled samples are grouped under UnknownLabel. Samples with no amplitude are
// skipped; their number is returned as dropped.
func AggregateByLabel(samples []csi.Sample) (groups []Group, dropped int) {
	index := make(map[string]int)

	for i := range samples {
		st, err := ComputeSampleStats(samples[i])
		if err != nil {
			dropped++
			continue
		}

		label := samples[i].Label
		if label == "" {
			label = UnknownLabel
		}

		pos, ok := index[label]
		if !ok {
			pos = len(groups)
			index[label] = pos
			groups = append(groups, Group{Label: label})
		}
		groups[pos].Records = append(groups[pos].Records, Record{
			Stats:     st,
			Label:     label,
			Timestamp: samples[i].Timestamp,
			seq:       i,
		})
	}

	return groups, dropped
}

// MeanStd is a mean with its population standard deviation.
type MeanStd struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func newMeanStd(values []float64) MeanStd {
	return MeanStd{Mean: Mean(values), Std: StdDev(values)}
}

// LabelSummary condenses the statistics of a label group for reporting.
type LabelSummary struct {
	Label    string  `json:"label"`
	Count    int     `json:"count"`
	AmpMean  MeanStd `json:"amp_mean"`
	AmpStd   MeanStd `json:"amp_std"`
	PhaseStd MeanStd `json:"phase_std"`
	RSSI     float64 `json:"rssi_mean"`
}

// SummarizeByLabel reduces every group to a LabelSummary, preserving group order.
func SummarizeByLabel(groups []Group) []LabelSummary {
	out := make([]LabelSummary, 0, len(groups))

	for _, g := range groups {
		n := len(g.Records)
		ampMean := make([]float64, n)
		ampStd := make([]float64, n)
		phaseStd := make([]float64, n)
		rssi := make([]float64, n)

		for i, r := range g.Records {
			ampMean[i] = r.AmpMean
			ampStd[i] = r.AmpStd
			phaseStd[i] = r.PhaseStd
			rssi[i] = float64(r.RSSI)
		}

		out = append(out, LabelSummary{
			Label:    g.Label,
			Count:    n,
			AmpMean:  newMeanStd(ampMean),
			AmpStd:   newMeanStd(ampStd),
			PhaseStd: newMeanStd(phaseStd),
			RSSI:     Mean(rssi),
		})
	}

	return out
}
