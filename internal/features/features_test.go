package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestPercentile(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{25, 2},
		{50, 3},
		{75, 4},
		{100, 5},
		{10, 1.4},
	}

	for _, tt := range tests {
		if got := Percentile(values, tt.p); !almostEqual(got, tt.want) {
			t.Errorf("Percentile(%v): expected %v, got %v", tt.p, tt.want, got)
		}
	}

	if got := Percentile([]float64{1, 2, 3, 4}, 50); !almostEqual(got, 2.5) {
		t.Errorf("Expected even-length median 2.5, got %v", got)
	}
	if !slices.Equal(values, []float64{5, 1, 4, 2, 3}) {
		t.Errorf("Percentile reordered its input: %v", values)
	}
}

func TestComputeSampleStats(t *testing.T) {
	s, err := csi.NewSample(10, -47, []float64{1, 2, 3, 4, 5}, nil)
	if err != nil {
		t.Fatalf("Failed to build sample: %v", err)
	}

	st, err := ComputeSampleStats(s)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"amp_mean", st.AmpMean, 3},
		{"amp_std", st.AmpStd, math.Sqrt2},
		{"amp_var", st.AmpVar, 2},
		{"amp_min", st.AmpMin, 1},
		{"amp_max", st.AmpMax, 5},
		{"amp_range", st.AmpRange, 4},
		{"amp_median", st.AmpMedian, 3},
		{"amp_q25", st.AmpQ25, 2},
		{"amp_q75", st.AmpQ75, 4},
		{"phase_mean", st.PhaseMean, 0},
		{"phase_std", st.PhaseStd, 0},
	}
	for _, c := range checks {
		if !almostEqual(c.got, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
	if st.RSSI != -47 || st.NumSubcarriers != 5 {
		t.Errorf("Expected pass-through rssi -47 and num 5, got %d and %d", st.RSSI, st.NumSubcarriers)
	}
}

func TestComputeSampleStats_EmptyAmplitude(t *testing.T) {
	_, err := ComputeSampleStats(csi.Sample{Timestamp: 1})
	if !errors.Is(err, csi.ErrMalformedInput) {
		t.Errorf("Expected ErrMalformedInput, got %v", err)
	}
}

func TestAggregateByLabel(t *testing.T) {
	samples := []csi.Sample{
		{Timestamp: 1, Label: "walking", Amplitude: []float64{1, 2}},
		{Timestamp: 2, Label: "empty", Amplitude: []float64{3, 4}},
		{Timestamp: 3, Amplitude: []float64{5, 6}},
		{Timestamp: 4, Label: "walking", Amplitude: []float64{7, 8}},
		{Timestamp: 5, Label: "empty"},
	}

	groups, dropped := AggregateByLabel(samples)

	if dropped != 1 {
		t.Errorf("Expected 1 dropped sample, got %d", dropped)
	}

	var labels []string
	for _, g := range groups {
		labels = append(labels, g.Label)
	}
	if !slices.Equal(labels, []string{"walking", "empty", UnknownLabel}) {
		t.Fatalf("Unexpected group order %v", labels)
	}

	walking := groups[0].Records
	if len(walking) != 2 || walking[0].Timestamp != 1 || walking[1].Timestamp != 4 {
		t.Errorf("Walking group lost arrival order: %+v", walking)
	}
	if !almostEqual(walking[1].AmpMean, 7.5) {
		t.Errorf("Expected amp_mean 7.5, got %v", walking[1].AmpMean)
	}
}

func TestTemporalStability(t *testing.T) {
	stats := []Stats{
		{AmpStd: 1, PhaseStd: 0.1},
		{AmpStd: 3, PhaseStd: 0.1},
		{AmpStd: 1, PhaseStd: 0.3},
		{AmpStd: 3, PhaseStd: 0.3},
	}

	t.Run("exact window", func(t *testing.T) {
		amp, phase, err := TemporalStability(stats, 4)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(amp) != 1 || len(phase) != 1 {
			t.Fatalf("Expected single-element sequences, got %d and %d", len(amp), len(phase))
		}
		if !almostEqual(amp[0], 1) || !almostEqual(phase[0], 0.1) {
			t.Errorf("Unexpected values %v %v", amp, phase)
		}
	})

	t.Run("sliding", func(t *testing.T) {
		amp, phase, err := TemporalStability(stats, 2)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(amp) != 3 || len(phase) != 3 {
			t.Fatalf("Expected 3 window positions, got %d and %d", len(amp), len(phase))
		}
		for i, want := range []float64{1, 1, 1} {
			if !almostEqual(amp[i], want) {
				t.Errorf("amp[%d]: expected %v, got %v", i, want, amp[i])
			}
		}
		if !almostEqual(phase[0], 0) || !almostEqual(phase[1], 0.1) || !almostEqual(phase[2], 0) {
			t.Errorf("Unexpected phase variation %v", phase)
		}
	})

	t.Run("short group", func(t *testing.T) {
		amp, phase, err := TemporalStability(stats, 5)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(amp) != 0 || len(phase) != 0 {
			t.Errorf("Expected empty sequences, got %v %v", amp, phase)
		}
	})

	t.Run("invalid window", func(t *testing.T) {
		if _, _, err := TemporalStability(stats, 0); !csi.IsConfigError(err) {
			t.Errorf("Expected ConfigError, got %v", err)
		}
	})
}

func groupOf(label string, ampStd ...float64) Group {
	g := Group{Label: label}
	for i, v := range ampStd {
		g.Records = append(g.Records, Record{Stats: Stats{AmpStd: v}, Label: label, Timestamp: int64(i)})
	}
	return g
}

func TestAnalyzeTemporal(t *testing.T) {
	groups := []Group{
		groupOf("sitting", 2, 2.1, 2, 2.1),
		groupOf("walking", 0, 20, 0, 20),
		groupOf("empty", 1),
	}

	report, err := AnalyzeTemporal(groups, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(report.Labels) != 2 {
		t.Fatalf("Expected 2 analyzed labels, got %d", len(report.Labels))
	}
	if !report.Labels[0].Stable {
		t.Errorf("Expected sitting to be stable: %+v", report.Labels[0])
	}
	if report.Labels[1].Stable {
		t.Errorf("Expected walking to be unstable: %+v", report.Labels[1])
	}
	if len(report.Labels[0].AmpStdVariation) != 2 {
		t.Errorf("Expected 2 window positions, got %d", len(report.Labels[0].AmpStdVariation))
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Label != "empty" || report.Skipped[0].Samples != 1 {
		t.Errorf("Unexpected skipped groups %+v", report.Skipped)
	}
}

func TestSummarizeByLabel(t *testing.T) {
	g := Group{Label: "present", Records: []Record{
		{Stats: Stats{AmpMean: 20, AmpStd: 1, PhaseStd: 0.2, RSSI: -40}},
		{Stats: Stats{AmpMean: 30, AmpStd: 3, PhaseStd: 0.2, RSSI: -44}},
	}}

	summary := SummarizeByLabel([]Group{g})
	if len(summary) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(summary))
	}

	s := summary[0]
	if s.Count != 2 || !almostEqual(s.AmpMean.Mean, 25) || !almostEqual(s.AmpMean.Std, 5) {
		t.Errorf("Unexpected amp_mean summary %+v", s)
	}
	if !almostEqual(s.AmpStd.Mean, 2) || !almostEqual(s.PhaseStd.Std, 0) || !almostEqual(s.RSSI, -42) {
		t.Errorf("Unexpected summary %+v", s)
	}
}

func TestExport(t *testing.T) {
	groups, _ := AggregateByLabel([]csi.Sample{
		{Timestamp: 9, RSSI: -50, SubcarrierCount: 2, Label: "empty", Amplitude: []float64{1, 3}},
	})
	e := NewExport("dataset.json", groups)

	path := filepath.Join(t.TempDir(), "features.json")
	if err := WriteExport(path, e); err != nil {
		t.Fatalf("Failed to write export: %v", err)
	}

	var buf bytes.Buffer
	if err := e.Encode(&buf); err != nil {
		t.Fatalf("Failed to encode export: %v", err)
	}

	var doc struct {
		Metadata struct {
			NumSamples int      `json:"num_samples"`
			Features   []string `json:"features"`
		} `json:"metadata"`
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode export: %v", err)
	}

	if doc.Metadata.NumSamples != 1 || len(doc.Metadata.Features) != len(Names())+2 {
		t.Errorf("Unexpected metadata %+v", doc.Metadata)
	}
	if len(doc.Data) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(doc.Data))
	}

	row := doc.Data[0]
	for _, name := range append(Names(), "label", "timestamp") {
		if _, ok := row[name]; !ok {
			t.Errorf("Row is missing %q", name)
		}
	}
	if row["amp_mean"].(float64) != 2 || row["label"].(string) != "empty" {
		t.Errorf("Unexpected row %v", row)
	}
}

func TestExport_InputOrder(t *testing.T) {
	groups, _ := AggregateByLabel([]csi.Sample{
		{Timestamp: 1, Label: "walking", Amplitude: []float64{1}},
		{Timestamp: 2, Label: "empty", Amplitude: []float64{1}},
		{Timestamp: 3, Amplitude: []float64{}},
		{Timestamp: 4, Label: "walking", Amplitude: []float64{1}},
		{Timestamp: 5, Amplitude: []float64{1}},
		{Timestamp: 6, Label: "empty", Amplitude: []float64{1}},
	})

	e := NewExport("", groups)
	if len(e.Data) != 5 {
		t.Fatalf("Expected 5 rows, got %d", len(e.Data))
	}
	for i, want := range []int64{1, 2, 4, 5, 6} {
		if e.Data[i].Timestamp != want {
			t.Errorf("Row %d: expected ts %d, got %d", i, want, e.Data[i].Timestamp)
		}
	}
	if e.Data[3].Label != UnknownLabel {
		t.Errorf("Expected unlabelled row as %q, got %q", UnknownLabel, e.Data[3].Label)
	}

	names := e.Metadata.Features
	if len(names) < 2 || names[len(names)-2] != "label" || names[len(names)-1] != "timestamp" {
		t.Errorf("Expected label and timestamp in feature names, got %v", names)
	}

	empty := NewExport("", nil)
	if len(empty.Data) != 0 || len(empty.Metadata.Features) != 0 {
		t.Errorf("Expected empty export, got %+v", empty.Metadata)
	}
}
