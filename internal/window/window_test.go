package window

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

func labelled(label string, n, subcarriers int, start int64) []csi.Sample {
	out := make([]csi.Sample, n)
	for i := range out {
		amp := make([]float64, subcarriers)
		for j := range amp {
			amp[j] = float64(i + j)
		}
		out[i] = csi.Sample{
			Timestamp:       start + int64(i),
			SubcarrierCount: subcarriers,
			Amplitude:       amp,
			Phase:           make([]float64, subcarriers),
			Label:           label,
		}
	}
	return out
}

func TestBuildWindows_Sitting(t *testing.T) {
	w, err := BuildWindows(labelled("sitting", 12, 52, 0), 10, 52)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	n, size, dim := w.Shape()
	if n != 3 || size != 10 || dim != 104 {
		t.Errorf("Expected shape (3, 10, 104), got (%d, %d, %d)", n, size, dim)
	}
	if !slices.Equal(w.Y, []int{4, 4, 4}) {
		t.Errorf("Expected labels [4 4 4], got %v", w.Y)
	}
	for i, win := range w.X {
		if len(win) != 10 {
			t.Errorf("Window %d: expected 10 vectors, got %d", i, len(win))
		}
		for j, vec := range win {
			if len(vec) != 104 {
				t.Errorf("Window %d vector %d: expected length 104, got %d", i, j, len(vec))
			}
		}
	}
	if err := w.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestBuildWindows_Counts(t *testing.T) {
	tests := []struct {
		name       string
		n, window  int
		wantWindow int
	}{
		{"window equals group", 10, 10, 1},
		{"window larger than group", 5, 10, 0},
		{"window of one", 4, 1, 4},
		{"long group", 100, 50, 51},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := BuildWindows(labelled("walking", tt.n, 8, 0), tt.window, 8)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if w.Len() != tt.wantWindow {
				t.Errorf("Expected %d windows, got %d", tt.wantWindow, w.Len())
			}
		})
	}
}

func TestBuildWindows_NeverMixesLabels(t *testing.T) {
	var samples []csi.Sample
	walking := labelled("walking", 6, 4, 0)
	empty := labelled("empty", 6, 4, 100)
	for i := range walking {
		samples = append(samples, walking[i], empty[i])
	}

	w, err := BuildWindows(samples, 3, 4)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !slices.Equal(w.Y, []int{3, 3, 3, 3, 0, 0, 0, 0}) {
		t.Errorf("Unexpected labels %v", w.Y)
	}
	if len(w.Diagnostics.Groups) != 2 || w.Diagnostics.Groups[0].Label != "walking" {
		t.Errorf("Expected walking group first, got %+v", w.Diagnostics.Groups)
	}
}

func TestBuildWindows_DropsUnusable(t *testing.T) {
	samples := labelled("present", 5, 4, 0)
	samples = append(samples,
		csi.Sample{Timestamp: 10, Amplitude: []float64{1, 2, 3, 4}},
		csi.Sample{Timestamp: 11, Label: "present"},
	)

	w, err := BuildWindows(samples, 5, 4)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	d := w.Diagnostics
	if d.TotalSamples != 7 || d.DroppedNoLabel != 1 || d.DroppedNoAmplitude != 1 {
		t.Errorf("Unexpected diagnostics %+v", d)
	}
	if w.Len() != 1 {
		t.Errorf("Expected 1 window, got %d", w.Len())
	}
}

func TestBuildWindows_UnknownLabelPolicy(t *testing.T) {
	samples := append(labelled("dancing", 3, 4, 0), labelled("sitting", 3, 4, 10)...)

	t.Run("alias", func(t *testing.T) {
		w, err := BuildWindows(samples, 3, 4)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !slices.Equal(w.Y, []int{0, 4}) {
			t.Errorf("Expected [0 4], got %v", w.Y)
		}
		if w.Diagnostics.UnknownLabels["dancing"] != 3 {
			t.Errorf("Expected dancing to be reported, got %v", w.Diagnostics.UnknownLabels)
		}
	})

	t.Run("skip", func(t *testing.T) {
		w, err := BuildWindows(samples, 3, 4, WithUnknownLabelPolicy(PolicySkip))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !slices.Equal(w.Y, []int{4}) {
			t.Errorf("Expected [4], got %v", w.Y)
		}
		if w.Diagnostics.SkippedUnknown != 3 {
			t.Errorf("Expected 3 skipped samples, got %d", w.Diagnostics.SkippedUnknown)
		}
	})

	t.Run("reject", func(t *testing.T) {
		_, err := BuildWindows(samples, 3, 4, WithUnknownLabelPolicy(PolicyReject))
		if !errors.Is(err, ErrUnknownLabel) {
			t.Errorf("Expected ErrUnknownLabel, got %v", err)
		}
	})
}

func TestBuildWindows_Parallel(t *testing.T) {
	var samples []csi.Sample
	for _, label := range []string{"empty", "present", "moving", "walking", "sitting", "standing"} {
		samples = append(samples, labelled(label, 20, 16, 0)...)
	}

	sequential, err := BuildWindows(samples, 5, 16)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	parallel, err := BuildWindows(samples, 5, 16, WithWorkers(4))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !slices.Equal(sequential.Y, parallel.Y) {
		t.Fatalf("Label order differs: %v vs %v", sequential.Y, parallel.Y)
	}
	for i := range sequential.X {
		for j := range sequential.X[i] {
			if !slices.Equal(sequential.X[i][j], parallel.X[i][j]) {
				t.Fatalf("Window %d vector %d differs", i, j)
			}
		}
	}
	if parallel.NumClasses() != 6 {
		t.Errorf("Expected 6 classes, got %d", parallel.NumClasses())
	}
}

func TestBuildWindows_Empty(t *testing.T) {
	w, err := BuildWindows(nil, 10, 52)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if w.Len() != 0 {
		t.Errorf("Expected no windows, got %d", w.Len())
	}
	if !errors.Is(w.Validate(), ErrNoUsableData) {
		t.Errorf("Expected ErrNoUsableData, got %v", w.Validate())
	}

	path := filepath.Join(t.TempDir(), "tensor.json")
	if err := WriteTensor(path, w, DefaultLabelTable()); !errors.Is(err, ErrNoUsableData) {
		t.Errorf("Expected WriteTensor to refuse an empty build, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected no tensor file to be written")
	}
}

func TestBuildWindows_InvalidConfig(t *testing.T) {
	for _, tc := range [][2]int{{0, 52}, {-1, 52}, {10, 0}} {
		if _, err := BuildWindows(nil, tc[0], tc[1]); !csi.IsConfigError(err) {
			t.Errorf("window %d, S %d: expected ConfigError, got %v", tc[0], tc[1], err)
		}
	}
}

func TestTensor_Encode(t *testing.T) {
	w, err := BuildWindows(labelled("standing", 4, 3, 0), 2, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := NewTensor(w, DefaultLabelTable()).Encode(&buf); err != nil {
		t.Fatalf("Failed to encode tensor: %v", err)
	}

	var doc struct {
		Metadata TensorMetadata `json:"metadata"`
		X        [][][]float64  `json:"x"`
		Y        []int          `json:"y"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode tensor: %v", err)
	}

	m := doc.Metadata
	if m.NumWindows != 3 || m.WindowSize != 2 || m.FeatureDim != 6 || m.NumClasses != 1 {
		t.Errorf("Unexpected metadata %+v", m)
	}
	if m.LabelTableVersion != "v1" || m.Labels["standing"] != 5 {
		t.Errorf("Unexpected label mapping %+v", m)
	}
	if len(doc.X) != 3 || len(doc.X[0]) != 2 || len(doc.X[0][0]) != 6 {
		t.Errorf("Unexpected tensor shape")
	}
	if !slices.Equal(doc.Y, []int{5, 5, 5}) {
		t.Errorf("Unexpected labels %v", doc.Y)
	}
}

func TestLabelTable(t *testing.T) {
	table := DefaultLabelTable()
	if !slices.Equal(table.Names(), []string{"empty", "present", "moving", "walking", "sitting", "standing"}) {
		t.Errorf("Unexpected label order %v", table.Names())
	}
	if _, ok := table.ID("dancing"); ok {
		t.Errorf("Expected dancing to be unknown")
	}

	if _, err := NewLabelTable("v2", map[string]int{"a": 1, "b": 1}); err == nil {
		t.Errorf("Expected duplicate ids to be rejected")
	}

	for _, name := range []string{"alias", "SKIP", "reject"} {
		p, err := ParseUnknownLabelPolicy(name)
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", name, err)
		}
		if p.String() == "" {
			t.Errorf("Empty policy name")
		}
	}
	if _, err := ParseUnknownLabelPolicy("ignore"); err == nil {
		t.Errorf("Expected an error for an unknown policy")
	}
}
