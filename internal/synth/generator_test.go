package synth

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/roman-kulish/wifi-csi/internal/features"
)

func newGenerator(t *testing.T, seed uint64) *Generator {
	t.Helper()
	g, err := New(52, seed)
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}
	return g
}

func TestGenerateDataset_Counts(t *testing.T) {
	g := newGenerator(t, 42)

	d, err := g.GenerateDataset(25)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if d.Len() != 6*25 {
		t.Errorf("Expected %d samples, got %d", 6*25, d.Len())
	}
	counts := d.LabelCounts()
	for _, class := range Classes() {
		if counts[class] != 25 {
			t.Errorf("Class %s: expected 25 samples, got %d", class, counts[class])
		}
	}
	if !d.Metadata.Synthetic || d.Metadata.Description != DatasetDescription {
		t.Errorf("Unexpected metadata %+v", d.Metadata)
	}
	if len(d.Metadata.Labels) != 6 {
		t.Errorf("Expected 6 labels, got %v", d.Metadata.Labels)
	}
}

func TestGenerateSamples_Shuffled(t *testing.T) {
	samples, err := newGenerator(t, 7).GenerateSamples(50)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var runs int
	for i := 1; i < len(samples); i++ {
		if samples[i].Label != samples[i-1].Label {
			runs++
		}
	}
	if runs < 6 {
		t.Errorf("Expected the classes to be interleaved, got %d label changes", runs)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	for _, class := range Classes() {
		t.Run(class, func(t *testing.T) {
			a, err := newGenerator(t, 1234).Generate(class, 20)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			b, err := newGenerator(t, 1234).Generate(class, 20)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			for i := range a {
				if !slices.Equal(a[i].Amplitude, b[i].Amplitude) ||
					!slices.Equal(a[i].Phase, b[i].Phase) ||
					a[i].RSSI != b[i].RSSI ||
					a[i].Timestamp != b[i].Timestamp {
					t.Fatalf("Sample %d differs between runs", i)
				}
			}

			c, err := newGenerator(t, 4321).Generate(class, 20)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if slices.Equal(a[0].Amplitude, c[0].Amplitude) {
				t.Errorf("Different seeds produced identical amplitude")
			}
		})
	}
}

func TestGenerate_Invariants(t *testing.T) {
	g := newGenerator(t, 99)

	for _, class := range Classes() {
		samples, err := g.Generate(class, 200)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", class, err)
		}

		m, _ := Lookup(class)
		for i, s := range samples {
			if s.Label != class || s.Description != m.Description {
				t.Fatalf("%s[%d]: unexpected label/description %q/%q", class, i, s.Label, s.Description)
			}
			if s.SubcarrierCount != 52 || len(s.Amplitude) != 52 || len(s.Phase) != 52 {
				t.Fatalf("%s[%d]: unexpected vector sizes", class, i)
			}
			if s.Timestamp < 100000 || s.Timestamp >= 999999 {
				t.Errorf("%s[%d]: timestamp %d out of range", class, i, s.Timestamp)
			}
			for _, a := range s.Amplitude {
				if a < 0 {
					t.Fatalf("%s[%d]: negative amplitude %v", class, i, a)
				}
			}
			if m.ClipPhase {
				for _, p := range s.Phase {
					if p < -math.Pi || p > math.Pi {
						t.Fatalf("%s[%d]: phase %v outside [-π, π]", class, i, p)
					}
				}
			}
		}
	}
}

func TestGenerate_Statistics(t *testing.T) {
	g := newGenerator(t, 2024)

	tests := []struct {
		class    string
		ampMean  float64
		rssiMean float64
	}{
		{ClassEmpty, 20, -50},
		{ClassPresent, 25, -42},
		{ClassSitting, 23, -44},
		{ClassStanding, 24, -43},
	}

	for _, tt := range tests {
		samples, err := g.Generate(tt.class, 400)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.class, err)
		}

		var amp, rssi []float64
		for _, s := range samples {
			amp = append(amp, features.Mean(s.Amplitude))
			rssi = append(rssi, float64(s.RSSI))
		}

		if got := features.Mean(amp); math.Abs(got-tt.ampMean) > 0.5 {
			t.Errorf("%s: expected amplitude mean ~%v, got %v", tt.class, tt.ampMean, got)
		}
		if got := features.Mean(rssi); math.Abs(got-tt.rssiMean) > 1 {
			t.Errorf("%s: expected rssi mean ~%v, got %v", tt.class, tt.rssiMean, got)
		}
	}
}

func TestGenerate_WalkingPeriodicity(t *testing.T) {
	samples, err := newGenerator(t, 5).Walking(40)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// i=2 sits near the positive peak of the gait modulation, i=8 near the trough.
	peak := features.Mean(samples[2].Amplitude)
	trough := features.Mean(samples[8].Amplitude)
	if peak-trough < 10 {
		t.Errorf("Expected a clear gait cycle, got peak %v and trough %v", peak, trough)
	}
}

func TestGenerate_Errors(t *testing.T) {
	g := newGenerator(t, 1)

	if _, err := g.Generate("dancing", 1); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("Expected ErrUnknownClass, got %v", err)
	}
	if _, err := g.Generate(ClassEmpty, -1); err == nil {
		t.Errorf("Expected an error for a negative count")
	}
	if _, err := New(0, 1); err == nil {
		t.Errorf("Expected an error for zero subcarriers")
	}

	samples, err := g.Moving(0)
	if err != nil || len(samples) != 0 {
		t.Errorf("Expected no samples and no error, got %d and %v", len(samples), err)
	}
}
