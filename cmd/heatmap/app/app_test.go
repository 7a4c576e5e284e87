package app

import (
	"context"
	"flag"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/wifi-csi/internal/synth"
)

func TestAmplitudeHistogram_Bounds(t *testing.T) {
	h := NewAmplitudeHistogram()

	if b := h.GetPercentileBounds(); b != defaultAmplitudeBounds() {
		t.Errorf("Expected default bounds below minimum sample count, got %+v", b)
	}

	for i := 0; i < 100; i++ {
		h.Update(float64(i % 50)) // 0..49
	}
	h.Update(math.NaN())

	if h.Count() != 100 {
		t.Errorf("Expected 100 readings, got %d", h.Count())
	}

	b := h.GetPercentileBounds()
	if b.Min < 0 || b.Min > 5 {
		t.Errorf("Expected lower bound near 5th percentile, got %.2f", b.Min)
	}
	if b.Max < 45 || b.Max > 60 {
		t.Errorf("Expected upper bound near 95th percentile, got %.2f", b.Max)
	}
	if b.Mean != 24.5 {
		t.Errorf("Expected mean 24.5, got %.2f", b.Mean)
	}

	h.Clear()
	if h.Count() != 0 {
		t.Error("Cleared histogram should be empty")
	}
}

func TestAmplitudeHistogram_MinimumRange(t *testing.T) {
	h := NewAmplitudeHistogram()
	for i := 0; i < 40; i++ {
		h.Update(20)
	}

	b := h.GetPercentileBounds()
	if b.Max-b.Min < minimumRange {
		t.Errorf("Expected range of at least %.0f, got %.2f", minimumRange, b.Max-b.Min)
	}
}

func TestColorMapper(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, AmplitudeBounds{Min: 0, Max: 10})

	low := cm.GetColor(-5).(color.RGBA)
	high := cm.GetColor(50).(color.RGBA)
	if low.R != 0 || high.R != 255 {
		t.Errorf("Expected clamped colors, got %v and %v", low, high)
	}

	if cm.GetColor(math.NaN()) != noDataColor {
		t.Error("Expected no-data color for NaN")
	}

	for theme := range validThemes {
		m := NewColorMapperWithSize(theme, AmplitudeBounds{Min: 0, Max: 1}, 16)
		if m.Size() != 16 || m.ThemeName() != theme {
			t.Errorf("Unexpected mapper for theme %s", theme)
		}
		for i := 0; i <= 10; i++ {
			if c := m.GetColor(float64(i) / 10); c == nil {
				t.Errorf("Theme %s: nil color", theme)
			}
		}
	}
}

func TestWaterfallData_Update(t *testing.T) {
	gen, err := synth.New(8, 1)
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}
	empty, _ := gen.Empty(3)
	walking, _ := gen.Walking(2)

	data := NewWaterfallData(NewSmoothBounds(0.3))
	for _, s := range append(empty, walking...) {
		data.Update(&s)
	}

	if data.Width != 8 || data.Height != 5 {
		t.Errorf("Expected 8x5 waterfall, got %dx%d", data.Width, data.Height)
	}
	if len(data.Labels) != 2 {
		t.Fatalf("Expected 2 label spans, got %d", len(data.Labels))
	}
	if data.Labels[0] != (LabelSpan{Label: "empty", Start: 0, End: 3}) || data.Labels[1] != (LabelSpan{Label: "walking", Start: 3, End: 5}) {
		t.Errorf("Unexpected label spans %+v", data.Labels)
	}
}

func TestWaterfallRenderer_Render(t *testing.T) {
	gen, _ := synth.New(16, 7)
	samples, _ := gen.GenerateSamples(5)

	data := NewWaterfallData(NewSmoothBounds(0.3))
	for _, s := range samples {
		data.Update(&s)
	}

	testCases := []struct {
		name          string
		annotations   bool
		width, height int
	}{
		{"annotated", true, 16*4 + defaultLeftBorder + defaultRightBorder, 30*3 + defaultTopBorder + defaultBottomBorder},
		{"plain", false, 16 * 4, 30 * 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewWaterfallRenderer(RenderConfig{CellWidth: 4, RowHeight: 3, Annotations: tc.annotations})
			if err != nil {
				t.Fatalf("Failed to create renderer: %v", err)
			}
			img, err := r.Render(data)
			if err != nil {
				t.Fatalf("Failed to render: %v", err)
			}
			if img.Bounds().Dx() != tc.width || img.Bounds().Dy() != tc.height {
				t.Errorf("Expected %dx%d image, got %dx%d", tc.width, tc.height, img.Bounds().Dx(), img.Bounds().Dy())
			}
		})
	}

	r, _ := NewWaterfallRenderer(RenderConfig{})
	if _, err := r.Render(NewWaterfallData(NewSmoothBounds(0.3))); err == nil {
		t.Error("Expected error when rendering no samples")
	}
}

func TestParseConfig(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"dataset", []string{"-dataset", "d.json", "-o", "out"}, false},
		{"db", []string{"-db", "s.sqlite", "-s", "2", "-o", "out", "-f", "JPEG", "-theme", "thermal"}, false},
		{"no source", []string{"-o", "out"}, true},
		{"both sources", []string{"-db", "s.sqlite", "-dataset", "d.json", "-o", "out"}, true},
		{"no output", []string{"-dataset", "d.json"}, true},
		{"bad format", []string{"-dataset", "d.json", "-o", "out", "-f", "gif"}, true},
		{"bad theme", []string{"-dataset", "d.json", "-o", "out", "-theme", "neon"}, true},
		{"inverted amplitude", []string{"-dataset", "d.json", "-o", "out", "-min-amp", "10", "-max-amp", "5"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := flag.NewFlagSet("heatmap", flag.ContinueOnError)
			fs.SetOutput(io.Discard)

			c, err := parseConfig(fs, tc.args)
			if tc.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c.OutputFile != "out."+string(c.Format) {
				t.Errorf("Unexpected output file %q", c.OutputFile)
			}
		})
	}
}

func TestRun_Dataset(t *testing.T) {
	dir := t.TempDir()

	gen, _ := synth.New(12, 3)
	ds, err := gen.GenerateDataset(4)
	if err != nil {
		t.Fatalf("Failed to generate dataset: %v", err)
	}
	datasetPath := filepath.Join(dir, "synthetic.json")
	if err = ds.Save(datasetPath); err != nil {
		t.Fatalf("Failed to save dataset: %v", err)
	}

	config := NewConfig()
	config.DatasetPath = datasetPath
	config.Label = "sitting"
	config.OutputFile = filepath.Join(dir, "waterfall.png")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err = Run(context.Background(), config, logger); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stat, err := os.Stat(config.OutputFile)
	if err != nil || stat.Size() == 0 {
		t.Errorf("Expected image to be written, got %v", err)
	}

	config.Label = "dancing"
	if err = Run(context.Background(), config, logger); err == nil {
		t.Error("Expected error when no sample matches")
	}
}
