// Package synth generates synthetic CSI traces for the six activity classes. All draws
// come from a single seeded stream, so a generator built with the same seed and called
// in the same order reproduces its output exactly.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

const (
	minTimestamp = 100000
	maxTimestamp = 999999 // exclusive

	// DatasetDescription is the metadata description of generated datasets.
	DatasetDescription = "Synthetic CSI data for ML pipeline testing"
)

// ErrUnknownClass is returned when a class has no model.
var ErrUnknownClass = errors.New("unknown synthetic class")

// Generator draws samples from the class models. It is not safe for concurrent use.
type Generator struct {
	subcarriers int
	rng         *rand.Rand
}

// New creates a generator producing samples with subcarriers entries, seeded with seed.
func New(subcarriers int, seed uint64) (*Generator, error) {
	if subcarriers <= 0 {
		return nil, csi.NewConfigError("subcarrier count must be positive, got %d", subcarriers)
	}

	return &Generator{
		subcarriers: subcarriers,
		rng:         rand.New(rand.NewPCG(seed, seed)),
	}, nil
}

// Subcarriers returns the configured subcarrier count.
func (g *Generator) Subcarriers() int {
	return g.subcarriers
}

// Generate produces count samples of the named class.
func (g *Generator) Generate(label string, count int) ([]csi.Sample, error) {
	m, ok := Lookup(label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, label)
	}
	return g.GenerateModel(m, count)
}

// Empty produces count samples of an empty room.
func (g *Generator) Empty(count int) ([]csi.Sample, error) { return g.Generate(ClassEmpty, count) }

// Present produces count samples of a person present but static.
func (g *Generator) Present(count int) ([]csi.Sample, error) { return g.Generate(ClassPresent, count) }

// Moving produces count samples of a person moving around.
func (g *Generator) Moving(count int) ([]csi.Sample, error) { return g.Generate(ClassMoving, count) }

// Walking produces count samples of a person walking back and forth.
func (g *Generator) Walking(count int) ([]csi.Sample, error) { return g.Generate(ClassWalking, count) }

// Sitting produces count samples of a person sitting still.
func (g *Generator) Sitting(count int) ([]csi.Sample, error) { return g.Generate(ClassSitting, count) }

// Standing produces count samples of a person standing still.
func (g *Generator) Standing(count int) ([]csi.Sample, error) {
	return g.Generate(ClassStanding, count)
}

// GenerateModel produces count samples from m. The phase random-walk offset is local to
// the call: it starts at zero and accumulates across the samples of this call only.
//
// Per sample, draws happen in this order: amplitude vector, phase drift step, phase
// vector, timestamp, RSSI.
func (g *Generator) GenerateModel(m ClassModel, count int) ([]csi.Sample, error) {
	if count < 0 {
		return nil, csi.NewConfigError("sample count must not be negative, got %d", count)
	}

	samples := make([]csi.Sample, 0, count)
	var offset float64

	for i := 0; i < count; i++ {
		ampMean := m.AmpMean
		if m.AmpModulation != nil {
			ampMean += m.AmpModulation(i)
		}

		amp := g.normals(ampMean, m.AmpStd)
		for j := range amp {
			amp[j] = max(amp[j], 0)
		}

		if m.PhaseDrift > 0 {
			offset += g.normal(0, m.PhaseDrift)
		}

		phaseStd := m.PhaseStd
		if m.PhaseStdModulation != nil {
			phaseStd += m.PhaseStdModulation(i)
		}

		phase := g.normals(offset, phaseStd)
		if m.ClipPhase {
			for j := range phase {
				phase[j] = min(max(phase[j], -math.Pi), math.Pi)
			}
		}

		ts := minTimestamp + g.rng.Int64N(maxTimestamp-minTimestamp)
		rssi := int(math.Round(g.normal(m.RSSIMean, m.RSSIStd)))

		samples = append(samples, csi.Sample{
			Timestamp:       ts,
			RSSI:            rssi,
			SubcarrierCount: g.subcarriers,
			Amplitude:       amp,
			Phase:           phase,
			Label:           m.Label,
			Description:     m.Description,
		})
	}

	return samples, nil
}

// GenerateSamples produces samplesPerClass samples for every class in Models order and
// shuffles the combined sequence.
func (g *Generator) GenerateSamples(samplesPerClass int) ([]csi.Sample, error) {
	all := make([]csi.Sample, 0, len(Models)*max(samplesPerClass, 0))

	for _, m := range Models {
		samples, err := g.GenerateModel(m, samplesPerClass)
		if err != nil {
			return nil, fmt.Errorf("generating %s samples: %w", m.Label, err)
		}
		all = append(all, samples...)
	}

	g.rng.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})

	return all, nil
}

// GenerateDataset wraps GenerateSamples into a dataset flagged as synthetic.
func (g *Generator) GenerateDataset(samplesPerClass int) (*csi.Dataset, error) {
	samples, err := g.GenerateSamples(samplesPerClass)
	if err != nil {
		return nil, err
	}

	meta := csi.Metadata{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Synthetic:   true,
		Description: DatasetDescription,
	}
	return csi.NewDataset(meta, samples), nil
}

func (g *Generator) normal(mean, std float64) float64 {
	return mean + std*g.rng.NormFloat64()
}

func (g *Generator) normals(mean, std float64) []float64 {
	out := make([]float64, g.subcarriers)
	for i := range out {
		out[i] = g.normal(mean, std)
	}
	return out
}
