// Package window slices labelled CSI samples into fixed-size temporal windows of
// normalized feature vectors.
package window

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/preprocess"
)

// ErrNoUsableData is returned by Windows.Validate when a build produced no windows.
var ErrNoUsableData = errors.New("no usable data: zero windows produced")

// WithLabelTable sets the label to class id mapping. The default is DefaultLabelTable.
func WithLabelTable(table *LabelTable) func(*Builder) {
	return func(b *Builder) {
		b.table = table
	}
}

// WithUnknownLabelPolicy sets the handling of labels missing from the label table.
func WithUnknownLabelPolicy(policy UnknownLabelPolicy) func(*Builder) {
	return func(b *Builder) {
		b.policy = policy
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) func(*Builder) {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithWorkers sets the number of label groups normalized concurrently.
func WithWorkers(n int) func(*Builder) {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// Builder turns sample sequences into Windows.
type Builder struct {
	windowSize  int
	subcarriers int

	table   *LabelTable
	policy  UnknownLabelPolicy
	workers int
	logger  *slog.Logger
}

// NewBuilder creates a Builder producing windows of windowSize vectors, each normalized
// to subcarriers entries per channel.
func NewBuilder(windowSize, subcarriers int, options ...func(*Builder)) (*Builder, error) {
	if windowSize <= 0 {
		return nil, csi.NewConfigError("window size must be positive, got %d", windowSize)
	}
	if subcarriers <= 0 {
		return nil, csi.NewConfigError("subcarrier count must be positive, got %d", subcarriers)
	}

	b := Builder{
		windowSize:  windowSize,
		subcarriers: subcarriers,
		table:       DefaultLabelTable(),
		policy:      PolicyAlias,
		workers:     1,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&b)
	}

	return &b, nil
}

// GroupInfo describes one label group of a build.
type GroupInfo struct {
	Label   string `json:"label"`
	ClassID int    `json:"class_id"`
	Samples int    `json:"samples"`
	Windows int    `json:"windows"`
	Known   bool   `json:"known"`
}

// Diagnostics counts the data-quality decisions taken during a build.
type Diagnostics struct {
	TotalSamples       int            `json:"total_samples"`
	DroppedNoLabel     int            `json:"dropped_no_label"`
	DroppedNoAmplitude int            `json:"dropped_no_amplitude"`
	ShortGroups        []string       `json:"short_groups"`
	UnknownLabels      map[string]int `json:"unknown_labels"`
	SkippedUnknown     int            `json:"skipped_unknown"`
	Groups             []GroupInfo    `json:"groups"`
}

// Dropped returns the number of samples that did not take part in windowing.
func (d *Diagnostics) Dropped() int {
	return d.DroppedNoLabel + d.DroppedNoAmplitude + d.SkippedUnknown
}

// Windows is the windowed tensor of shape len(X) × WindowSize × 2·Subcarriers and the
// aligned class ids.
type Windows struct {
	WindowSize   int
	Subcarriers  int
	TableVersion string

	X [][]preprocess.FeatureVector
	Y []int

	Diagnostics Diagnostics
}

// Len returns the number of windows.
func (w *Windows) Len() int {
	return len(w.X)
}

// FeatureDim returns the length of every feature vector.
func (w *Windows) FeatureDim() int {
	return 2 * w.Subcarriers
}

// Shape returns the tensor dimensions.
func (w *Windows) Shape() (numWindows, windowSize, featureDim int) {
	return len(w.X), w.WindowSize, w.FeatureDim()
}

// NumClasses returns the number of distinct class ids present in Y.
func (w *Windows) NumClasses() int {
	seen := make(map[int]struct{})
	for _, id := range w.Y {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// Validate returns ErrNoUsableData when the build produced no windows.
func (w *Windows) Validate() error {
	if len(w.X) == 0 {
		return ErrNoUsableData
	}
	return nil
}

type group struct {
	label   string
	id      int
	known   bool
	samples []csi.Sample
	vectors []preprocess.FeatureVector
}

// BuildWindows is a convenience wrapper around NewBuilder and Builder.Build.
func BuildWindows(samples []csi.Sample, windowSize, subcarriers int, options ...func(*Builder)) (*Windows, error) {
	b, err := NewBuilder(windowSize, subcarriers, options...)
	if err != nil {
		return nil, err
	}
	return b.Build(samples)
}

// Build groups samples by label, normalizes every group and slides a stride-1 window
// over each group. Samples without a label or amplitude are dropped and counted. Groups
// are emitted in order of first occurrence and never share a window.
//
// Zero windows is not an error here; callers must check Windows.Validate before use.
func (b *Builder) Build(samples []csi.Sample) (*Windows, error) {
	diag := Diagnostics{
		TotalSamples:  len(samples),
		ShortGroups:   make([]string, 0),
		UnknownLabels: make(map[string]int),
	}

	var groups []*group
	index := make(map[string]*group)

	for i := range samples {
		s := &samples[i]
		switch {
		case !s.HasLabel():
			diag.DroppedNoLabel++
			continue
		case len(s.Amplitude) == 0:
			diag.DroppedNoAmplitude++
			continue
		}

		g, ok := index[s.Label]
		if !ok {
			g = &group{label: s.Label}
			g.id, g.known = b.table.ID(s.Label)
			index[s.Label] = g
			groups = append(groups, g)
		}
		g.samples = append(g.samples, *s)
	}

	kept := groups[:0]
	for _, g := range groups {
		if g.known {
			kept = append(kept, g)
			continue
		}

		diag.UnknownLabels[g.label] = len(g.samples)

		switch b.policy {
		case PolicyReject:
			return nil, fmt.Errorf("%w: %q (label table %s)", ErrUnknownLabel, g.label, b.table.Version())

		case PolicySkip:
			diag.SkippedUnknown += len(g.samples)
			b.logger.Warn("skipping samples with unknown label",
				slog.String("label", g.label),
				slog.Int("samples", len(g.samples)))

		default:
			g.id = AliasID
			kept = append(kept, g)
			b.logger.Warn("unknown label aliased to class 0",
				slog.String("label", g.label),
				slog.Int("classID", AliasID),
				slog.Int("samples", len(g.samples)))
		}
	}
	groups = kept

	if err := b.normalize(groups); err != nil {
		return nil, err
	}

	out := &Windows{
		WindowSize:   b.windowSize,
		Subcarriers:  b.subcarriers,
		TableVersion: b.table.Version(),
		X:            make([][]preprocess.FeatureVector, 0),
		Y:            make([]int, 0),
	}

	for _, g := range groups {
		n := max(0, len(g.vectors)-b.windowSize+1)

		diag.Groups = append(diag.Groups, GroupInfo{
			Label:   g.label,
			ClassID: g.id,
			Samples: len(g.vectors),
			Windows: n,
			Known:   g.known,
		})

		if n == 0 {
			diag.ShortGroups = append(diag.ShortGroups, g.label)
			b.logger.Info("label group shorter than window",
				slog.String("label", g.label),
				slog.Int("samples", len(g.vectors)),
				slog.Int("windowSize", b.windowSize))
			continue
		}

		for i := 0; i < n; i++ {
			out.X = append(out.X, g.vectors[i:i+b.windowSize:i+b.windowSize])
			out.Y = append(out.Y, g.id)
		}
	}

	if diag.Dropped() > 0 {
		b.logger.Warn("samples dropped before windowing",
			slog.Int("noLabel", diag.DroppedNoLabel),
			slog.Int("noAmplitude", diag.DroppedNoAmplitude),
			slog.Int("unknownLabel", diag.SkippedUnknown))
	}

	out.Diagnostics = diag
	return out, nil
}

// normalize fills in the feature vectors of every group, running up to b.workers groups
// concurrently. Each group is written only by its own worker.
func (b *Builder) normalize(groups []*group) error {
	errs := make([]error, len(groups))
	sem := make(chan struct{}, b.workers)

	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()

			g.vectors = make([]preprocess.FeatureVector, len(g.samples))
			for j := range g.samples {
				vec, err := preprocess.Normalize(g.samples[j], b.subcarriers)
				if err != nil {
					errs[i] = fmt.Errorf("normalizing %q sample %d: %w", g.label, j, err)
					return
				}
				g.vectors[j] = vec
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
