package csi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Metadata describes a persisted Dataset. Collected and synthetic datasets fill in a
// different subset of the optional fields.
type Metadata struct {
	DatasetID    string   `json:"dataset_id,omitempty"`
	CollectedAt  string   `json:"collected_at,omitempty"`
	GeneratedAt  string   `json:"generated_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
	TotalPackets int      `json:"total_packets"`
	Labels       []string `json:"labels"`
	Synthetic    bool     `json:"synthetic,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// Dataset is an ordered sequence of samples plus metadata. A Dataset owns its samples:
// constructors and Append copy them, and Samples returns a copy.
type Dataset struct {
	Metadata Metadata
	samples  []Sample

	// Rejected is the number of records skipped while decoding the dataset file.
	Rejected int
}

// NewDataset builds a dataset from a copy of samples. TotalPackets and Labels are derived
// from the samples, other metadata fields are taken from meta as is.
func NewDataset(meta Metadata, samples []Sample) *Dataset {
	d := &Dataset{
		Metadata: meta,
		samples:  make([]Sample, len(samples)),
	}
	for i := range samples {
		d.samples[i] = samples[i].Clone()
	}
	if d.Metadata.DatasetID == "" {
		d.Metadata.DatasetID = uuid.NewString()
	}
	d.recompute()
	return d
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.samples)
}

// Samples returns a deep copy of the samples in dataset order.
func (d *Dataset) Samples() []Sample {
	out := make([]Sample, len(d.samples))
	for i := range d.samples {
		out[i] = d.samples[i].Clone()
	}
	return out
}

// Sample returns a copy of the i-th sample.
func (d *Dataset) Sample(i int) Sample {
	return d.samples[i].Clone()
}

// Append returns a new dataset holding the samples of d followed by samples. The label set
// and packet count are recomputed; d itself is not modified.
func (d *Dataset) Append(samples []Sample) *Dataset {
	merged := make([]Sample, 0, len(d.samples)+len(samples))
	merged = append(merged, d.samples...)
	merged = append(merged, samples...)

	meta := d.Metadata
	meta.Labels = nil
	meta.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	return NewDataset(meta, merged)
}

// LabelCounts returns the number of samples per label. Unlabelled samples are counted
// under the empty string.
func (d *Dataset) LabelCounts() map[string]int {
	counts := make(map[string]int)
	for i := range d.samples {
		counts[d.samples[i].Label]++
	}
	return counts
}

func (d *Dataset) recompute() {
	labels := make([]string, 0)
	for i := range d.samples {
		if l := d.samples[i].Label; l != "" && !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}
	slices.Sort(labels)

	d.Metadata.Labels = labels
	d.Metadata.TotalPackets = len(d.samples)
}

type datasetFile struct {
	Metadata Metadata          `json:"metadata"`
	Data     []json.RawMessage `json:"data"`
}

// Decode reads a dataset document from r. Records that cannot be decoded as samples are
// skipped and counted in Dataset.Rejected; a document that is not a dataset at all is an
// error. The label set and packet count are recomputed from the decoded samples.
func Decode(r io.Reader) (*Dataset, error) {
	var f datasetFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}

	d := &Dataset{
		Metadata: f.Metadata,
		samples:  make([]Sample, 0, len(f.Data)),
	}
	for _, raw := range f.Data {
		var s Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			d.Rejected++
			continue
		}
		d.samples = append(d.samples, s)
	}
	d.recompute()

	return d, nil
}

// LoadDataset reads a dataset file from path.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset file: %w", err)
	}
	defer f.Close()

	return Decode(bufio.NewReader(f))
}

// Encode writes the dataset document to w as indented JSON.
func (d *Dataset) Encode(w io.Writer) error {
	data := make([]json.RawMessage, 0, len(d.samples))
	for i := range d.samples {
		b, err := json.Marshal(d.samples[i])
		if err != nil {
			return fmt.Errorf("encoding sample %d: %w", i, err)
		}
		data = append(data, b)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(datasetFile{Metadata: d.Metadata, Data: data}); err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	return nil
}

// Save writes the dataset to path, replacing any existing file.
func (d *Dataset) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dataset file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing dataset file: %w", closeErr))
		}
	}()

	w := bufio.NewWriter(f)
	if err = d.Encode(w); err != nil {
		return err
	}
	return w.Flush()
}
