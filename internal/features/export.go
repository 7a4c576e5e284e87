package features

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

// ExportMetadata describes a feature export file.
type ExportMetadata struct {
	Source     string   `json:"source,omitempty"`
	NumSamples int      `json:"num_samples"`
	Features   []string `json:"features"`
}

// Export is the feature export document: one flattened row of statistics per sample.
type Export struct {
	Metadata ExportMetadata `json:"metadata"`
	Data     []Record       `json:"data"`
}

// NewExport flattens groups into an export document. Rows produced by AggregateByLabel
// are restored to the order of the input samples.
func NewExport(source string, groups []Group) *Export {
	rows := make([]Record, 0)
	for _, g := range groups {
		rows = append(rows, g.Records...)
	}
	slices.SortStableFunc(rows, func(a, b Record) int {
		return a.seq - b.seq
	})

	names := make([]string, 0)
	if len(rows) > 0 {
		names = append(Names(), "label", "timestamp")
	}

	return &Export{
		Metadata: ExportMetadata{
			Source:     source,
			NumSamples: len(rows),
			Features:   names,
		},
		Data: rows,
	}
}

// Encode writes the export document to w.
func (e *Export) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encoding feature export: %w", err)
	}
	return nil
}

// WriteExport writes the export document to path.
func WriteExport(path string, e *Export) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating feature export file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	return e.Encode(f)
}
