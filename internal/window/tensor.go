package window

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/roman-kulish/wifi-csi/internal/preprocess"
)

// TensorMetadata describes the shape and label mapping of a tensor file.
type TensorMetadata struct {
	WindowSize        int            `json:"window_size"`
	Subcarriers       int            `json:"subcarriers"`
	FeatureDim        int            `json:"feature_dim"`
	NumWindows        int            `json:"num_windows"`
	NumClasses        int            `json:"num_classes"`
	LabelTableVersion string         `json:"label_table_version"`
	Labels            map[string]int `json:"labels"`
}

// Tensor is the document handed over to the model trainer.
type Tensor struct {
	Metadata TensorMetadata               `json:"metadata"`
	X        [][]preprocess.FeatureVector `json:"x"`
	Y        []int                        `json:"y"`
}

// NewTensor wraps w with its metadata. The label mapping is taken from table.
func NewTensor(w *Windows, table *LabelTable) *Tensor {
	return &Tensor{
		Metadata: TensorMetadata{
			WindowSize:        w.WindowSize,
			Subcarriers:       w.Subcarriers,
			FeatureDim:        w.FeatureDim(),
			NumWindows:        w.Len(),
			NumClasses:        w.NumClasses(),
			LabelTableVersion: table.Version(),
			Labels:            table.Labels(),
		},
		X: w.X,
		Y: w.Y,
	}
}

// Encode writes the tensor document to out as compact JSON.
func (t *Tensor) Encode(out io.Writer) error {
	if err := json.NewEncoder(out).Encode(t); err != nil {
		return fmt.Errorf("encoding tensor: %w", err)
	}
	return nil
}

// WriteTensor validates w and writes it to path. An empty build is refused with
// ErrNoUsableData so that no trainer input with zero examples is ever written.
func WriteTensor(path string, w *Windows, table *LabelTable) (err error) {
	if err = w.Validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating tensor file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	bw := bufio.NewWriter(f)
	if err = NewTensor(w, table).Encode(bw); err != nil {
		return err
	}
	return bw.Flush()
}
