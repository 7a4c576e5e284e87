package csi

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// receivedAtLayouts lists the accepted layouts of the collector receive time. Datasets
// written by older tooling carry a naive ISO-8601 timestamp without a zone designator.
var receivedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Sample is a single radio-frame observation reported by the device: one amplitude and
// one phase value per subcarrier, plus link metadata. Amplitude and Phase always have
// the same length.
type Sample struct {
	Timestamp       int64      // Device clock in milliseconds, monotonic but not unique
	RSSI            int        // Received signal strength in dBm
	SubcarrierCount int        // Number of frequency bins reported by the radio
	Amplitude       []float64  // Per-subcarrier amplitude, non-negative
	Phase           []float64  // Per-subcarrier phase in radians, within [-π, π]
	Label           string     // Activity class; empty when the sample is unlabelled
	Description     string     // Free-text annotation, carried through but never interpreted
	ReceivedAt      *time.Time // UTC time the collector accepted the record, if known
}

// SampleOption configures optional Sample fields in NewSample.
type SampleOption func(*Sample)

// WithLabel sets the activity class of the sample.
func WithLabel(label string) SampleOption {
	return func(s *Sample) {
		s.Label = label
	}
}

// WithDescription sets the free-text annotation of the sample.
func WithDescription(description string) SampleOption {
	return func(s *Sample) {
		s.Description = description
	}
}

// WithSubcarrierCount overrides the reported subcarrier count, which otherwise
// defaults to the amplitude length.
func WithSubcarrierCount(n int) SampleOption {
	return func(s *Sample) {
		s.SubcarrierCount = n
	}
}

// WithReceivedAt stamps the collector receive time.
func WithReceivedAt(t time.Time) SampleOption {
	return func(s *Sample) {
		utc := t.UTC()
		s.ReceivedAt = &utc
	}
}

// NewSample validates and builds a Sample. Amplitude must not be empty; a nil or empty
// phase is replaced by an all-zero vector of the amplitude length, any other phase must
// match the amplitude length. The input slices are copied.
func NewSample(timestamp int64, rssi int, amplitude, phase []float64, opts ...SampleOption) (Sample, error) {
	if len(amplitude) == 0 {
		return Sample{}, fmt.Errorf("%w: empty amplitude vector", ErrMalformedInput)
	}

	s := Sample{
		Timestamp:       timestamp,
		RSSI:            rssi,
		SubcarrierCount: len(amplitude),
		Amplitude:       append([]float64(nil), amplitude...),
	}

	switch {
	case len(phase) == 0:
		s.Phase = make([]float64, len(amplitude))
	case len(phase) != len(amplitude):
		return Sample{}, fmt.Errorf("%w: phase length %d does not match amplitude length %d",
			ErrMalformedInput, len(phase), len(amplitude))
	default:
		s.Phase = append([]float64(nil), phase...)
	}

	for _, opt := range opts {
		opt(&s)
	}

	return s, nil
}

// Validate checks the invariants enforced by NewSample on an existing value.
func (s *Sample) Validate() error {
	if len(s.Amplitude) == 0 {
		return fmt.Errorf("%w: empty amplitude vector", ErrMalformedInput)
	}
	if len(s.Phase) != 0 && len(s.Phase) != len(s.Amplitude) {
		return fmt.Errorf("%w: phase length %d does not match amplitude length %d",
			ErrMalformedInput, len(s.Phase), len(s.Amplitude))
	}
	return nil
}

// HasLabel reports whether the sample carries an activity class.
func (s *Sample) HasLabel() bool {
	return s.Label != ""
}

// Clone returns a deep copy of the sample.
func (s *Sample) Clone() Sample {
	c := *s
	c.Amplitude = append([]float64(nil), s.Amplitude...)
	c.Phase = append([]float64(nil), s.Phase...)
	if s.ReceivedAt != nil {
		t := *s.ReceivedAt
		c.ReceivedAt = &t
	}
	return c
}

// wireSample is the on-the-wire form of a Sample. Pointers distinguish absent keys
// from zero values. RSSI is decoded as a float since some producers emit fractional dBm.
type wireSample struct {
	TS           *int64    `json:"ts"`
	RSSI         *float64  `json:"rssi,omitempty"`
	Num          *int      `json:"num,omitempty"`
	Amp          []float64 `json:"amp"`
	Phase        []float64 `json:"phase,omitempty"`
	Label        string    `json:"label,omitempty"`
	Description  string    `json:"description,omitempty"`
	TimestampUTC string    `json:"timestamp_utc,omitempty"`
}

// MarshalJSON encodes the sample using the device wire keys.
func (s Sample) MarshalJSON() ([]byte, error) {
	rssi := float64(s.RSSI)
	num := s.SubcarrierCount
	w := wireSample{
		TS:          &s.Timestamp,
		RSSI:        &rssi,
		Num:         &num,
		Amp:         s.Amplitude,
		Phase:       s.Phase,
		Label:       s.Label,
		Description: s.Description,
	}
	if w.Amp == nil {
		w.Amp = []float64{}
	}
	if s.ReceivedAt != nil {
		w.TimestampUTC = s.ReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a sample leniently: missing keys are left at their zero values
// so that batch consumers can count and drop unusable samples. Only a phase vector of a
// different length than the amplitude vector is rejected.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	decoded, err := w.toSample()
	if err != nil {
		return err
	}

	*s = decoded
	return nil
}

func (w *wireSample) toSample() (Sample, error) {
	s := Sample{
		Amplitude:   w.Amp,
		Phase:       w.Phase,
		Label:       w.Label,
		Description: w.Description,
	}
	if w.TS != nil {
		s.Timestamp = *w.TS
	}
	if w.RSSI != nil {
		s.RSSI = int(math.Round(*w.RSSI))
	}

	if w.Num != nil {
		s.SubcarrierCount = *w.Num
	} else {
		s.SubcarrierCount = len(w.Amp)
	}

	if len(s.Phase) == 0 {
		s.Phase = make([]float64, len(s.Amplitude))
	} else if len(s.Phase) != len(s.Amplitude) {
		return Sample{}, fmt.Errorf("%w: phase length %d does not match amplitude length %d",
			ErrMalformedInput, len(s.Phase), len(s.Amplitude))
	}

	if w.TimestampUTC != "" {
		for _, layout := range receivedAtLayouts {
			if t, err := time.Parse(layout, w.TimestampUTC); err == nil {
				utc := t.UTC()
				s.ReceivedAt = &utc
				break
			}
		}
	}

	return s, nil
}

// ParseRecord strictly decodes one device-link record. The line must be a JSON object
// carrying at least "ts" and a non-empty "amp"; anything else is ErrMalformedInput.
func ParseRecord(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Sample{}, fmt.Errorf("%w: not a JSON object", ErrMalformedInput)
	}

	var w wireSample
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if w.TS == nil {
		return Sample{}, fmt.Errorf("%w: missing ts", ErrMalformedInput)
	}
	if len(w.Amp) == 0 {
		return Sample{}, fmt.Errorf("%w: missing amp", ErrMalformedInput)
	}

	return w.toSample()
}
