package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toSampleRow(sessionID int64, s *csi.Sample) (*sampleRow, error) {
	amp, err := json.Marshal(s.Amplitude)
	if err != nil {
		return nil, fmt.Errorf("encoding amplitude: %w", err)
	}

	phase := s.Phase
	if len(phase) == 0 {
		phase = make([]float64, len(s.Amplitude))
	}
	ph, err := json.Marshal(phase)
	if err != nil {
		return nil, fmt.Errorf("encoding phase: %w", err)
	}

	num := s.SubcarrierCount
	if num == 0 {
		num = len(s.Amplitude)
	}

	row := sampleRow{
		SessionID:      sessionID,
		DeviceTS:       s.Timestamp,
		RSSI:           int64(s.RSSI),
		NumSubcarriers: int64(num),
		Amplitude:      string(amp),
		Phase:          string(ph),
		Label:          toNullString(s.Label),
		Description:    toNullString(s.Description),
	}
	if s.ReceivedAt != nil {
		row.ReceivedAt = sql.NullTime{Time: s.ReceivedAt.UTC(), Valid: true}
	}
	return &row, nil
}

func (r *sampleRow) toSample() (csi.Sample, error) {
	var amp, phase []float64
	if err := json.Unmarshal([]byte(r.Amplitude), &amp); err != nil {
		return csi.Sample{}, fmt.Errorf("decoding amplitude: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Phase), &phase); err != nil {
		return csi.Sample{}, fmt.Errorf("decoding phase: %w", err)
	}

	opts := []csi.SampleOption{csi.WithSubcarrierCount(int(r.NumSubcarriers))}
	if r.Label.Valid {
		opts = append(opts, csi.WithLabel(r.Label.String))
	}
	if r.Description.Valid {
		opts = append(opts, csi.WithDescription(r.Description.String))
	}
	if r.ReceivedAt.Valid {
		opts = append(opts, csi.WithReceivedAt(r.ReceivedAt.Time.UTC()))
	}

	return csi.NewSample(r.DeviceTS, int(r.RSSI), amp, phase, opts...)
}
