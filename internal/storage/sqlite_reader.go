package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

// ErrNoData indicates either that no data exists for the given parameters, or that all
// available data has been read from the sample reader.
var ErrNoData = errors.New("no data available")

// SampleReader provides an iterator-based interface for reading the samples of a session
// with optional label and timestamp filtering.
type SampleReader interface {
	// Session returns metadata about the collection session this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another sample to read,
	// false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sample in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *csi.Sample

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	// After Close is called, the reader should not be used.
	Close() error
}

// ReaderOption configures a SampleReader with specific filtering criteria.
type ReaderOption func(*SqliteSampleReader)

// WithLabel restricts the reader to samples recorded under label.
func WithLabel(label string) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.label = &label
	}
}

// WithMinTimestamp excludes samples with a device timestamp below ts.
func WithMinTimestamp(ts int64) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.minTS = &ts
	}
}

// WithMaxTimestamp excludes samples with a device timestamp above ts.
func WithMaxTimestamp(ts int64) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.maxTS = &ts
	}
}

// WithTimestampRange sets both timestamp filters.
// This is a convenience function equivalent to applying both WithMinTimestamp
// and WithMaxTimestamp.
func WithTimestampRange(minTS, maxTS int64) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.minTS = &minTS
		r.maxTS = &maxTS
	}
}

// SqliteSampleReader implements SampleReader for SQLite database backend.
type SqliteSampleReader struct {
	db *sql.DB

	sessionID int64
	session   *Session

	label *string // Optional label filter
	minTS *int64  // Optional lower bound of the device timestamp
	maxTS *int64  // Optional upper bound of the device timestamp

	current *csi.Sample
	rows    *sql.Rows
	err     error
}

func newSqliteSampleReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSampleReader, error) {
	sr := &SqliteSampleReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

func (sr *SqliteSampleReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "validating filters", fn: sr.initFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSampleReader) loadSession(ctx context.Context) (err error) {
	sr.session, err = querySession(ctx, sr.db, sr.sessionID)
	return
}

func (sr *SqliteSampleReader) initFilters(context.Context) error {
	if sr.minTS != nil && sr.maxTS != nil && *sr.minTS > *sr.maxTS {
		return fmt.Errorf("min timestamp %d is greater than max timestamp %d", *sr.minTS, *sr.maxTS)
	}
	return nil
}

func (sr *SqliteSampleReader) initQuery(ctx context.Context) (err error) {
	var sb strings.Builder
	sb.WriteString(selectSamplesSQL)
	args := []any{sr.sessionID}

	if sr.label != nil {
		sb.WriteString(" AND label = ?")
		args = append(args, *sr.label)
	}
	if sr.minTS != nil {
		sb.WriteString(" AND device_ts >= ?")
		args = append(args, *sr.minTS)
	}
	if sr.maxTS != nil {
		sb.WriteString(" AND device_ts <= ?")
		args = append(args, *sr.maxTS)
	}
	sb.WriteString(" ORDER BY id")

	if sr.rows, err = sr.db.QueryContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("querying samples: %w", err)
	}
	return nil
}

func (sr *SqliteSampleReader) scanSample() (*csi.Sample, error) {
	var row sampleRow
	err := sr.rows.Scan(
		&row.DeviceTS,
		&row.RSSI,
		&row.NumSubcarriers,
		&row.Amplitude,
		&row.Phase,
		&row.Label,
		&row.Description,
		&row.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning sample: %w", err)
	}

	s, err := row.toSample()
	if err != nil {
		return nil, fmt.Errorf("converting sample at ts %d: %w", row.DeviceTS, err)
	}
	return &s, nil
}

func (sr *SqliteSampleReader) Session() *Session {
	return sr.session
}

func (sr *SqliteSampleReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		sr.err = ctx.Err()
		return false
	default:
	}

	if !sr.rows.Next() {
		sr.current = nil
		sr.err = ErrNoData
		return false
	}

	sr.current, sr.err = sr.scanSample()
	return sr.err == nil
}

func (sr *SqliteSampleReader) Current() *csi.Sample {
	return sr.current
}

func (sr *SqliteSampleReader) Error() error {
	if sr.err != nil && !errors.Is(sr.err, ErrNoData) {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSampleReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.rows = nil
		return err
	}
	return nil
}
