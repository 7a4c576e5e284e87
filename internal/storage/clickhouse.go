package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/roman-kulish/wifi-csi/internal/features"
)

const (
	defaultClickHouseDatabase = "csi"
	defaultClickHouseUser     = "default"
	clickHouseDialTimeout     = 5 * time.Second
	clickHouseBatchSize       = 10_000
)

const createFeaturesTableSQL = `
CREATE TABLE IF NOT EXISTS sample_features
(
    dataset_id      String,
    exported_at     DateTime64(3),
    label           LowCardinality(String),
    device_ts       Int64,
    amp_mean        Float64,
    amp_std         Float64,
    amp_var         Float64,
    amp_min         Float64,
    amp_max         Float64,
    amp_range       Float64,
    amp_median      Float64,
    amp_q25         Float64,
    amp_q75         Float64,
    phase_mean      Float64,
    phase_std       Float64,
    phase_var       Float64,
    rssi            Int32,
    num_subcarriers Int32
) ENGINE = MergeTree()
ORDER BY (dataset_id, label, device_ts)`

const insertFeaturesSQL = `INSERT INTO sample_features`

// ClickHouseConfig holds the connection settings of the feature sink.
type ClickHouseConfig struct {
	Addr     string // host:port of the native protocol endpoint
	Database string
	Username string
	Password string
}

// WithClickHouseLogger sets the logger for the ClickHouse sink.
func WithClickHouseLogger(logger *slog.Logger) func(s *ClickHouseSink) {
	return func(s *ClickHouseSink) {
		s.logger = logger
	}
}

// ClickHouseSink pushes per-sample feature rows into ClickHouse for dashboards.
type ClickHouseSink struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewClickHouseSink connects to ClickHouse, verifies the connection and creates the
// feature table if needed.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig, options ...func(s *ClickHouseSink)) (*ClickHouseSink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("clickhouse address is required")
	}
	if cfg.Database == "" {
		cfg.Database = defaultClickHouseDatabase
	}
	if cfg.Username == "" {
		cfg.Username = defaultClickHouseUser
	}

	s := ClickHouseSink{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&s)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: clickHouseDialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to clickhouse: %w", err)
	}

	if err = conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	if err = conn.Exec(ctx, createFeaturesTableSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("creating feature table: %w", err)
	}

	s.conn = conn
	s.logger.Info("connected to clickhouse", slog.String("addr", cfg.Addr), slog.String("database", cfg.Database))

	return &s, nil
}

// WriteFeatures inserts feature records tagged with datasetID and returns the number of
// rows sent.
func (s *ClickHouseSink) WriteFeatures(ctx context.Context, datasetID string, records []features.Record) (int, error) {
	exportedAt := time.Now().UTC()
	sent := 0

	for chunk := range slices.Chunk(records, clickHouseBatchSize) {
		batch, err := s.conn.PrepareBatch(ctx, insertFeaturesSQL)
		if err != nil {
			return sent, fmt.Errorf("preparing batch: %w", err)
		}

		for _, r := range chunk {
			err = batch.Append(
				datasetID,
				exportedAt,
				r.Label,
				r.Timestamp,
				r.AmpMean,
				r.AmpStd,
				r.AmpVar,
				r.AmpMin,
				r.AmpMax,
				r.AmpRange,
				r.AmpMedian,
				r.AmpQ25,
				r.AmpQ75,
				r.PhaseMean,
				r.PhaseStd,
				r.PhaseVar,
				int32(r.RSSI),
				int32(r.NumSubcarriers),
			)
			if err != nil {
				_ = batch.Abort()
				return sent, fmt.Errorf("appending feature row: %w", err)
			}
		}

		if err = batch.Send(); err != nil {
			return sent, fmt.Errorf("sending batch: %w", err)
		}
		sent += len(chunk)
		s.logger.Debug("feature batch sent", slog.Int("rows", len(chunk)))
	}

	return sent, nil
}

// Close closes the ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
