package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/features"
	"github.com/roman-kulish/wifi-csi/internal/link"
	"github.com/roman-kulish/wifi-csi/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	src, err := createSource(config, logger)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	options := []func(*Orchestrator){
		WithLogger(logger),
		WithMaxBatchSize(config.Storage.MaxBatchSize),
		WithMaxPackets(config.Session.MaxPackets),
	}
	if config.Buffer.Enabled {
		rb, err := link.NewReorderBuffer(config.Buffer.Capacity, config.Buffer.FlushCount, config.Buffer.ResetGap)
		if err != nil {
			return fmt.Errorf("failed to create reorder buffer: %w", err)
		}
		options = append(options, WithReorderBuffer(rb))
	}

	if d := time.Duration(config.Session.Duration); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	logger.Info("collecting CSI samples",
		slog.String("source", src.Name()),
		slog.String("label", config.Session.Label),
		slog.String("duration", config.Session.Duration.String()),
		slog.Int("maxPackets", config.Session.MaxPackets),
	)

	info := storage.SessionInfo{
		Source:      src.Name(),
		Label:       config.Session.Label,
		Description: config.Session.Description,
	}

	res, err := NewOrchestrator(store, options...).Run(ctx, src, info, redacted(config))
	if err != nil && res == nil {
		return err
	}
	if err != nil {
		logger.Warn("collection ended with error, saving collected samples", slog.String("error", err.Error()))
	}

	reportResult(logger, res)

	if len(res.Samples) == 0 {
		logger.Warn("no samples collected, dataset file left unchanged")
		return nil
	}

	ds, err := writeDataset(config.Storage.Dataset, config.Storage.Append, res.Samples)
	if err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	size := ""
	if stat, statErr := os.Stat(config.Storage.Dataset); statErr == nil {
		size = humanize.Bytes(uint64(stat.Size()))
	}
	logger.Info("dataset saved",
		slog.String("path", config.Storage.Dataset),
		slog.String("size", size),
		slog.String("totalPackets", humanize.Comma(int64(ds.Metadata.TotalPackets))),
		slog.Any("labels", ds.Metadata.Labels),
	)

	if config.Storage.ClickHouse.Addr != "" {
		if err = pushFeatures(ctx, &config.Storage.ClickHouse, ds.Metadata.DatasetID, res.Samples, logger); err != nil {
			return fmt.Errorf("failed to push features: %w", err)
		}
	}

	return nil
}

func reportResult(logger *slog.Logger, res *Result) {
	labels := make([]string, 0, len(res.PerLabel))
	for label := range res.PerLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	attrs := make([]any, 0, len(labels))
	for _, label := range labels {
		name := label
		if name == "" {
			name = features.UnknownLabel
		}
		attrs = append(attrs, slog.Int(name, res.PerLabel[label]))
	}

	logger.Info("collection finished",
		slog.Int64("session", res.SessionID),
		slog.String("packets", humanize.Comma(int64(len(res.Samples)))),
		slog.String("rate", humanize.FormatFloat("#,###.##", res.Rate())+" pkt/s"),
		slog.String("elapsed", res.Elapsed.Round(time.Millisecond).String()),
		slog.Group("perLabel", attrs...),
		slog.Group("lines",
			slog.Uint64("accepted", res.Counters.Accepted),
			slog.Uint64("skipped", res.Counters.Skipped),
			slog.Uint64("malformed", res.Counters.Malformed),
		),
	)
}

// writeDataset saves samples to path. In append mode an existing dataset is extended and
// its label set recomputed; otherwise the file is replaced.
func writeDataset(path string, appendMode bool, samples []csi.Sample) (*csi.Dataset, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}

	var ds *csi.Dataset
	if appendMode {
		existing, err := csi.LoadDataset(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("loading existing dataset: %w", err)
		default:
			ds = existing.Append(samples)
		}
	}
	if ds == nil {
		ds = csi.NewDataset(csi.Metadata{CollectedAt: timeNow().UTC().Format(time.RFC3339)}, samples)
	}

	if err := ds.Save(path); err != nil {
		return nil, err
	}
	return ds, nil
}

func pushFeatures(ctx context.Context, config *ClickHouseConfig, datasetID string, samples []csi.Sample, logger *slog.Logger) error {
	sink, err := storage.NewClickHouseSink(context.WithoutCancel(ctx), storage.ClickHouseConfig{
		Addr:     config.Addr,
		Database: config.Database,
		Username: config.Username,
		Password: config.Password,
	}, storage.WithClickHouseLogger(logger))
	if err != nil {
		return err
	}
	defer sink.Close()

	n, err := sink.WriteFeatures(context.WithoutCancel(ctx), datasetID, featureRecords(samples, logger))
	if err != nil {
		return err
	}
	logger.Info("features pushed to clickhouse", slog.String("rows", humanize.Comma(int64(n))))
	return nil
}

func featureRecords(samples []csi.Sample, logger *slog.Logger) []features.Record {
	groups, dropped := features.AggregateByLabel(samples)
	if dropped > 0 {
		logger.Warn("samples without amplitude skipped", slog.Int("dropped", dropped))
	}

	var records []features.Record
	for _, g := range groups {
		records = append(records, g.Records...)
	}
	return records
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := filepath.Dir(config.Database)
	stat, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	case !stat.IsDir():
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(config.Database), nil
}

// redacted returns a copy of the configuration safe to persist with the session.
func redacted(config *Config) Config {
	c := *config
	if c.Source.MQTT.Password != "" {
		c.Source.MQTT.Password = "***"
	}
	if c.Storage.ClickHouse.Password != "" {
		c.Storage.ClickHouse.Password = "***"
	}
	return c
}
