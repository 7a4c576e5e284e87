package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/storage"
	"github.com/roman-kulish/wifi-csi/internal/synth"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	gen, err := synth.New(config.Subcarriers, config.Seed)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	logger.Info("generating synthetic CSI samples",
		slog.Int("samplesPerClass", config.SamplesPerClass),
		slog.Int("subcarriers", config.Subcarriers),
		slog.Uint64("seed", config.Seed),
		slog.Any("classes", synth.Classes()),
	)

	ds, err := gen.GenerateDataset(config.SamplesPerClass)
	if err != nil {
		return fmt.Errorf("generating dataset: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err = ds.Save(config.OutputFile); err != nil {
		return err
	}

	size := ""
	if stat, statErr := os.Stat(config.OutputFile); statErr == nil {
		size = humanize.Bytes(uint64(stat.Size()))
	}
	logger.Info("dataset saved",
		slog.String("path", config.OutputFile),
		slog.String("size", size),
		slog.String("datasetID", ds.Metadata.DatasetID),
		slog.String("totalPackets", humanize.Comma(int64(ds.Metadata.TotalPackets))),
		perLabelGroup(ds),
	)

	if config.DBPath != "" {
		id, err := storeSession(ctx, config, ds)
		if err != nil {
			return fmt.Errorf("storing session: %w", err)
		}
		logger.Info("session stored", slog.String("db", config.DBPath), slog.Int64("session", id))
	}

	return nil
}

func perLabelGroup(ds *csi.Dataset) slog.Attr {
	counts := ds.LabelCounts()

	attrs := make([]any, 0, len(counts))
	for _, label := range ds.Metadata.Labels {
		attrs = append(attrs, slog.Int(label, counts[label]))
	}
	return slog.Group("perLabel", attrs...)
}

func storeSession(ctx context.Context, config *Config, ds *csi.Dataset) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(config.DBPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating storage directory: %w", err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	id, err := store.CreateSession(ctx, storage.SessionInfo{
		Source:      storage.SyntheticSource,
		Description: ds.Metadata.Description,
	}, config)
	if err != nil {
		return 0, err
	}

	if err = store.StoreSamples(ctx, id, ds.Samples()); err != nil {
		return 0, err
	}
	return id, nil
}
