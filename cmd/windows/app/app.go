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
	"github.com/roman-kulish/wifi-csi/internal/window"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	samples, err := loadSamples(ctx, config, logger)
	if err != nil {
		return err
	}

	table := window.DefaultLabelTable()
	w, err := window.BuildWindows(samples, config.WindowSize, config.Subcarriers,
		window.WithLabelTable(table),
		window.WithUnknownLabelPolicy(config.Policy),
		window.WithWorkers(config.Workers),
		window.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("building windows: %w", err)
	}

	logDiagnostics(logger, &w.Diagnostics)

	if err = w.Validate(); err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err = window.WriteTensor(config.OutputFile, w, table); err != nil {
		return err
	}

	n, size, dim := w.Shape()
	fileSize := ""
	if stat, statErr := os.Stat(config.OutputFile); statErr == nil {
		fileSize = humanize.Bytes(uint64(stat.Size()))
	}
	logger.Info("tensor saved",
		slog.String("path", config.OutputFile),
		slog.String("size", fileSize),
		slog.String("shape", fmt.Sprintf("%d×%d×%d", n, size, dim)),
		slog.Int("classes", w.NumClasses()),
		slog.String("labelTable", w.TableVersion),
	)

	return nil
}

func loadSamples(ctx context.Context, config *Config, logger *slog.Logger) ([]csi.Sample, error) {
	var ds *csi.Dataset

	if config.DatasetPath != "" {
		var err error
		if ds, err = csi.LoadDataset(config.DatasetPath); err != nil {
			return nil, err
		}
		if ds.Rejected > 0 {
			logger.Warn("dataset contains malformed records", slog.Int("rejected", ds.Rejected))
		}
	} else {
		if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
			return nil, fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
		}

		store := storage.NewSqliteStore(config.DBPath)
		defer store.Close()

		var err error
		if ds, err = store.LoadDataset(ctx, config.SessionID); err != nil {
			return nil, err
		}
	}

	logger.Info("samples loaded",
		slog.String("samples", humanize.Comma(int64(ds.Len()))),
		slog.Any("labels", ds.Metadata.Labels),
		slog.Bool("synthetic", ds.Metadata.Synthetic),
	)
	return ds.Samples(), nil
}

func logDiagnostics(logger *slog.Logger, d *window.Diagnostics) {
	for _, g := range d.Groups {
		logger.Debug("label group",
			slog.String("label", g.Label),
			slog.Int("classID", g.ClassID),
			slog.Int("samples", g.Samples),
			slog.Int("windows", g.Windows),
			slog.Bool("known", g.Known),
		)
	}

	logger.Info("windowing finished",
		slog.Group("samples",
			slog.Int("total", d.TotalSamples),
			slog.Int("noLabel", d.DroppedNoLabel),
			slog.Int("noAmplitude", d.DroppedNoAmplitude),
			slog.Int("unknownSkipped", d.SkippedUnknown),
		),
		slog.Any("shortGroups", d.ShortGroups),
		slog.Any("unknownLabels", d.UnknownLabels),
	)
}
