package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/features"
	"github.com/roman-kulish/wifi-csi/internal/storage"
)

// Run analyses a dataset or session and writes the report to out.
func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	ds, source, err := loadDataset(ctx, config)
	if err != nil {
		return err
	}
	if ds.Rejected > 0 {
		logger.Warn("dataset contains malformed records", slog.Int("rejected", ds.Rejected))
	}

	samples := ds.Samples()
	if config.Label != "" && config.DBPath == "" {
		samples = filterLabel(samples, config.Label)
	}
	if len(samples) == 0 {
		return errors.New("no samples to analyse")
	}

	groups, dropped := features.AggregateByLabel(samples)
	if dropped > 0 {
		logger.Warn("samples without amplitude skipped", slog.Int("dropped", dropped))
	}

	logger.Info("analysing samples",
		slog.String("source", source),
		slog.String("samples", humanize.Comma(int64(len(samples)))),
		slog.Int("labels", len(groups)),
		slog.Bool("synthetic", ds.Metadata.Synthetic),
	)

	report, err := features.AnalyzeTemporal(groups, config.WindowSize)
	if err != nil {
		return fmt.Errorf("temporal analysis: %w", err)
	}

	if err = writeReport(out, source, features.SummarizeByLabel(groups), report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if config.ExportPath != "" {
		if err = exportFeatures(config.ExportPath, source, groups); err != nil {
			return fmt.Errorf("exporting features: %w", err)
		}
		logger.Info("features exported", slog.String("path", config.ExportPath))
	}

	if config.ClickHouseAddr != "" {
		n, err := pushFeatures(ctx, config, ds.Metadata.DatasetID, groups, logger)
		if err != nil {
			return fmt.Errorf("pushing features: %w", err)
		}
		logger.Info("features pushed to clickhouse", slog.String("rows", humanize.Comma(int64(n))))
	}

	return nil
}

func loadDataset(ctx context.Context, config *Config) (*csi.Dataset, string, error) {
	if config.DatasetPath != "" {
		ds, err := csi.LoadDataset(config.DatasetPath)
		if err != nil {
			return nil, "", err
		}
		return ds, config.DatasetPath, nil
	}

	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return nil, "", fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	var opts []storage.ReaderOption
	if config.Label != "" {
		opts = append(opts, storage.WithLabel(config.Label))
	}

	ds, err := store.LoadDataset(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, "", err
	}
	return ds, fmt.Sprintf("%s#%d", config.DBPath, config.SessionID), nil
}

func filterLabel(samples []csi.Sample, label string) []csi.Sample {
	out := samples[:0]
	for _, s := range samples {
		if s.Label == label {
			out = append(out, s)
		}
	}
	return out
}

func writeReport(out io.Writer, source string, summaries []features.LabelSummary, report *features.TemporalReport) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "CSI data analysis: %s\n\n", source)
	fmt.Fprintf(&sb, "%-12s %8s %18s %18s %18s %10s\n", "label", "samples", "amp_mean", "amp_std", "phase_std", "rssi")
	for _, s := range summaries {
		fmt.Fprintf(&sb, "%-12s %8s %18s %18s %18s %10.1f\n",
			s.Label,
			humanize.Comma(int64(s.Count)),
			meanStd(s.AmpMean),
			meanStd(s.AmpStd),
			meanStd(s.PhaseStd),
			s.RSSI,
		)
	}

	fmt.Fprintf(&sb, "\nTemporal stability (window %d, threshold %.1f)\n", report.WindowSize, features.StabilityThreshold)
	for _, l := range report.Labels {
		verdict := "unstable"
		if l.Stable {
			verdict = "stable"
		}
		fmt.Fprintf(&sb, "%-12s amp_std variation %8.3f  phase_std variation %8.3f  %s\n",
			l.Label, l.MeanAmpStdVar, l.MeanPhaseStdVar, verdict)
	}
	for _, g := range report.Skipped {
		fmt.Fprintf(&sb, "%-12s skipped: %d samples, fewer than the window\n", g.Label, g.Samples)
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func meanStd(v features.MeanStd) string {
	return fmt.Sprintf("%.3f ± %.3f", v.Mean, v.Std)
}

func exportFeatures(path, source string, groups []features.Group) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	return features.WriteExport(path, features.NewExport(source, groups))
}

func pushFeatures(ctx context.Context, config *Config, datasetID string, groups []features.Group, logger *slog.Logger) (int, error) {
	sink, err := storage.NewClickHouseSink(ctx, storage.ClickHouseConfig{
		Addr:     config.ClickHouseAddr,
		Database: config.ClickHouseDatabase,
		Username: config.ClickHouseUsername,
		Password: config.ClickHousePassword,
	}, storage.WithClickHouseLogger(logger))
	if err != nil {
		return 0, err
	}
	defer sink.Close()

	var records []features.Record
	for _, g := range groups {
		records = append(records, g.Records...)
	}
	return sink.WriteFeatures(ctx, datasetID, records)
}
