package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	data := NewWaterfallData(NewSmoothBounds(0.3))

	var err error
	if config.DatasetPath != "" {
		err = readDataset(config, data, logger)
	} else {
		err = readSession(ctx, config, data, logger)
	}
	if err != nil {
		return err
	}
	if data.Empty() {
		return errors.New("no samples matched, nothing to render")
	}

	bounds := data.BoundsTracker.Current()
	if config.MinAmplitude != nil {
		bounds.Min = *config.MinAmplitude
	}
	if config.MaxAmplitude != nil {
		bounds.Max = *config.MaxAmplitude
	}

	logger.Info("finished reading samples",
		slog.Group("stats",
			slog.String("samples", humanize.Comma(int64(data.Height))),
			slog.Int("subcarriers", data.Width),
			slog.Int64("minTimestamp", data.TimestampStart),
			slog.Int64("maxTimestamp", data.TimestampEnd),
			slog.String("minAmplitude", fmt.Sprintf("%0.2f", data.AmplitudeMin)),
			slog.String("maxAmplitude", fmt.Sprintf("%0.2f", data.AmplitudeMax)),
			slog.Int("labelSpans", len(data.Labels)),
		))

	renderer, err := NewWaterfallRenderer(RenderConfig{
		CellWidth:   config.CellWidth,
		RowHeight:   config.RowHeight,
		ColorTheme:  config.Theme,
		Bounds:      &bounds,
		Annotations: !config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating waterfall renderer: %w", err)
	}

	img, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	return writeImage(config.OutputFile, config.Format, img)
}

func readDataset(config *Config, data *WaterfallData, logger *slog.Logger) error {
	ds, err := csi.LoadDataset(config.DatasetPath)
	if err != nil {
		return err
	}
	if ds.Rejected > 0 {
		logger.Warn("dataset contains malformed records", slog.Int("rejected", ds.Rejected))
	}

	for _, s := range ds.Samples() {
		if config.Label != "" && s.Label != config.Label {
			continue
		}
		data.Update(&s)
	}
	return nil
}

func readSession(ctx context.Context, config *Config, data *WaterfallData, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	var opts []storage.ReaderOption
	if config.Label != "" {
		opts = append(opts, storage.WithLabel(config.Label))
		logger.Info("iterator configuration", slog.String("label", config.Label))
	}

	iter, err := store.ReadSamples(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	if config.Verbose {
		sess := iter.Session()
		logger.Info("reading session",
			slog.Int64("id", sess.ID),
			slog.String("source", sess.Source),
			slog.Time("started", sess.StartTime),
			slog.Int("samples", sess.NumSamples),
		)
	}

	for iter.Next(ctx) {
		data.Update(iter.Current())
	}
	return iter.Error()
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(out, img)
	}
}
