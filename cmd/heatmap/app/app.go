package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/rtlsdr-scanner/internal/storage"
)

const maxImageWidth = 16384

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	spec, err := readSpectrum(ctx, store, config, logger)
	if err != nil {
		return err
	}

	renderer := NewSpectrumRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		MinPower:      config.MinPower,
		MaxPower:      config.MaxPower,
		NoAnnotations: config.NoAnnotations,
	})

	bounds := renderer.Bounds(spec)
	logger.Info("rendering spectrum",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", spec.Width),
			slog.Int("height", spec.Height),
			slog.String("minPower", fmt.Sprintf("%0.2fdB", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.2fdB", bounds.Max)),
		))

	img, err := renderer.Render(spec)
	if err != nil {
		return fmt.Errorf("rendering spectrum: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	if err = Encode(out, img, config.Format); err != nil {
		_ = out.Close()
		return fmt.Errorf("encoding image: %w", err)
	}
	return out.Close()
}

func readSpectrum(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*SpectrumData, error) {
	var opts []storage.ReaderOption
	var filters []any

	switch {
	case config.MinFrequency != nil && config.MaxFrequency != nil:
		opts = append(opts, storage.WithFreqRange(*config.MinFrequency, *config.MaxFrequency))
	case config.MinFrequency != nil:
		opts = append(opts, storage.WithMinFreq(*config.MinFrequency))
	case config.MaxFrequency != nil:
		opts = append(opts, storage.WithMaxFreq(*config.MaxFrequency))
	}

	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(*config.MinTimestamp, *config.MaxTimestamp))
	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(*config.MinTimestamp))
	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(*config.MaxTimestamp))
	}

	reader, err := store.ReadSweeps(ctx, config.SessionID, opts...)
	if err != nil {
		if errors.Is(err, storage.ErrNoData) {
			return nil, fmt.Errorf("session %d has no sweeps: %w", config.SessionID, err)
		}
		return nil, err
	}
	defer reader.Close()

	minFreq, maxFreq := reader.Extent()
	startTime, endTime := reader.TimeRange()
	filters = append(filters,
		slog.String("minFreq", formatFrequency(minFreq)),
		slog.String("maxFreq", formatFrequency(maxFreq)),
		slog.String("minTimestamp", startTime.In(config.TimeZone).Format(time.DateTime)),
		slog.String("maxTimestamp", endTime.In(config.TimeZone).Format(time.DateTime)),
		slog.Int("sweeps", reader.Count()))

	logger.Info("iterator configuration", filters...)

	var spec *SpectrumData
	for reader.Next(ctx) {
		record := reader.Current()
		if spec == nil {
			spec = NewSpectrumData(imageWidth(config.Width, record, minFreq, maxFreq), minFreq, maxFreq)
		}
		spec.Add(record)

		if config.Verbose && spec.Height%100 == 0 {
			logger.Debug("reading sweeps", slog.Int("read", spec.Height))
		}
	}
	if err = reader.Error(); err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, fmt.Errorf("no sweeps match the filters: %w", storage.ErrNoData)
	}

	stats := []any{
		slog.String("minTimestamp", spec.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
		slog.String("maxTimestamp", spec.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
		slog.Int("sweeps", spec.Height),
		slog.Int("located", spec.Locations),
	}
	if peak, ok := spec.Peak(); ok {
		stats = append(stats,
			slog.String("peak", formatFrequency(peak.Freq)),
			slog.String("peakPower", fmt.Sprintf("%0.2fdB", peak.Power)))
	}
	logger.Info("finished reading sweeps", slog.Group("stats", stats...))

	return spec, nil
}

// imageWidth returns the configured width, or the number of bins of the
// sweep within the extent.
func imageWidth(width int, record *storage.SweepRecord, minFreq, maxFreq float64) int {
	if width > 0 {
		return width
	}

	for _, b := range record.Spectrum.Bins {
		if b.Freq >= minFreq && b.Freq <= maxFreq {
			width++
		}
	}
	return max(1, min(width, maxImageWidth))
}
