package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/rtlsdr-scanner/internal/calibration"
	"github.com/roman-kulish/rtlsdr-scanner/internal/publish"
	"github.com/roman-kulish/rtlsdr-scanner/internal/scan"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr/rtl"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr/rtltcp"
	"github.com/roman-kulish/rtlsdr-scanner/internal/server"
	"github.com/roman-kulish/rtlsdr-scanner/internal/storage"
	"github.com/roman-kulish/rtlsdr-scanner/internal/telemetry"
)

const (
	storageDir = "data"
)

// Run scans with the configured device until the scan ends or ctx is
// cancelled. Storage, telemetry, MQTT and the HTTP server are started as
// configured.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return err
	}

	scanner, err := scan.New(config.Scan, config.Device, NewOpener(&config.Device, logger), scan.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}

	// services run until the scan is over
	svcCtx, stop := context.WithCancel(ctx)
	defer stop()
	services, svcCtx := errgroup.WithContext(svcCtx)

	var options []func(*Orchestrator)

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error(fmt.Sprintf("error closing storage: %s", err.Error()))
			}
		}()
		options = append(options, WithStore(store))
	}

	switch config.Telemetry.Type {
	case TelemetryStatic:
		options = append(options, WithTelemetry(telemetry.NewStatic(config.Telemetry.Static)))

	case TelemetryGPSD:
		gpsd := telemetry.NewGPSD(config.Telemetry.GPSD, telemetry.WithGPSDLogger(logger))
		services.Go(func() error { return gpsd.Run(svcCtx) })
		options = append(options, WithTelemetry(gpsd))
	}

	if config.MQTT.Enabled {
		publisher, err := publish.New(config.MQTT, config.Device.Name, publish.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("creating MQTT publisher: %w", err)
		}
		defer publisher.Close()
		options = append(options, WithPublisher(publisher))
	}

	if config.Server.Enabled {
		srv := server.New(config.Server, scanner, server.WithLogger(logger))
		services.Go(func() error { return srv.Run(svcCtx) })
		options = append(options, WithBroadcaster(srv))
	}

	err = NewOrchestrator(scanner, logger, options...).Run(ctx)

	stop()
	if svcErr := services.Wait(); svcErr != nil && !errors.Is(svcErr, context.Canceled) {
		err = errors.Join(err, svcErr)
	}

	return err
}

// Calibrate measures the tuner error against a signal of known frequency.
func Calibrate(ctx context.Context, config *Config, reference sdr.Frequency, logger *slog.Logger) (calibration.Result, error) {
	if err := config.Device.Validate(); err != nil {
		return calibration.Result{}, err
	}

	events := make(chan scan.Event, eventBuffer)
	go func() {
		for e := range events {
			if e.Type == scan.EventSweepProgressed {
				logger.Debug("calibrating", slog.Int("remaining", e.Steps))
			}
		}
	}()
	defer close(events)

	return scan.Calibrate(ctx, config.Scan, config.Device, NewOpener(&config.Device, logger), reference, events,
		scan.WithLogger(logger))
}

// NewOpener returns the opener of the configured transport.
func NewOpener(config *sdr.DeviceConfig, logger *slog.Logger) sdr.Opener {
	if config.IsLocal() {
		return func(context.Context) (sdr.Tuner, error) {
			device, err := rtl.New(config, rtl.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return device, nil
		}
	}

	return func(ctx context.Context) (sdr.Tuner, error) {
		client, err := rtltcp.Dial(ctx, config.Address(), rtltcp.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = storageDir
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("scan_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
