package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/rtlsdr-scanner/cmd/scanner/app"
	"github.com/roman-kulish/rtlsdr-scanner/internal/scan"
	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
	"github.com/roman-kulish/rtlsdr-scanner/internal/storage"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(&logLevel, logger).ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}

func newRootCommand(logLevel *slog.LevelVar, logger *slog.Logger) *cobra.Command {
	var configPath string

	root := cobra.Command{
		Use:           "scanner",
		Short:         "Wideband spectrum scanner for RTL-SDR dongles and rtl_tcp servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	loadConfig := func() (*app.Config, error) {
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration file '%s': %w", configPath, err)
		}
		logLevel.Set(config.Settings.LogLevel)
		return config, nil
	}

	root.AddCommand(
		newScanCommand(loadConfig, logger),
		newCalibrateCommand(loadConfig, logger),
		newSessionsCommand(),
	)

	return &root
}

func newScanCommand(loadConfig func() (*app.Config, error), logger *slog.Logger) *cobra.Command {
	var start, stop, mode string
	var sweeps int

	cmd := cobra.Command{
		Use:   "scan",
		Short: "Sweep the configured frequency range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("start") {
				if config.Scan.Start, err = sdr.ParseFrequency(start); err != nil {
					return err
				}
			}
			if flags.Changed("stop") {
				if config.Scan.Stop, err = sdr.ParseFrequency(stop); err != nil {
					return err
				}
			}
			if flags.Changed("mode") {
				config.Scan.Mode = scan.Mode(mode)
			}
			if flags.Changed("sweeps") {
				config.Scan.Sweeps = sweeps
			}

			return app.Run(cmd.Context(), config, logger)
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Start frequency, e.g. 87.5MHz")
	cmd.Flags().StringVar(&stop, "stop", "", "Stop frequency, e.g. 108MHz")
	cmd.Flags().StringVar(&mode, "mode", "", "Scan mode: single, continuous or max-hold")
	cmd.Flags().IntVar(&sweeps, "sweeps", 0, "Number of sweeps, 0 is unbounded in continuous mode")

	return &cmd
}

func newCalibrateCommand(loadConfig func() (*app.Config, error), logger *slog.Logger) *cobra.Command {
	var reference string

	cmd := cobra.Command{
		Use:   "calibrate",
		Short: "Measure the tuner frequency error against a known signal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			freq, err := sdr.ParseFrequency(reference)
			if err != nil {
				return err
			}

			result, err := app.Calibrate(cmd.Context(), config, freq, logger)
			if err != nil {
				return fmt.Errorf("calibration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "reference: %s\npeak:      %s (%0.1f dB)\nppm:       %0.2f\n",
				humanize.SIWithDigits(result.Reference*1e6, 6, "Hz"),
				humanize.SIWithDigits(result.Peak*1e6, 6, "Hz"),
				result.Power,
				result.PPM)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Frequency of a known signal, e.g. 100.5MHz")
	_ = cmd.MarkFlagRequired("reference")

	return &cmd
}

func newSessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <database>",
		Short: "List the scan sessions recorded in a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := storage.NewSqliteStore(args[0])
			defer store.Close()

			sessions, err := store.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range sessions {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s (%s)\t%s\n",
					s.ID,
					s.RunID,
					s.StartTime.Local().Format(time.DateTime),
					s.DeviceID,
					s.DeviceType,
					humanize.Time(s.StartTime))
			}
			return nil
		},
	}
}
