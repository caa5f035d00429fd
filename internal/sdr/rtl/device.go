package rtl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
)

const (
	Runtime = "rtl_sdr"

	// startupTimeout covers device enumeration and tuner initialisation on
	// top of the capture duration.
	startupTimeout = 10 * time.Second
)

// tuner names as printed by librtlsdr on device open
var tunerBanners = []struct {
	banner string
	tuner  sdr.TunerType
}{
	{"E4000", sdr.TunerE4000},
	{"FC0012", sdr.TunerFC0012},
	{"FC0013", sdr.TunerFC0013},
	{"FC2580", sdr.TunerFC2580},
	{"R820T", sdr.TunerR820T},
	{"R828D", sdr.TunerR828D},
}

// CommandFunc builds the command used to run the capture tool.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithCommand replaces exec.CommandContext, mostly for tests.
func WithCommand(fn CommandFunc) func(d *Device) {
	return func(d *Device) {
		d.command = fn
	}
}

// WithBinPath skips the runtime lookup.
func WithBinPath(binPath string) func(d *Device) {
	return func(d *Device) {
		d.binPath = binPath
	}
}

// Device is a Tuner for a locally attached dongle. Every read runs the
// `rtl_sdr` tool for exactly the requested number of samples and collects its
// raw IQ output from stdout.
type Device struct {
	binPath string
	device  string
	command CommandFunc
	logger  *slog.Logger

	sampleRate float64
	frequency  float64
	gain       *float64

	mu    sync.Mutex
	tuner sdr.TunerType
}

// New creates a local device handle for the dongle selected in config.
func New(config *sdr.DeviceConfig, options ...func(d *Device)) (*Device, error) {
	device := strconv.Itoa(config.Index)
	if config.Serial != "" {
		device = config.Serial
	}

	d := Device{
		device:     device,
		command:    exec.CommandContext,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		sampleRate: sdr.SampleRate,
	}

	for _, option := range options {
		option(&d)
	}

	if d.binPath == "" {
		binPath, err := FindRuntime(Runtime)
		if err != nil {
			return nil, err
		}
		d.binPath = binPath
	}

	d.logger = d.logger.With(slog.String("device", sdr.DeviceLocal.String()), slog.String("deviceID", d.device))

	return &d, nil
}

func (d *Device) SetSampleRate(hz float64) error {
	if hz <= 0 {
		return sdr.NewDeviceError("set sample rate", fmt.Errorf("invalid sample rate: %.0f", hz))
	}
	d.sampleRate = hz
	return nil
}

func (d *Device) SetCenterFreq(hz float64) error {
	if hz <= 0 {
		return sdr.NewDeviceError("tune", fmt.Errorf("invalid frequency: %.0f", hz))
	}
	d.frequency = hz
	return nil
}

func (d *Device) SetGain(db *float64) error {
	d.gain = db
	return nil
}

// TunerType returns the tuner detected on the last read.
func (d *Device) TunerType() sdr.TunerType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tuner
}

func (d *Device) Close() error {
	return nil
}

// Args returns the command line arguments capturing n samples to stdout.
// See `man rtl_sdr`.
func (d *Device) Args(n int) []string {
	args := []string{
		"-d", d.device,
		"-f", strconv.FormatFloat(d.frequency, 'f', 0, 64),
		"-s", strconv.FormatFloat(d.sampleRate, 'f', 0, 64),
	}

	if d.gain != nil {
		args = append(args, "-g", strconv.FormatFloat(*d.gain, 'f', 1, 64))
	}

	args = append(args, "-n", strconv.Itoa(n), "-") // always dump to stdout
	return args
}

// ReadSamples runs a capture of n samples at the current frequency. A capture
// that ends early returns the samples received so far.
func (d *Device) ReadSamples(n int) (samples []complex128, err error) {
	if n <= 0 {
		return nil, sdr.NewDeviceError("read", fmt.Errorf("invalid sample count: %d", n))
	}
	if d.frequency == 0 {
		return nil, sdr.NewDeviceError("read", errors.New("device is not tuned"))
	}

	timeout := time.Duration(float64(n)/d.sampleRate*float64(time.Second)) + startupTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := d.command(ctx, d.binPath, d.Args(n)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, sdr.NewDeviceError("read", fmt.Errorf("error creating stdout pipe: %w", err))
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, sdr.NewDeviceError("read", fmt.Errorf("error creating stderr pipe: %w", err))
	}

	if err = cmd.Start(); err != nil {
		return nil, sdr.NewDeviceError("read", fmt.Errorf("error starting command: %w", err))
	}

	d.logger.Debug("capturing",
		slog.String("frequency", humanize.SIWithDigits(d.frequency, 3, "Hz")),
		slog.Int("samples", n))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.handleStderr(stderr)
	}()

	raw, readErr := readIQ(stdout, n)
	wg.Wait()

	if err = cmd.Wait(); err != nil && len(raw) == 0 {
		return nil, sdr.NewDeviceError("read", fmt.Errorf("command exited with error: %w", err))
	}
	if readErr != nil {
		return nil, sdr.NewDeviceError("read", fmt.Errorf("error reading stdout: %w", readErr))
	}

	return sdr.ConvertIQ(raw), nil
}

// handleStderr logs the tool's diagnostics and picks up the tuner type.
func (d *Device) handleStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if tuner, ok := parseTuner(line); ok {
			d.mu.Lock()
			d.tuner = tuner
			d.mu.Unlock()
		}

		d.logger.Debug(fmt.Sprintf("%s >> %s", Runtime, line))
	}
}

// readIQ reads up to n IQ pairs. A short stream is not an error.
func readIQ(r io.Reader, n int) ([]byte, error) {
	raw := make([]byte, n*2)

	read, err := io.ReadFull(r, raw)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, r)

	return raw[:read&^1], nil
}

// parseTuner recognises the "Found ... tuner" banner.
func parseTuner(line string) (sdr.TunerType, bool) {
	if !strings.HasPrefix(line, "Found ") || !strings.HasSuffix(line, " tuner") {
		return sdr.TunerUnknown, false
	}
	for _, b := range tunerBanners {
		if strings.Contains(line, b.banner) {
			return b.tuner, true
		}
	}
	return sdr.TunerUnknown, true
}
