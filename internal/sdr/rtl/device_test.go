package rtl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"testing"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
)

// TestHelperProcess stands in for rtl_sdr when re-executed by helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}

	var n int
	for i, arg := range args {
		if arg == "-n" && i+1 < len(args) {
			n, _ = strconv.Atoi(args[i+1])
		}
	}

	fmt.Fprintln(os.Stderr, "Found 1 device(s):")
	fmt.Fprintln(os.Stderr, "Found Rafael Micro R820T tuner")

	if os.Getenv("HELPER_FAIL") == "1" {
		os.Exit(1)
	}
	if short := os.Getenv("HELPER_SHORT"); short != "" {
		n, _ = strconv.Atoi(short)
	}

	_, _ = os.Stdout.Write(bytes.Repeat([]byte{255, 0}, n))
	os.Exit(0)
}

func helperCommand(env ...string) CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(append(os.Environ(), "GO_WANT_HELPER_PROCESS=1"), env...)
		return cmd
	}
}

func newTestDevice(t *testing.T, config *sdr.DeviceConfig, env ...string) *Device {
	t.Helper()

	d, err := New(config, WithBinPath("rtl_sdr"), WithCommand(helperCommand(env...)))
	if err != nil {
		t.Fatalf("creating device: %v", err)
	}
	return d
}

func TestDevice_Args(t *testing.T) {
	gain := 29.7

	testCases := []struct {
		name     string
		config   sdr.DeviceConfig
		gain     *float64
		expected []string
	}{
		{
			name:     "index and auto gain",
			config:   sdr.DeviceConfig{Index: 1},
			expected: []string{"-d", "1", "-f", "100000000", "-s", "2000000", "-n", "4096", "-"},
		},
		{
			name:     "serial and manual gain",
			config:   sdr.DeviceConfig{Serial: "00000001"},
			gain:     &gain,
			expected: []string{"-d", "00000001", "-f", "100000000", "-s", "2000000", "-g", "29.7", "-n", "4096", "-"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDevice(t, &tc.config)
			_ = d.SetCenterFreq(100e6)
			_ = d.SetGain(tc.gain)

			if args := d.Args(4096); !slices.Equal(args, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, args)
			}
		})
	}
}

func TestDevice_ReadSamples(t *testing.T) {
	d := newTestDevice(t, &sdr.DeviceConfig{})
	if err := d.SetCenterFreq(100e6); err != nil {
		t.Fatalf("tune: %v", err)
	}

	samples, err := d.ReadSamples(2048)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(samples) != 2048 {
		t.Fatalf("expected 2048 samples, got %d", len(samples))
	}
	if samples[0] != complex(1, -1) {
		t.Errorf("expected (1-1i), got %v", samples[0])
	}
	if d.TunerType() != sdr.TunerR820T {
		t.Errorf("expected R820T, got %s", d.TunerType())
	}
}

func TestDevice_ReadSamplesShort(t *testing.T) {
	d := newTestDevice(t, &sdr.DeviceConfig{}, "HELPER_SHORT=0")
	_ = d.SetCenterFreq(100e6)

	samples, err := d.ReadSamples(2048)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}

func TestDevice_ReadSamplesFailure(t *testing.T) {
	d := newTestDevice(t, &sdr.DeviceConfig{}, "HELPER_FAIL=1")
	_ = d.SetCenterFreq(100e6)

	_, err := d.ReadSamples(2048)

	var deviceErr *sdr.DeviceError
	if !errors.As(err, &deviceErr) {
		t.Errorf("expected DeviceError, got %v", err)
	}
}

func TestDevice_ReadSamplesNotTuned(t *testing.T) {
	d := newTestDevice(t, &sdr.DeviceConfig{})

	if _, err := d.ReadSamples(16); err == nil {
		t.Error("expected error reading from an untuned device")
	}
}

func TestParseTuner(t *testing.T) {
	testCases := []struct {
		line  string
		tuner sdr.TunerType
		ok    bool
	}{
		{"Found Elonics E4000 tuner", sdr.TunerE4000, true},
		{"Found Rafael Micro R828D tuner", sdr.TunerR828D, true},
		{"Found Something Else tuner", sdr.TunerUnknown, true},
		{"Using device 0: Generic RTL2832U OEM", sdr.TunerUnknown, false},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			tuner, ok := parseTuner(tc.line)
			if ok != tc.ok || tuner != tc.tuner {
				t.Errorf("expected (%s, %v), got (%s, %v)", tc.tuner, tc.ok, tuner, ok)
			}
		})
	}
}
