//go:build !windows

package rtl

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
)

// FindRuntime locates a librtlsdr command line tool in PATH.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", sdr.NewDeviceError("open", fmt.Errorf("`%s` not found in PATH: %w", runtime, err))
		}
		return "", sdr.NewDeviceError("open", fmt.Errorf("failed to locate `%s`: %w", runtime, err))
	}

	return binPath, nil
}
