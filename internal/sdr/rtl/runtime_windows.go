//go:build windows

package rtl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
)

// FindRuntime looks for a bundled librtlsdr tool under bin/ next to the
// executable or the working directory.
func FindRuntime(runtime string) (string, error) {
	var lookup []string

	if exePath, err := os.Executable(); err == nil {
		lookup = append(lookup, filepath.Dir(exePath))
	}
	if wd, err := os.Getwd(); err == nil {
		lookup = append(lookup, wd)
	}

	for _, dir := range lookup {
		matches, err := filepath.Glob(filepath.Join(dir, "bin", "*", "x64", runtime+".exe"))
		if err != nil || len(matches) == 0 {
			continue
		}
		if _, err = os.Stat(matches[0]); err != nil {
			continue
		}
		return matches[0], nil
	}

	return "", sdr.NewDeviceError("open", fmt.Errorf("failed to find binary '%s'", runtime))
}
