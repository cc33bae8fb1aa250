//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ProcessLister returns the processes of the system.
type ProcessLister func() ([]ps.Process, error)

// IsProcessRunning reports whether a process other than the current one runs
// the named executable. The ".exe" suffix is optional on Windows.
func IsProcessRunning(list ProcessLister, name string) (bool, error) {
	if name == "" {
		return false, nil
	}

	if list == nil {
		list = ps.Processes
	}

	processList, err := list()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()
	want := executableName(name)

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if executableName(process.Executable()) == want {
			return true, nil
		}
	}

	return false, nil
}

// executableName normalizes a process name for comparison.
func executableName(name string) string {
	name = filepath.Base(name)

	if runtime.GOOS == "windows" {
		name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	}

	return name
}
