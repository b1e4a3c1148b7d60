package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ValidateTarget performs safety checks before any destructive operation:
//   - the device must not be the project directory, inside it, or contain it
//   - when a minimum firmware version is configured, the device must report
//     a version satisfying it
func ValidateTarget(dev Device, opts PlanOptions) error {
	if dev.Path == "" {
		return fmt.Errorf("device path is empty")
	}

	if opts.ProjectDir != "" {
		proj, err1 := filepath.Abs(opts.ProjectDir)
		target, err2 := filepath.Abs(dev.Path)
		if err1 == nil && err2 == nil && overlaps(proj, target) {
			return fmt.Errorf("refusing to deploy to %s: it overlaps the project directory %s. Pick the CIRCUITPY drive, not the project checkout", dev.Path, proj)
		}
	}

	if opts.MinVersion != "" {
		c, err := semver.NewConstraint(opts.MinVersion)
		if err != nil {
			return fmt.Errorf("invalid device.min_version %q: %w", opts.MinVersion, err)
		}
		if dev.Version == nil {
			return fmt.Errorf("cannot read the CircuitPython version of %s (missing or unreadable %s) but %s is required", dev.Path, BootOutFile, opts.MinVersion)
		}
		if !c.Check(dev.Version) {
			return fmt.Errorf("device %s runs CircuitPython %s but the project requires %s; update the firmware first", dev.Path, dev.Version, opts.MinVersion)
		}
	}

	return nil
}

// MountPresent returns a presence check for a device mounted at path: the
// path must still exist and be a directory.
func MountPresent(path string) func() error {
	return func() error {
		st, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s is no longer accessible: %v", ErrDeviceUnavailable, path, err)
		}
		if !st.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrDeviceUnavailable, path)
		}
		return nil
	}
}

// overlaps reports whether a and b are the same directory or one contains
// the other.
func overlaps(a, b string) bool {
	if a == b {
		return true
	}
	return within(a, b) || within(b, a)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
