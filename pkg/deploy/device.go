package deploy

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// BootOutFile is written by CircuitPython at the root of its drive on every
// boot. Its first line identifies the firmware and the board.
const BootOutFile = "boot_out.txt"

// DefaultLabel is the volume label CircuitPython gives its drive.
const DefaultLabel = "CIRCUITPY"

// Device is a mounted mass-storage volume believed to be a CircuitPython
// board. Devices are discovered fresh on every run and never persisted.
type Device struct {
	Path  string
	Label string
	// Version and Board come from boot_out.txt when it could be parsed.
	Version *semver.Version
	Board   string
	// Confident is set when boot_out.txt carries a CircuitPython banner,
	// as opposed to a match on the volume label alone.
	Confident bool
}

func (d Device) String() string {
	var b strings.Builder
	b.WriteString(d.Path)
	if d.Label != "" && !strings.EqualFold(d.Label, filepath.Base(d.Path)) {
		fmt.Fprintf(&b, " [%s]", d.Label)
	}
	if d.Version != nil {
		fmt.Fprintf(&b, " CircuitPython %s", d.Version)
	}
	if d.Board != "" {
		fmt.Fprintf(&b, " on %s", d.Board)
	}
	return b.String()
}

// BootInfo is what the boot_out.txt banner tells us about a board.
type BootInfo struct {
	Version *semver.Version
	Date    string
	Board   string
	Chip    string
}

var bannerRe = regexp.MustCompile(`CircuitPython\s+(\S+)\s+on\s+([^;]+);\s*(.+)$`)

// ParseBootInfo parses the banner line of a boot_out.txt file, e.g.
//
//	Adafruit CircuitPython 9.0.5 on 2024-05-22; Adafruit PyPortal with samd51j20
func ParseBootInfo(text string) (BootInfo, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := bannerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := semver.NewVersion(m[1])
		if err != nil {
			return BootInfo{}, fmt.Errorf("cannot parse CircuitPython version %q: %w", m[1], err)
		}
		info := BootInfo{
			Version: v,
			Date:    strings.TrimSpace(m[2]),
			Board:   strings.TrimSpace(m[3]),
		}
		if idx := strings.LastIndex(info.Board, " with "); idx != -1 {
			info.Chip = strings.TrimSpace(info.Board[idx+len(" with "):])
			info.Board = strings.TrimSpace(info.Board[:idx])
		}
		return info, nil
	}
	if err := scanner.Err(); err != nil {
		return BootInfo{}, err
	}
	return BootInfo{}, fmt.Errorf("no CircuitPython banner found")
}

// ProbeDevice builds a Device for the volume mounted at path, reading
// boot_out.txt through fsys (which must be rooted at path).
func ProbeDevice(path string, fsys billy.Filesystem) Device {
	dev := Device{
		Path:  path,
		Label: volumeLabel(path),
	}
	data, err := util.ReadFile(fsys, BootOutFile)
	if err != nil {
		return dev
	}
	info, err := ParseBootInfo(string(data))
	if err != nil {
		return dev
	}
	dev.Version = info.Version
	dev.Board = info.Board
	dev.Confident = true
	return dev
}

// volumeLabel infers the label from the mount directory; udisks and macOS
// both mount volumes under their label.
func volumeLabel(path string) string {
	clean := filepath.Clean(path)
	if vol := filepath.VolumeName(clean); vol != "" && len(clean) <= len(vol)+1 {
		return ""
	}
	base := filepath.Base(clean)
	if base == string(filepath.Separator) || base == "." {
		return ""
	}
	return base
}
