package deploy

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// fatTypes are the fstype values CircuitPython drives show up with in
// /proc/self/mounts.
var fatTypes = map[string]bool{
	"vfat":  true,
	"msdos": true,
	"fat":   true,
}

// LocalLocator discovers devices on the local machine. It is conservative:
// unreadable sources are skipped instead of failing the whole discovery.
//
// Discovery order is: FAT mounts from MountsFile, then the children of each
// SearchRoot, then Windows drive letters.
type LocalLocator struct {
	// Labels are volume labels that make a mount a candidate even without
	// a readable boot_out.txt. Matching is case-insensitive.
	Labels []string
	// MountsFile is /proc/self/mounts on Linux; empty disables it.
	MountsFile string
	// SearchRoots are directories whose children are mount points, such as
	// /Volumes or /media/$USER.
	SearchRoots []string
	// DriveLetters enables probing D:\ through Z:\.
	DriveLetters bool
	// Open returns a filesystem rooted at a mount path. Defaults to osfs.
	Open func(path string) billy.Filesystem
}

// NewLocalLocator creates a Locator with the platform defaults plus the
// given extra search roots. A nil labels slice means DefaultLabel.
func NewLocalLocator(labels, extraRoots []string) *LocalLocator {
	if len(labels) == 0 {
		labels = []string{DefaultLabel}
	}
	l := &LocalLocator{Labels: labels}

	user := os.Getenv("USER")
	switch runtime.GOOS {
	case "linux":
		l.MountsFile = "/proc/self/mounts"
		if user != "" {
			l.SearchRoots = append(l.SearchRoots, filepath.Join("/media", user), filepath.Join("/run/media", user))
		}
		l.SearchRoots = append(l.SearchRoots, "/media")
	case "darwin":
		l.SearchRoots = append(l.SearchRoots, "/Volumes")
	case "windows":
		l.DriveLetters = true
	}
	l.SearchRoots = append(l.SearchRoots, extraRoots...)
	return l
}

// Candidates implements Locator.
func (l *LocalLocator) Candidates() ([]Device, error) {
	var paths []string

	if l.MountsFile != "" {
		if data, err := os.ReadFile(l.MountsFile); err == nil {
			paths = append(paths, parseFATMounts(string(data))...)
		}
	}

	for _, root := range l.SearchRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				paths = append(paths, filepath.Join(root, e.Name()))
			}
		}
	}

	if l.DriveLetters {
		for c := 'D'; c <= 'Z'; c++ {
			drive := string(c) + `:\`
			if st, err := os.Stat(drive); err == nil && st.IsDir() {
				paths = append(paths, drive)
			}
		}
	}

	var devs []Device
	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		dev := ProbeDevice(p, l.open(p))
		if dev.Confident || l.labelMatches(dev.Label) {
			devs = append(devs, dev)
		}
	}
	return devs, nil
}

// Probe builds a Device for an explicit path, e.g. one given with --device.
func (l *LocalLocator) Probe(path string) (Device, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Device{}, err
	}
	if !st.IsDir() {
		return Device{}, &os.PathError{Op: "probe", Path: path, Err: os.ErrInvalid}
	}
	return ProbeDevice(path, l.open(path)), nil
}

func (l *LocalLocator) open(path string) billy.Filesystem {
	if l.Open != nil {
		return l.Open(path)
	}
	return osfs.New(path)
}

func (l *LocalLocator) labelMatches(label string) bool {
	for _, want := range l.Labels {
		if strings.EqualFold(want, label) {
			return true
		}
	}
	return false
}

// parseFATMounts parses the content of /proc/self/mounts and returns the
// mountpoints of FAT filesystems in the order they are listed.
func parseFATMounts(mounts string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(mounts))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if !fatTypes[fields[2]] {
			continue
		}
		out = append(out, unescapeMountField(fields[1]))
	}
	return out
}

// unescapeMountField decodes the octal escapes (\040 for space and so on)
// the kernel uses in mount tables.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
