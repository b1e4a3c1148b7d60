package deploy

import (
	"fmt"
	"path/filepath"
)

// Locator abstracts how candidate devices are discovered from the
// underlying OS. Platform implementations are picked at startup; tests
// provide fakes.
type Locator interface {
	Candidates() ([]Device, error)
}

// LocatorFunc adapts a plain function to Locator.
type LocatorFunc func() ([]Device, error)

func (f LocatorFunc) Candidates() ([]Device, error) { return f() }

// FindDevices returns the candidates reported by l in discovery order with
// duplicate paths removed. Finding nothing is not an error; the caller
// decides whether an empty result is fatal.
func FindDevices(l Locator) ([]Device, error) {
	devs, err := l.Candidates()
	if err != nil {
		return nil, fmt.Errorf("device discovery failed: %w", err)
	}
	seen := make(map[string]bool, len(devs))
	out := make([]Device, 0, len(devs))
	for _, d := range devs {
		key := filepath.Clean(d.Path)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out, nil
}
