package deploy

import (
	"fmt"
	"strconv"
	"strings"
)

// Prompter abstracts user interaction so the workflow can run interactively,
// unattended, or against scripted answers in tests.
type Prompter interface {
	Confirm(question string) (bool, error)
	Ask(question string) (string, error)
}

// Always answers every confirmation with the same value and never reads
// input. Auto mode runs with Always(true).
type Always bool

func (a Always) Confirm(string) (bool, error) { return bool(a), nil }

func (a Always) Ask(string) (string, error) { return "", nil }

// Selector implements the device selection policy.
type Selector struct {
	Prompter Prompter
	Auto     bool
	// Resolve turns a manually entered path into a Device. When nil, the
	// entered path is used as is.
	Resolve func(path string) (Device, error)
}

// Select picks one device out of cands:
//   - exactly one candidate is selected without asking;
//   - several candidates are offered as a numbered list, or the first is
//     taken in auto mode;
//   - with no candidates the user is asked for a mount path, and a blank
//     answer (or auto mode) yields ErrNoDeviceFound.
func (s Selector) Select(cands []Device) (Device, error) {
	switch {
	case len(cands) == 1:
		return cands[0], nil
	case len(cands) > 1 && s.Auto:
		return cands[0], nil
	case len(cands) > 1:
		return s.choose(cands)
	case s.Auto || s.Prompter == nil:
		return Device{}, ErrNoDeviceFound
	}

	answer, err := s.Prompter.Ask("No CircuitPython device found. Mount path of the device (blank to abort): ")
	if err != nil {
		return Device{}, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Device{}, ErrNoDeviceFound
	}
	if s.Resolve == nil {
		return Device{Path: answer, Label: volumeLabel(answer)}, nil
	}
	dev, err := s.Resolve(answer)
	if err != nil {
		return Device{}, fmt.Errorf("%w: %s: %v", ErrNoDeviceFound, answer, err)
	}
	return dev, nil
}

func (s Selector) choose(cands []Device) (Device, error) {
	var b strings.Builder
	b.WriteString("Several devices found:\n")
	for i, d := range cands {
		fmt.Fprintf(&b, "  [%d] %s\n", i+1, d)
	}
	fmt.Fprintf(&b, "Select a device [1-%d]: ", len(cands))

	answer, err := s.Prompter.Ask(b.String())
	if err != nil {
		return Device{}, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Device{}, fmt.Errorf("%w: no device selected", ErrAborted)
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(cands) {
		return Device{}, fmt.Errorf("%w: invalid selection %q", ErrAborted, answer)
	}
	return cands[n-1], nil
}
