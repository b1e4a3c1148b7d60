package deploy

import (
	"fmt"
	"path"
)

// Operations a Step can carry.
const (
	OpDeleteEntry = "delete-entry"
	OpCopyFile    = "copy-file"
	OpCopyHelper  = "copy-helper"
)

// Step is a concrete action taken during a sync. It is both structured (for
// runners) and has a human-readable description.
type Step struct {
	Operation string
	// Source is relative to the project root; empty for deletions.
	Source string
	// Target is relative to the device root.
	Target      string
	Description string
}

// Runner abstracts how steps are performed, keeping side effects behind an
// interface so dry runs and tests can swap them out.
type Runner interface {
	Run(step Step) error
}

// DeleteStep builds the step removing a top-level entry from the device.
func DeleteStep(name string) Step {
	return Step{
		Operation:   OpDeleteEntry,
		Target:      name,
		Description: fmt.Sprintf("delete %s from device", name),
	}
}

// BuildCopySteps converts a plan into the ordered list of copy steps:
// project sources, then libraries, then helper scripts.
func BuildCopySteps(plan Plan) []Step {
	steps := make([]Step, 0, plan.Total())

	for _, src := range plan.Sources {
		steps = append(steps, Step{
			Operation:   OpCopyFile,
			Source:      src,
			Target:      src,
			Description: "copy " + src,
		})
	}

	for _, lib := range plan.Libraries {
		target := path.Join(DeviceLibDir, lib)
		steps = append(steps, Step{
			Operation:   OpCopyFile,
			Source:      path.Join(plan.LibDir, lib),
			Target:      target,
			Description: "copy library " + target,
		})
	}

	if plan.CopyHelpers {
		for _, h := range plan.Helpers {
			target := path.Base(h)
			steps = append(steps, Step{
				Operation:   OpCopyHelper,
				Source:      path.Join(plan.HelpersDir, h),
				Target:      target,
				Description: "copy helper " + target,
			})
		}
	}

	return steps
}
