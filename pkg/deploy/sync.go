package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"
)

// Outcome is the per-file result of a sync.
type Outcome int

const (
	OutcomeCopied Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCopied:
		return "copied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// FileResult records what happened to one file of the plan.
type FileResult struct {
	Source  string
	Target  string
	Outcome Outcome
	// Err is set for failed files.
	Err error
	// Reason explains a skip.
	Reason string
}

// SyncResult is produced once per run and discarded after reporting.
type SyncResult struct {
	DryRun bool
	// Deleted and Kept are top-level device entries the plan manages that
	// were removed or, on the user's request, left alone.
	Deleted  []string
	Kept     []string
	Warnings []string
	Files    []FileResult

	Copied  int
	Skipped int
	Failed  int
}

// Total is the number of files accounted for; it always equals the plan's
// Total once Sync returns.
func (r SyncResult) Total() int { return r.Copied + r.Skipped + r.Failed }

// FailedFiles returns the failed entries in plan order.
func (r SyncResult) FailedFiles() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Outcome == OutcomeFailed {
			out = append(out, f)
		}
	}
	return out
}

func (r *SyncResult) record(f FileResult) {
	r.Files = append(r.Files, f)
	switch f.Outcome {
	case OutcomeCopied:
		r.Copied++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

func (r *SyncResult) skipAll(steps []Step, reason string) {
	for _, s := range steps {
		r.record(FileResult{Source: s.Source, Target: s.Target, Outcome: OutcomeSkipped, Reason: reason})
	}
}

// Synchronizer replaces the project-managed entries on a device.
type Synchronizer struct {
	// Device is used to list the device root; mutations go through Runner.
	Device billy.Filesystem
	Runner Runner
	// Prompter confirms each deletion. A nil Prompter declines every
	// deletion, so managed entries already on the device are kept.
	Prompter Prompter
	// Present reports whether the device is still mounted. Nil means the
	// device is assumed present.
	Present func() error
	Logger  *zap.Logger
}

// Sync deletes confirmed managed entries from the device and copies the
// plan's files onto it.
//
// A single failed copy is recorded and the sync moves on. If the device
// disappears, the failing file is recorded as failed, the remaining files
// as skipped, and an error wrapping ErrDeviceUnavailable is returned. A
// cancelled ctx stops before the next step; nothing is rolled back.
func (s *Synchronizer) Sync(ctx context.Context, plan Plan) (SyncResult, error) {
	log := nopIfNil(s.Logger)
	res := SyncResult{DryRun: plan.DryRun}
	steps := BuildCopySteps(plan)

	if err := s.present(); err != nil {
		res.skipAll(steps, "device unavailable")
		return res, err
	}

	kept, err := s.deleteManaged(ctx, plan, &res)
	if err != nil {
		reason := "not attempted"
		if ctx.Err() != nil {
			reason = "interrupted"
		}
		res.skipAll(steps, reason)
		return res, err
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			res.skipAll(steps[i:], "interrupted")
			return res, err
		}
		if kept[topLevel(step.Target)] {
			res.record(FileResult{Source: step.Source, Target: step.Target, Outcome: OutcomeSkipped, Reason: "kept on device"})
			continue
		}

		if err := s.Runner.Run(step); err != nil {
			if perr := s.present(); perr != nil {
				res.record(FileResult{Source: step.Source, Target: step.Target, Outcome: OutcomeFailed, Err: perr})
				res.skipAll(steps[i+1:], "not attempted")
				log.Error("device went away during sync", zap.String("target", step.Target), zap.Error(err))
				return res, perr
			}
			cerr := &CopyError{Path: step.Target, Err: err}
			res.record(FileResult{Source: step.Source, Target: step.Target, Outcome: OutcomeFailed, Err: cerr})
			log.Warn("copy failed", zap.String("target", step.Target), zap.Error(err))
			continue
		}
		res.record(FileResult{Source: step.Source, Target: step.Target, Outcome: OutcomeCopied})
	}

	log.Info("sync finished",
		zap.Int("copied", res.Copied),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

// deleteManaged handles step 1: it removes the managed top-level entries the
// user confirms and returns the set of entries to keep untouched.
func (s *Synchronizer) deleteManaged(ctx context.Context, plan Plan, res *SyncResult) (map[string]bool, error) {
	log := nopIfNil(s.Logger)
	kept := make(map[string]bool)

	entries, err := listDir(s.Device, "")
	if err != nil {
		if perr := s.present(); perr != nil {
			return nil, perr
		}
		return nil, fmt.Errorf("cannot list device root: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if name == BootOutFile || osMetadata[name] || !plan.IsManaged(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !plan.DryRun {
			ok, err := s.prompter().Confirm(fmt.Sprintf("Delete %s from the device?", name))
			if err != nil {
				return nil, fmt.Errorf("confirmation for %s failed: %w", name, err)
			}
			if !ok {
				kept[name] = true
				res.Kept = append(res.Kept, name)
				log.Info("keeping device entry", zap.String("entry", name))
				continue
			}
			// The prompt may have blocked across an interrupt.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if err := s.Runner.Run(DeleteStep(name)); err != nil {
			if perr := s.present(); perr != nil {
				return nil, perr
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not delete %s: %v", name, err))
			log.Warn("delete failed", zap.String("entry", name), zap.Error(err))
			continue
		}
		res.Deleted = append(res.Deleted, name)
	}
	return kept, nil
}

func (s *Synchronizer) prompter() Prompter {
	if s.Prompter == nil {
		return Always(false)
	}
	return s.Prompter
}

func (s *Synchronizer) present() error {
	if s.Present == nil {
		return nil
	}
	err := s.Present()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
