package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session runs one deployment: locate a device, optionally back it up, sync
// the project onto it and report. A Session owns its plan and result for the
// duration of Run; concurrent runs against the same device are not guarded
// against.
type Session struct {
	Options PlanOptions

	Locator Locator
	// Probe resolves an explicit device path (--device or the manual
	// prompt) into a Device.
	Probe func(path string) (Device, error)
	// Prompter is used in interactive mode only; auto mode never prompts.
	Prompter Prompter

	// Project is rooted at the project directory.
	Project billy.Filesystem
	// OpenDevice returns a filesystem rooted at the device mount. Defaults
	// to osfs.
	OpenDevice func(Device) billy.Filesystem
	// Present checks that the device is still mounted. Defaults to a stat
	// of the mount path.
	Present func(Device) error

	// Backups is required when Options.Backup is set.
	Backups *BackupManager
	Logger  *zap.Logger
}

// Run executes the workflow and always returns a report; the report's state
// is END on success and ERROR otherwise.
func (s *Session) Run(ctx context.Context) Report {
	r := Report{RunID: uuid.NewString(), State: StateStart, Trace: []State{StateStart}}
	log := nopIfNil(s.Logger).With(zap.String("run", r.RunID))

	r.enter(StateLocate)
	dev, err := s.Locate()
	if err != nil {
		return r.fail(log, err)
	}
	r.Device = &dev
	log = log.With(zap.String("device", dev.Path))

	if err := s.present(dev); err != nil {
		return r.fail(log, err)
	}
	if err := ValidateTarget(dev, s.Options); err != nil {
		return r.fail(log, err)
	}
	if !dev.Confident {
		log.Warn("device has no CircuitPython banner; continuing on label match", zap.String("label", dev.Label))
	}

	plan, err := BuildPlan(s.Project, dev, s.Options)
	if err != nil {
		return r.fail(log, err)
	}
	r.Plan = &plan
	log.Debug("plan built", zap.Int("files", plan.Total()), zap.Strings("managed", plan.Managed))

	devFS := s.openDevice(dev)
	prompter := s.prompter()

	doBackup, err := s.wantBackup(prompter, dev)
	if err != nil {
		return r.fail(log, err)
	}
	if doBackup {
		r.enter(StateBackup)
		rec, err := s.Backups.Backup(ctx, devFS, dev)
		if rec.Destination != "" {
			r.Backup = &rec
		}
		if err != nil {
			r.BackupErr = err
			if ctx.Err() != nil {
				return r.fail(log, ctx.Err())
			}
			log.Warn("backup failed, continuing with sync", zap.Error(err))
		}
	}

	r.enter(StateSync)
	var runner Runner = NewFSRunner(s.Project, devFS, log)
	if plan.DryRun {
		runner = NewNoopRunner(log)
	}
	syncer := &Synchronizer{
		Device:   devFS,
		Runner:   runner,
		Prompter: prompter,
		Present:  func() error { return s.present(dev) },
		Logger:   log,
	}
	res, err := syncer.Sync(ctx, plan)
	r.Result = res
	if err != nil {
		return r.fail(log, err)
	}

	if plan.Verify && !plan.DryRun {
		mismatches, err := VerifySync(s.Project, devFS, res)
		r.Mismatches = mismatches
		if err != nil {
			return r.fail(log, err)
		}
	}

	r.enter(StateReport)
	r.enter(StateEnd)
	return r
}

// Locate resolves the target device: an explicit DevicePath wins, otherwise
// the locator's candidates go through the selection policy.
func (s *Session) Locate() (Device, error) {
	if s.Options.DevicePath != "" {
		if s.Probe == nil {
			return Device{Path: s.Options.DevicePath, Label: volumeLabel(s.Options.DevicePath)}, nil
		}
		dev, err := s.Probe(s.Options.DevicePath)
		if err != nil {
			return Device{}, fmt.Errorf("%w: %s: %v", ErrNoDeviceFound, s.Options.DevicePath, err)
		}
		return dev, nil
	}

	var cands []Device
	if s.Locator != nil {
		var err error
		cands, err = FindDevices(s.Locator)
		if err != nil {
			return Device{}, err
		}
	}
	nopIfNil(s.Logger).Debug("device candidates", zap.Int("count", len(cands)))

	sel := Selector{Prompter: s.prompter(), Auto: s.Options.Auto, Resolve: s.Probe}
	return sel.Select(cands)
}

// Device returns a filesystem for dev using the session's opener.
func (s *Session) Device(dev Device) billy.Filesystem { return s.openDevice(dev) }

func (s *Session) wantBackup(p Prompter, dev Device) (bool, error) {
	if !s.Options.Backup || s.Options.DryRun || s.Backups == nil {
		return false, nil
	}
	if s.Options.Auto {
		return s.Options.AutoBackup, nil
	}
	ok, err := p.Confirm(fmt.Sprintf("Back up %s to %s before syncing?", dev.Path, s.Backups.Root))
	if err != nil {
		return false, fmt.Errorf("backup confirmation failed: %w", err)
	}
	return ok, nil
}

func (s *Session) prompter() Prompter {
	if s.Options.Auto {
		return Always(true)
	}
	if s.Prompter == nil {
		return Always(false)
	}
	return s.Prompter
}

func (s *Session) openDevice(dev Device) billy.Filesystem {
	if s.OpenDevice != nil {
		return s.OpenDevice(dev)
	}
	return osfs.New(dev.Path)
}

func (s *Session) present(dev Device) error {
	check := s.Present
	if check == nil {
		check = func(d Device) error { return MountPresent(d.Path)() }
	}
	err := check(dev)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
