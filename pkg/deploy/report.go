package deploy

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Report is the outcome of one Session.Run.
type Report struct {
	RunID string
	State State
	// Trace lists every state the session went through, in order.
	Trace []State

	Device *Device
	Plan   *Plan

	Backup    *BackupRecord
	BackupErr error

	Result     SyncResult
	Mismatches []Mismatch

	// Err is the fatal cause when State is StateError.
	Err error
}

// OK reports whether the run ended normally.
func (r Report) OK() bool { return r.State == StateEnd }

// ExitCode is 0 for a run that reached END and 1 otherwise.
func (r Report) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

func (r *Report) enter(s State) {
	if !CanTransition(r.State, s) {
		r.Err = fmt.Errorf("invalid session transition %s -> %s", r.State, s)
		s = StateError
	}
	r.State = s
	r.Trace = append(r.Trace, s)
}

func (r Report) fail(log *zap.Logger, err error) Report {
	r.enter(StateError)
	if r.Err == nil {
		r.Err = err
	}
	log.Error("deploy failed", zap.String("state", string(r.Trace[len(r.Trace)-2])), zap.Error(r.Err))
	return r
}

// String renders the summary printed at the end of a run: the device, the
// backup, per-outcome counts, failed files and, for failed runs, the cause.
func (r Report) String() string {
	var b strings.Builder
	if r.Result.DryRun {
		b.WriteString("(dry run, nothing was written)\n")
	}
	if r.Device != nil {
		fmt.Fprintf(&b, "device:  %s\n", r.Device)
	}
	switch {
	case r.Backup != nil && r.BackupErr == nil:
		fmt.Fprintf(&b, "backup:  %s (%d files", r.Backup.Destination, r.Backup.Copied())
		if n := len(r.Backup.Skipped); n > 0 {
			fmt.Fprintf(&b, ", %d skipped: %s", n, strings.Join(r.Backup.Skipped, ", "))
		}
		b.WriteString(")\n")
	case r.BackupErr != nil:
		fmt.Fprintf(&b, "backup:  incomplete, %v\n", r.BackupErr)
	default:
		b.WriteString("backup:  skipped\n")
	}
	if len(r.Result.Deleted) > 0 {
		fmt.Fprintf(&b, "deleted: %s\n", strings.Join(r.Result.Deleted, ", "))
	}
	if len(r.Result.Kept) > 0 {
		fmt.Fprintf(&b, "kept:    %s\n", strings.Join(r.Result.Kept, ", "))
	}
	fmt.Fprintf(&b, "copied: %d  skipped: %d  failed: %d\n", r.Result.Copied, r.Result.Skipped, r.Result.Failed)
	for _, f := range r.Result.FailedFiles() {
		fmt.Fprintf(&b, "  failed %s: %v\n", f.Target, f.Err)
	}
	for _, w := range r.Result.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "  mismatch %s: %s\n", m.Target, m.Reason)
	}
	if r.State == StateError && r.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", r.Err)
	}
	return b.String()
}
