package deploy

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeviceFound is returned when no device could be selected.
	ErrNoDeviceFound = errors.New("no CircuitPython device found")
	// ErrDeviceUnavailable means the device mount went away (usually unplugged).
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrAborted is returned when the user declines to continue.
	ErrAborted = errors.New("aborted by user")
	// ErrVerifyFailed is returned when copied files do not match their source.
	ErrVerifyFailed = errors.New("verification failed")
)

// BackupError reports a backup that could not be completed. Entries copied
// before the failure are left in place.
type BackupError struct {
	Destination string
	Path        string
	Err         error
}

func (e *BackupError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("backup to %s failed: %v", e.Destination, e.Err)
	}
	return fmt.Sprintf("backup of %s to %s failed: %v", e.Path, e.Destination, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// CopyError is recorded per file when a copy onto the device fails.
type CopyError struct {
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("copy %s: %v", e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }
