package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// backupStampLayout names backup directories after the time they were taken.
const backupStampLayout = "20060102-150405"

// BackupEntry is one file copied (or not) during a backup.
type BackupEntry struct {
	Path  string `yaml:"path"`
	Size  int64  `yaml:"size"`
	Error string `yaml:"error,omitempty"`
}

// BackupRecord describes a finished backup. It is written next to the backup
// directory as a manifest and never modified afterwards.
type BackupRecord struct {
	ID          string        `yaml:"id"`
	Device      string        `yaml:"device"`
	Destination string        `yaml:"destination"`
	CreatedAt   time.Time     `yaml:"created_at"`
	Complete    bool          `yaml:"complete"`
	Entries     []BackupEntry `yaml:"entries"`
	// Skipped are host OS metadata entries left out of the backup.
	Skipped []string `yaml:"skipped,omitempty"`
}

// Copied is the number of entries that made it into the backup.
func (r BackupRecord) Copied() int {
	n := 0
	for _, e := range r.Entries {
		if e.Error == "" {
			n++
		}
	}
	return n
}

// BackupManager copies the whole content of a device to a timestamped
// directory on the host. Backups are a best-effort safety net, not a
// transactional snapshot: a failed backup keeps whatever was copied.
type BackupManager struct {
	// Host is rooted at Root, the directory holding all backups.
	Host   billy.Filesystem
	Root   string
	Now    func() time.Time
	Logger *zap.Logger
}

// Backup copies every entry of device into a new directory under the
// manager's root and returns the resulting record. On failure it returns the
// partial record together with a *BackupError. A cancelled ctx stops the copy
// before the next file; the error then wraps ctx.Err().
func (m *BackupManager) Backup(ctx context.Context, device billy.Filesystem, dev Device) (BackupRecord, error) {
	log := nopIfNil(m.Logger)
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	created := now()

	stamp, err := m.uniqueDir(created.Format(backupStampLayout))
	if err != nil {
		return BackupRecord{}, &BackupError{Destination: m.Root, Err: err}
	}
	dest := filepath.Join(m.Root, filepath.FromSlash(stamp))

	rec := BackupRecord{
		ID:          uuid.NewString(),
		Device:      dev.Path,
		Destination: dest,
		CreatedAt:   created.UTC(),
	}

	if err := m.Host.MkdirAll(fsPath(stamp), 0o755); err != nil {
		return rec, &BackupError{Destination: dest, Err: err}
	}

	skip := func(rel string, _ os.FileInfo) bool {
		if !osMetadata[path.Base(rel)] {
			return false
		}
		rec.Skipped = append(rec.Skipped, rel)
		return true
	}
	walkErr := walkFiles(device, "", skip, func(rel string, _ os.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := copyFile(device, rel, m.Host, path.Join(stamp, rel))
		if err != nil {
			rec.Entries = append(rec.Entries, BackupEntry{Path: rel, Error: err.Error()})
			return &BackupError{Destination: dest, Path: rel, Err: err}
		}
		rec.Entries = append(rec.Entries, BackupEntry{Path: rel, Size: n})
		return nil
	})

	var backupErr *BackupError
	if walkErr != nil && !errors.As(walkErr, &backupErr) {
		backupErr = &BackupError{Destination: dest, Err: walkErr}
	}
	rec.Complete = backupErr == nil

	if err := writeManifest(m.Host, stamp+manifestSuffix, rec); err != nil && backupErr == nil {
		backupErr = &BackupError{Destination: dest, Err: fmt.Errorf("write manifest: %w", err)}
	}

	if backupErr != nil {
		log.Warn("backup incomplete", zap.String("destination", dest), zap.Int("copied", rec.Copied()), zap.Error(backupErr))
		return rec, backupErr
	}
	log.Info("backup written", zap.String("destination", dest), zap.Int("files", len(rec.Entries)), zap.Strings("skipped", rec.Skipped))
	return rec, nil
}

// uniqueDir returns stamp, or stamp-N when a backup with the same stamp
// already exists.
func (m *BackupManager) uniqueDir(stamp string) (string, error) {
	candidate := stamp
	for i := 1; i < 100; i++ {
		_, err := m.Host.Stat(fsPath(candidate))
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", stamp, i)
	}
	return "", fmt.Errorf("too many backups named %s", stamp)
}
