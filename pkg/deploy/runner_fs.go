package deploy

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
)

// FSRunner executes steps against real filesystems: the project tree on the
// host and the device mount.
type FSRunner struct {
	Project billy.Filesystem
	Device  billy.Filesystem
	Logger  *zap.Logger
}

func NewFSRunner(project, device billy.Filesystem, logger *zap.Logger) *FSRunner {
	return &FSRunner{Project: project, Device: device, Logger: nopIfNil(logger)}
}

func (r *FSRunner) Run(step Step) error {
	log := nopIfNil(r.Logger)
	switch step.Operation {
	case OpDeleteEntry:
		log.Debug("delete entry", zap.String("target", step.Target))
		if err := util.RemoveAll(r.Device, fsPath(step.Target)); err != nil {
			return fmt.Errorf("delete %s: %w", step.Target, err)
		}
		return nil
	case OpCopyFile, OpCopyHelper:
		n, err := copyFile(r.Project, step.Source, r.Device, step.Target)
		if err != nil {
			return err
		}
		log.Debug("copied file", zap.String("source", step.Source), zap.String("target", step.Target), zap.Int64("bytes", n))
		return nil
	default:
		return fmt.Errorf("unknown operation %q for step: %s", step.Operation, step.Description)
	}
}
