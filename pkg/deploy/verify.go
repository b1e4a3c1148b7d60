package deploy

import (
	"bytes"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Mismatch is a copied file whose device content differs from the project.
type Mismatch struct {
	Target string
	Reason string
}

// VerifySync re-reads every file the sync reported as copied and compares it
// to its source. Only copied files are checked; skipped and failed ones are
// already accounted for in the result.
func VerifySync(project, device billy.Filesystem, res SyncResult) ([]Mismatch, error) {
	var mismatches []Mismatch
	for _, f := range res.Files {
		if f.Outcome != OutcomeCopied {
			continue
		}
		want, err := util.ReadFile(project, fsPath(f.Source))
		if err != nil {
			return mismatches, fmt.Errorf("verify: cannot read source %s: %w", f.Source, err)
		}
		got, err := util.ReadFile(device, fsPath(f.Target))
		if err != nil {
			mismatches = append(mismatches, Mismatch{Target: f.Target, Reason: fmt.Sprintf("missing on device: %v", err)})
			continue
		}
		if !bytes.Equal(want, got) {
			mismatches = append(mismatches, Mismatch{
				Target: f.Target,
				Reason: fmt.Sprintf("content differs (%d bytes on device, %d expected)", len(got), len(want)),
			})
		}
	}
	if len(mismatches) > 0 {
		return mismatches, fmt.Errorf("%w: %d of %d copied files differ", ErrVerifyFailed, len(mismatches), res.Copied)
	}
	return nil, nil
}
