package deploy

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/yaml.v3"
)

// manifestSuffix is appended to a backup directory name to get the path of
// its manifest, which sits next to the directory rather than inside it so it
// can never collide with a file from the device.
const manifestSuffix = ".manifest.yaml"

const manifestHeader = "# cpdeploy backup manifest. Written once when the backup finished.\n"

func writeManifest(host billy.Filesystem, rel string, rec BackupRecord) error {
	body, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return util.WriteFile(host, fsPath(rel), append([]byte(manifestHeader), body...), 0o644)
}

// ReadManifest loads the record of a previous backup.
func ReadManifest(host billy.Filesystem, rel string) (BackupRecord, error) {
	data, err := util.ReadFile(host, fsPath(rel))
	if err != nil {
		return BackupRecord{}, err
	}
	var rec BackupRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return BackupRecord{}, fmt.Errorf("cannot parse manifest %s: %w", rel, err)
	}
	return rec, nil
}
