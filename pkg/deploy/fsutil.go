package deploy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// osMetadata are entries host operating systems drop onto removable drives.
// They are never backed up, deleted or treated as project files.
var osMetadata = map[string]bool{
	".Trashes":                  true,
	".fseventsd":                true,
	".Spotlight-V100":           true,
	".metadata_never_index":     true,
	"System Volume Information": true,
}

// fsPath converts a slash-separated path relative to a filesystem root into
// the form billy expects. The empty path is the root itself.
func fsPath(rel string) string {
	return filepath.Join(string(filepath.Separator), filepath.FromSlash(rel))
}

// listDir returns the entries of rel sorted by name. A missing root is
// reported as an empty directory: an in-memory device has no root until
// something is written to it.
func listDir(fsys billy.Filesystem, rel string) ([]os.FileInfo, error) {
	entries, err := fsys.ReadDir(fsPath(rel))
	if err != nil {
		if rel == "" && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// walkFiles calls fn for every regular file below rel, depth-first in name
// order. skip is consulted for every entry (files and directories) and may
// prune it.
func walkFiles(fsys billy.Filesystem, rel string, skip func(rel string, info os.FileInfo) bool, fn func(rel string, info os.FileInfo) error) error {
	root := fsPath(rel)
	return util.Walk(fsys, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == root && rel == "" && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if p == root {
			return nil
		}
		child := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if skip != nil && skip(child, info) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return fn(child, info)
	})
}

// copyFile copies src:srcRel to dst:dstRel, creating intermediate
// directories on dst as needed. It returns the number of bytes written.
func copyFile(src billy.Filesystem, srcRel string, dst billy.Filesystem, dstRel string) (int64, error) {
	in, err := src.Open(fsPath(srcRel))
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if dir := path.Dir(dstRel); dir != "." && dir != "/" {
		if err := dst.MkdirAll(fsPath(dir), 0o755); err != nil {
			return 0, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	out, err := dst.Create(fsPath(dstRel))
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// topLevel returns the first element of a slash-separated relative path.
func topLevel(rel string) string {
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			return rel[:i]
		}
	}
	return rel
}
