package deploy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// DeviceLibDir is where CircuitPython looks for libraries on the device.
const DeviceLibDir = "lib"

// DefaultExclude lists project paths that are never copied to the device.
// Patterns are matched with path.Match against both the base name and the
// slash-separated path relative to the project root.
var DefaultExclude = []string{
	".*",
	"__pycache__",
	"*.md",
	"LICENSE*",
	"host_scripts",
	"backups",
}

// PlanOptions represents the inputs required to compute a deployment plan.
// It mirrors, at a high level, the user-facing options parsed by the CLI.
type PlanOptions struct {
	ProjectDir string
	LibDir     string
	HelpersDir string
	Helpers    []string
	Exclude    []string

	CopyHelpers bool
	Backup      bool
	Auto        bool
	DryRun      bool
	Verify      bool

	// AutoBackup is the backup decision taken in auto mode when Backup is
	// enabled.
	AutoBackup bool
	BackupRoot string
	// MinVersion is an optional semver constraint on the device firmware,
	// e.g. ">= 8.0.0".
	MinVersion string
	// DevicePath bypasses discovery when set.
	DevicePath string
}

// Plan is a resolved description of one deployment. At most one plan is
// executed per run.
type Plan struct {
	Device Device

	CopyHelpers bool
	Backup      bool
	Auto        bool
	DryRun      bool
	Verify      bool

	// Sources are project files relative to the project root; each is
	// copied to the same relative path on the device.
	Sources []string
	// LibDir is the project's library directory and Libraries the files
	// below it; they land under DeviceLibDir.
	LibDir    string
	Libraries []string
	// HelpersDir holds the REPL helper scripts; Helpers are copied to the
	// device root.
	HelpersDir string
	Helpers    []string
	// Managed are the top-level device entries this plan owns.
	Managed []string
}

// Total is the number of files the plan copies.
func (p Plan) Total() int {
	n := len(p.Sources) + len(p.Libraries)
	if p.CopyHelpers {
		n += len(p.Helpers)
	}
	return n
}

// IsManaged reports whether a top-level device entry belongs to the plan.
func (p Plan) IsManaged(name string) bool {
	i := sort.SearchStrings(p.Managed, name)
	return i < len(p.Managed) && p.Managed[i] == name
}

// BuildPlan walks the project filesystem and resolves the files to deploy
// onto dev.
func BuildPlan(project billy.Filesystem, dev Device, opts PlanOptions) (Plan, error) {
	libDir := strings.Trim(opts.LibDir, "/")
	if libDir == "" {
		libDir = DeviceLibDir
	}
	helpersDir := strings.Trim(opts.HelpersDir, "/")
	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExclude
	}

	plan := Plan{
		Device:      dev,
		CopyHelpers: opts.CopyHelpers,
		Backup:      opts.Backup,
		Auto:        opts.Auto,
		DryRun:      opts.DryRun,
		Verify:      opts.Verify,
		LibDir:      libDir,
		HelpersDir:  helpersDir,
	}

	skip := func(rel string, info os.FileInfo) bool {
		return isExcluded(rel, exclude)
	}

	// Helpers kept in the project root are deployed as helpers only.
	rootHelpers := make(map[string]bool)
	if helpersDir == "" {
		for _, h := range opts.Helpers {
			if h = strings.TrimSpace(h); h != "" {
				rootHelpers[path.Clean(h)] = true
			}
		}
	}

	err := walkFiles(project, "", func(rel string, info os.FileInfo) bool {
		if rel == libDir || (helpersDir != "" && rel == helpersDir) || rel == BootOutFile || rootHelpers[rel] {
			return true
		}
		return skip(rel, info)
	}, func(rel string, _ os.FileInfo) error {
		plan.Sources = append(plan.Sources, rel)
		return nil
	})
	if err != nil {
		return Plan{}, fmt.Errorf("cannot list project files: %w", err)
	}

	if st, err := project.Stat(fsPath(libDir)); err == nil && st.IsDir() {
		err := walkFiles(project, libDir, skip, func(rel string, _ os.FileInfo) error {
			plan.Libraries = append(plan.Libraries, strings.TrimPrefix(rel, libDir+"/"))
			return nil
		})
		if err != nil {
			return Plan{}, fmt.Errorf("cannot list library directory %s: %w", libDir, err)
		}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Plan{}, fmt.Errorf("cannot inspect library directory %s: %w", libDir, err)
	}

	if opts.CopyHelpers {
		for _, h := range opts.Helpers {
			if h = strings.TrimSpace(h); h != "" {
				plan.Helpers = append(plan.Helpers, h)
			}
		}
	}

	if len(plan.Sources) == 0 && len(plan.Libraries) == 0 {
		return Plan{}, fmt.Errorf("project %s has no files to deploy", displayDir(opts.ProjectDir))
	}

	plan.Managed = managedNames(plan)
	return plan, nil
}

func managedNames(p Plan) []string {
	set := make(map[string]bool)
	for _, s := range p.Sources {
		set[topLevel(s)] = true
	}
	if len(p.Libraries) > 0 {
		set[DeviceLibDir] = true
	}
	if p.CopyHelpers {
		for _, h := range p.Helpers {
			set[path.Base(h)] = true
		}
	}
	delete(set, BootOutFile)

	names := make([]string, 0, len(set))
	for n := range set {
		if !osMetadata[n] {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func isExcluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	if osMetadata[base] {
		return true
	}
	for _, p := range patterns {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func displayDir(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

// String renders a human-readable description of the plan.
func (p Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deploy plan: -> %s\n", p.Device.Path)
	fmt.Fprintf(&b, "  managed on device: %s\n", strings.Join(p.Managed, ", "))
	for _, s := range p.Sources {
		fmt.Fprintf(&b, "  - %s\n", s)
	}
	for _, l := range p.Libraries {
		fmt.Fprintf(&b, "  - %s/%s\n", DeviceLibDir, l)
	}
	if p.CopyHelpers {
		for _, h := range p.Helpers {
			fmt.Fprintf(&b, "  - %s (helper)\n", path.Base(h))
		}
	}
	fmt.Fprintf(&b, "  %d files, backup=%v, auto=%v, dry-run=%v\n", p.Total(), p.Backup, p.Auto, p.DryRun)
	return b.String()
}
