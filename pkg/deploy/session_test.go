package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// bench wires a Session against in-memory devices.
type bench struct {
	devices map[string]billy.Filesystem
	order   []Device
	host    billy.Filesystem
}

func newBench(t *testing.T, devs ...Device) *bench {
	b := &bench{devices: make(map[string]billy.Filesystem), host: memfs.New()}
	for _, d := range devs {
		b.devices[d.Path] = newFS(t, map[string]string{
			"boot_out.txt":  bootBanner,
			"code.py":       "print('old')\n",
			"user_data.txt": "precious",
		})
		b.order = append(b.order, d)
	}
	return b
}

func (b *bench) session(t *testing.T, opts PlanOptions, p Prompter) *Session {
	return &Session{
		Options:  opts,
		Locator:  LocatorFunc(func() ([]Device, error) { return b.order, nil }),
		Probe:    func(path string) (Device, error) { return Device{Path: path}, nil },
		Prompter: p,
		Project:  sampleProject(t),
		OpenDevice: func(d Device) billy.Filesystem {
			return b.devices[d.Path]
		},
		Present: func(Device) error { return nil },
		Backups: newBackupManager(t, b.host),
		Logger:  zaptest.NewLogger(t),
	}
}

func fullOptions() PlanOptions {
	return PlanOptions{
		HelpersDir:  "helpers",
		Helpers:     []string{"install_req.py"},
		CopyHelpers: true,
		Backup:      true,
		AutoBackup:  true,
	}
}

var (
	circuitpy  = Device{Path: "/media/pi/CIRCUITPY", Label: "CIRCUITPY", Confident: true}
	circuitpy1 = Device{Path: "/media/pi/CIRCUITPY1", Label: "CIRCUITPY1", Confident: true}
)

func TestSession_AutoModeTwoCandidates(t *testing.T) {
	b := newBench(t, circuitpy, circuitpy1)
	opts := fullOptions()
	opts.Auto = true
	p := &scriptedPrompter{}

	r := b.session(t, opts, p).Run(context.Background())

	require.NoError(t, r.Err)
	assert.Equal(t, StateEnd, r.State)
	assert.Equal(t, 0, r.ExitCode())
	assert.Equal(t, []State{StateStart, StateLocate, StateBackup, StateSync, StateReport, StateEnd}, r.Trace)
	assert.Zero(t, p.prompts())
	assert.Equal(t, circuitpy.Path, r.Device.Path)
	require.NotNil(t, r.Backup)
	assert.True(t, r.Backup.Complete)
	assert.Equal(t, []string{"code.py"}, r.Result.Deleted)
	assert.Equal(t, 6, r.Result.Copied)

	untouched := readTree(t, b.devices[circuitpy1.Path], "")
	assert.Equal(t, "print('old')\n", untouched["code.py"])
	assert.NotContains(t, untouched, "install_req.py")
}

func TestSession_InteractiveRun(t *testing.T) {
	b := newBench(t, circuitpy)
	p := &scriptedPrompter{confirms: []bool{true, true}}

	r := b.session(t, fullOptions(), p).Run(context.Background())

	require.True(t, r.OK(), r.String())
	assert.Equal(t, []string{
		"Back up /media/pi/CIRCUITPY to /home/pi/.local/share/cpdeploy/backups before syncing?",
		"Delete code.py from the device?",
	}, p.confirmed)
	assert.Empty(t, p.asked)

	tree := readTree(t, b.devices[circuitpy.Path], "")
	assert.Equal(t, "precious", tree["user_data.txt"])
	assert.Equal(t, "print('hello')\n", tree["code.py"])

	backup := readTree(t, b.host, "20240522-140309")
	if diff := cmp.Diff(map[string]string{
		"boot_out.txt":  bootBanner,
		"code.py":       "print('old')\n",
		"user_data.txt": "precious",
	}, backup); diff != "" {
		t.Fatalf("backup mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_BackupDeclined(t *testing.T) {
	b := newBench(t, circuitpy)
	p := &scriptedPrompter{confirms: []bool{false, true}}

	r := b.session(t, fullOptions(), p).Run(context.Background())

	require.True(t, r.OK(), r.String())
	assert.Nil(t, r.Backup)
	assert.NotContains(t, r.Trace, StateBackup)
}

func TestSession_NoBackupFlag(t *testing.T) {
	b := newBench(t, circuitpy)
	opts := fullOptions()
	opts.Backup = false
	p := &scriptedPrompter{confirms: []bool{true}}

	r := b.session(t, opts, p).Run(context.Background())

	require.True(t, r.OK(), r.String())
	assert.Equal(t, []string{"Delete code.py from the device?"}, p.confirmed)
	assert.Equal(t, []State{StateStart, StateLocate, StateSync, StateReport, StateEnd}, r.Trace)
}

func TestSession_NoDeviceInteractive(t *testing.T) {
	b := newBench(t)
	p := &scriptedPrompter{answers: []string{""}}

	r := b.session(t, fullOptions(), p).Run(context.Background())

	require.ErrorIs(t, r.Err, ErrNoDeviceFound)
	assert.Equal(t, StateError, r.State)
	assert.Equal(t, 1, r.ExitCode())
	assert.Equal(t, []State{StateStart, StateLocate, StateError}, r.Trace)
	assert.Len(t, p.asked, 1)
}

func TestSession_NoDeviceAuto(t *testing.T) {
	b := newBench(t)
	opts := fullOptions()
	opts.Auto = true

	r := b.session(t, opts, &scriptedPrompter{}).Run(context.Background())

	require.ErrorIs(t, r.Err, ErrNoDeviceFound)
	assert.Equal(t, 1, r.ExitCode())
}

func TestSession_ManualPathAfterEmptyDiscovery(t *testing.T) {
	b := newBench(t)
	b.devices["/mnt/board"] = newFS(t, map[string]string{"boot_out.txt": bootBanner})
	opts := fullOptions()
	opts.Backup = false

	r := b.session(t, opts, &scriptedPrompter{answers: []string{"/mnt/board"}}).Run(context.Background())

	require.True(t, r.OK(), r.String())
	assert.Equal(t, "/mnt/board", r.Device.Path)
	assert.Contains(t, readTree(t, b.devices["/mnt/board"], ""), "code.py")
}

func TestSession_ExplicitDevicePath(t *testing.T) {
	b := newBench(t, circuitpy, circuitpy1)
	opts := fullOptions()
	opts.Auto = true
	opts.DevicePath = circuitpy1.Path

	r := b.session(t, opts, nil).Run(context.Background())

	require.True(t, r.OK(), r.String())
	assert.Equal(t, circuitpy1.Path, r.Device.Path)
}

func TestSession_BackupFailureIsNotFatal(t *testing.T) {
	b := newBench(t, circuitpy)
	b.host = &unpluggableFS{Filesystem: memfs.New(), budget: 1}
	opts := fullOptions()
	opts.Auto = true

	r := b.session(t, opts, nil).Run(context.Background())

	require.True(t, r.OK(), r.String())
	var berr *BackupError
	require.ErrorAs(t, r.BackupErr, &berr)
	require.NotNil(t, r.Backup)
	assert.False(t, r.Backup.Complete)
	assert.Contains(t, r.Trace, StateBackup)
	assert.Contains(t, r.String(), "backup:  incomplete")
}

func TestSession_DeviceUnpluggedMidCopy(t *testing.T) {
	mem := memfs.New()
	writeFiles(t, mem, map[string]string{"boot_out.txt": bootBanner})
	device := &unpluggableFS{Filesystem: mem, budget: 3}

	s := &Session{
		Options: PlanOptions{Auto: true},
		Locator: LocatorFunc(func() ([]Device, error) { return []Device{circuitpy}, nil }),
		Project: newFS(t, map[string]string{
			"a.py": "1", "b.py": "2", "c.py": "3", "d.py": "4", "e.py": "5",
		}),
		OpenDevice: func(Device) billy.Filesystem { return device },
		Present:    func(Device) error { return device.present() },
		Logger:     zaptest.NewLogger(t),
	}
	r := s.Run(context.Background())

	require.ErrorIs(t, r.Err, ErrDeviceUnavailable)
	assert.Equal(t, StateError, r.State)
	assert.NotEqual(t, 0, r.ExitCode())
	assert.Equal(t, []State{StateStart, StateLocate, StateSync, StateError}, r.Trace)
	assert.Equal(t, 3, r.Result.Copied)
	assert.Equal(t, 2, r.Result.Failed+r.Result.Skipped)
	assert.Contains(t, r.String(), "copied: 3")
}

func TestSession_DeviceGoneBeforeSync(t *testing.T) {
	b := newBench(t, circuitpy)
	s := b.session(t, fullOptions(), &scriptedPrompter{})
	s.Present = func(Device) error { return errors.New("no such file or directory") }

	r := s.Run(context.Background())

	require.ErrorIs(t, r.Err, ErrDeviceUnavailable)
	assert.Equal(t, []State{StateStart, StateLocate, StateError}, r.Trace)
}

func TestSession_DryRun(t *testing.T) {
	b := newBench(t, circuitpy)
	opts := fullOptions()
	opts.DryRun = true
	p := &scriptedPrompter{}

	r := b.session(t, opts, p).Run(context.Background())

	require.True(t, r.OK(), r.String())
	assert.Zero(t, p.prompts())
	assert.Nil(t, r.Backup)
	assert.True(t, r.Result.DryRun)
	assert.Equal(t, []string{"code.py"}, r.Result.Deleted)
	assert.Equal(t, "print('old')\n", readTree(t, b.devices[circuitpy.Path], "")["code.py"])
	assert.Contains(t, r.String(), "dry run")
}

func TestSession_Verify(t *testing.T) {
	b := newBench(t, circuitpy)
	opts := fullOptions()
	opts.Auto = true
	opts.Verify = true

	r := b.session(t, opts, nil).Run(context.Background())

	require.True(t, r.OK(), r.String())
	assert.Empty(t, r.Mismatches)
}

func TestSession_RejectsOldFirmware(t *testing.T) {
	b := newBench(t, circuitpy)
	opts := fullOptions()
	opts.Auto = true
	opts.MinVersion = ">= 9.0.0"

	r := b.session(t, opts, nil).Run(context.Background())

	assert.Equal(t, StateError, r.State)
	assert.Contains(t, r.Err.Error(), BootOutFile)
	assert.Equal(t, "print('old')\n", readTree(t, b.devices[circuitpy.Path], "")["code.py"])
}

func TestSession_InterruptDuringBackup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := newBench(t, circuitpy)
	opts := fullOptions()
	opts.Auto = true
	s := b.session(t, opts, nil)
	s.OpenDevice = func(d Device) billy.Filesystem {
		return cancellingFS{Filesystem: b.devices[d.Path], cancel: cancel}
	}

	r := s.Run(ctx)

	require.ErrorIs(t, r.Err, context.Canceled)
	assert.Equal(t, []State{StateStart, StateLocate, StateBackup, StateError}, r.Trace)
	require.NotNil(t, r.Backup)
	assert.False(t, r.Backup.Complete)
	assert.Equal(t, "print('old')\n", readTree(t, b.devices[circuitpy.Path], "")["code.py"])
}
