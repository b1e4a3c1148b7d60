package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/woliveiras/cpdeploy/pkg/deploy"
)

// Options holds the command-line flags of a cpdeploy run. Flags override
// the corresponding configuration values.
type Options struct {
	ConfigFile string
	ProjectDir string
	DevicePath string
	NoHelpers  bool
	NoBackup   bool
	Auto       bool
	DryRun     bool
	Verify     bool
	Verbose    bool
}

// Run is the main entrypoint for the CLI.
//
// Without a subcommand it deploys the project in the current directory (or
// --project) onto the CircuitPython board it finds. SIGINT and SIGTERM stop
// the sync before the next file and abort a pending prompt.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, NewStdUI(), os.Stdout)
}

// run is the internal implementation that allows injecting a custom UI
// (useful for tests and, later, different front-ends).
func run(ctx context.Context, args []string, ui UI, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no arguments provided")
	}
	return newApp(ui, out).execute(ctx, args[1:])
}

// app carries the state shared by all commands of one invocation.
type app struct {
	ui   UI
	out  io.Writer
	opts Options

	cfg    *Config
	logger *zap.Logger

	newLogger  func(LogConfig, bool) (*zap.Logger, error)
	newLocator func(DeviceConfig) *deploy.LocalLocator
}

func newApp(ui UI, out io.Writer) *app {
	return &app{
		ui:        ui,
		out:       out,
		newLogger: newLogger,
		newLocator: func(c DeviceConfig) *deploy.LocalLocator {
			return deploy.NewLocalLocator(c.Labels, c.SearchRoots)
		},
	}
}

func (a *app) execute(ctx context.Context, args []string) error {
	if u, ok := a.ui.(*stdUI); ok {
		u.ctx = ctx
	}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpdeploy",
		Short: "Deploy a CircuitPython project onto a connected board",
		Long: `cpdeploy copies a CircuitPython project onto the board's CIRCUITPY drive.

It finds the drive, offers to back it up, replaces the entries the project
owns (code, lib/, helper scripts) and leaves everything else on the device
alone. Each deletion is confirmed unless --auto is given.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.deploy,
	}
	cmd.SetOut(a.out)
	cmd.SetErr(a.out)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.opts.ConfigFile, "config", "", "config file (default "+ConfigFileName+" in the project or $XDG_CONFIG_HOME/cpdeploy)")
	pf.StringVar(&a.opts.ProjectDir, "project", "", "project directory (default \".\")")
	pf.StringVar(&a.opts.DevicePath, "device", "", "mount path of the board, skips discovery")
	pf.BoolVar(&a.opts.Auto, "auto", false, "pick the first board and answer yes to every prompt")
	pf.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "debug logging")

	f := cmd.Flags()
	f.BoolVar(&a.opts.NoHelpers, "no-helpers", false, "do not copy the REPL helper scripts")
	f.BoolVar(&a.opts.NoBackup, "no-backup", false, "do not back up the board before syncing")
	f.BoolVar(&a.opts.DryRun, "dry-run", false, "show what would change without touching the board")
	f.BoolVar(&a.opts.Verify, "verify", false, "compare every copied file with its source after the sync")

	cmd.AddCommand(a.devicesCmd(), a.backupCmd())
	return cmd
}

func (a *app) devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the CircuitPython boards that can be deployed to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := deploy.FindDevices(a.newLocator(a.cfg.Device))
			if err != nil {
				return err
			}
			if len(devs) == 0 {
				a.ui.Println("No CircuitPython device found.")
				return nil
			}
			a.ui.Println(renderDevices(devs))
			return nil
		},
	}
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up a board without deploying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session()
			dev, err := s.Locate()
			if err != nil {
				return err
			}
			if err := deploy.MountPresent(dev.Path)(); err != nil {
				return err
			}
			rec, err := s.Backups.Backup(cmd.Context(), s.Device(dev), dev)
			if rec.Destination != "" {
				a.ui.Printf("backup: %s (%d files)\n", rec.Destination, rec.Copied())
			}
			if len(rec.Skipped) > 0 {
				a.ui.Printf("not backed up: %s\n", strings.Join(rec.Skipped, ", "))
			}
			return err
		},
	}
}

// setup loads the configuration and builds the logger before any command
// runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	searchDir := a.opts.ProjectDir
	if searchDir == "" {
		searchDir = "."
	}
	cfg, err := LoadConfig(a.opts.ConfigFile, searchDir)
	if err != nil {
		return err
	}
	if a.opts.ProjectDir != "" {
		cfg.Project.Dir = a.opts.ProjectDir
	}
	abs, err := filepath.Abs(cfg.Project.Dir)
	if err != nil {
		return fmt.Errorf("cannot resolve project directory %s: %w", cfg.Project.Dir, err)
	}
	cfg.Project.Dir = abs
	a.cfg = cfg

	logger, err := a.newLogger(cfg.Log, a.opts.Verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logger.Debug("configuration loaded",
		zap.String("project", cfg.Project.Dir),
		zap.String("backup_dir", cfg.Backup.Dir),
		zap.Strings("labels", cfg.Device.Labels))
	return nil
}

func (a *app) deploy(cmd *cobra.Command, _ []string) error {
	r := a.session().Run(cmd.Context())
	if r.Plan != nil && r.Result.DryRun {
		a.ui.Println(r.Plan.String())
	}
	a.ui.Printf("%s", renderReport(r))
	if !r.OK() {
		return fmt.Errorf("deploy failed: %w", r.Err)
	}
	return nil
}

func (a *app) planOptions() deploy.PlanOptions {
	c := a.cfg
	return deploy.PlanOptions{
		ProjectDir:  c.Project.Dir,
		LibDir:      c.Project.LibDir,
		HelpersDir:  c.Project.HelpersDir,
		Helpers:     c.Project.Helpers,
		Exclude:     c.Project.Exclude,
		CopyHelpers: !a.opts.NoHelpers,
		Backup:      !a.opts.NoBackup,
		Auto:        a.opts.Auto,
		DryRun:      a.opts.DryRun,
		Verify:      a.opts.Verify,
		AutoBackup:  c.Backup.Auto,
		BackupRoot:  c.Backup.Dir,
		MinVersion:  c.Device.MinVersion,
		DevicePath:  a.opts.DevicePath,
	}
}

func (a *app) session() *deploy.Session {
	loc := a.newLocator(a.cfg.Device)
	return &deploy.Session{
		Options:  a.planOptions(),
		Locator:  loc,
		Probe:    loc.Probe,
		Prompter: a.ui,
		Project:  osfs.New(a.cfg.Project.Dir),
		Backups: &deploy.BackupManager{
			Host:   osfs.New(a.cfg.Backup.Dir),
			Root:   a.cfg.Backup.Dir,
			Logger: a.logger,
		},
		Logger: a.logger,
	}
}
