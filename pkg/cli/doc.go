// Package cli provides the command-line interface used by cpdeploy.
//
// The root command locates a CircuitPython board, offers a backup, syncs
// the project onto it and prints a report. The devices and backup
// subcommands expose discovery and backup on their own. Use `Run` as the
// entry point when embedding the CLI in other tools.
//
// Example usage:
//
//	if err := cli.Run(os.Args); err != nil {
//	    log.Fatalf("cpdeploy: %v", err)
//	}
package cli
