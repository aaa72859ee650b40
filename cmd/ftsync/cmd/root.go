// Package cmd provides the CLI commands for ftsync.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/profiling"
	"github.com/Aman-CERP/ftsync/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	debug      bool
	configPath string
	dataDir    string
	logLevel   string
	profile    profiling.Options
	profiler   *profiling.Session
}

// stopProfiling flushes any running profiles.
func (o *globalOptions) stopProfiling() error {
	err := o.profiler.Stop()
	o.profiler = nil
	return err
}

// NewRootCmd creates the root command for the ftsync CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalOptions{})
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ftsync",
		Short: "Keep a directory of text files in sync with a full-text index",
		Long: `ftsync reconciles a directory of text files with a full-text search index.

Each pass compares file modification times with what was recorded last time
and applies the minimal set of additions, updates and deletions. Passes are
safe to repeat and to interrupt: the next pass picks up where the last one
stopped.

Run 'ftsync sync' in a directory to index it, then 'ftsync search'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("ftsync version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return ftserrors.ValidationError(err.Error(), err)
	})

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.ftsync/logs/")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Project config file (default: .ftsync.yaml in the root)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory holding the stores (default: <root>/.ftsync)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if !opts.profile.Enabled() {
			return nil
		}
		s, err := profiling.Start(opts.profile)
		if err != nil {
			return err
		}
		opts.profiler = s
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return opts.stopProfiling()
	}

	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with ctx. Errors are classified for
// presentation with errors.FormatForCLI.
func Execute(ctx context.Context) error {
	opts := &globalOptions{}
	err := newRootCmd(opts).ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if perr := opts.stopProfiling(); err == nil {
		err = perr
	}
	return classify(err)
}
