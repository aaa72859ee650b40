package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsync/internal/output"
	"github.com/Aman-CERP/ftsync/internal/reconcile"
)

type syncOptions struct {
	pass    passOptions
	verbose bool
	json    bool
}

func newSyncCmd(global *globalOptions) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync [root]",
		Short: "Run one reconciliation pass",
		Long: `Run one reconciliation pass over the root directory.

New files are indexed, files whose modification time advanced are
re-indexed, and records for files that no longer exist are removed.
Unreadable files are skipped and reported; the pass still completes.

Examples:
  ftsync sync
  ftsync sync ~/notes --dry-run -v
  ftsync sync --fail-fast --wait`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, global, args)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.runPass(cmd.Context(), opts.pass)
			if res != nil {
				if opts.json {
					if jerr := writeJSON(cmd, summarize(res)); jerr != nil {
						return jerr
					}
				} else {
					printResult(e.out, res, opts.verbose)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.pass.dryRun, "dry-run", false, "Report changes without applying them")
	cmd.Flags().BoolVar(&opts.pass.failFast, "fail-fast", false, "Abort on the first unreadable file")
	cmd.Flags().BoolVar(&opts.pass.wait, "wait", false, "Wait for a running pass to finish instead of failing")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "List every changed path")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")

	return cmd
}

var transitionMarks = map[reconcile.Transition]string{
	reconcile.TransitionAdded:     "+",
	reconcile.TransitionUpdated:   "~",
	reconcile.TransitionRecovered: "^",
	reconcile.TransitionDeleted:   "-",
	reconcile.TransitionSkipped:   "!",
	reconcile.TransitionFailed:    "x",
}

// printResult prints a pass summary, and with verbose every change.
func printResult(out *output.Writer, res *reconcile.Result, verbose bool) {
	if verbose {
		for _, c := range res.Changes {
			out.Statusf(transitionMarks[c.Transition], "%s", c.Path)
		}
	}
	for _, f := range res.Failures {
		out.Error(f.Error())
	}

	verb := "Synced"
	if res.DryRun {
		verb = "Would sync"
	}
	msg := fmt.Sprintf("%s %s: %d added, %d updated, %d deleted", verb, res.Root, res.Added, res.Updated, res.Deleted)
	if res.Recovered > 0 {
		msg += fmt.Sprintf(", %d re-indexed", res.Recovered)
	}
	detail := fmt.Sprintf("%d scanned, %d unchanged", res.Scanned, res.Unchanged)
	if res.Skipped > 0 {
		detail += fmt.Sprintf(", %d skipped", res.Skipped)
	}
	msg += fmt.Sprintf(" (%s) in %s", detail, res.Duration.Round(time.Millisecond))

	if len(res.Failures) > 0 {
		out.Warning(msg)
		return
	}
	out.Success(msg)
}

// passSummary is the JSON form of a pass result.
type passSummary struct {
	RunID      string          `json:"run_id"`
	Root       string          `json:"root"`
	DryRun     bool            `json:"dry_run"`
	Scanned    int             `json:"scanned"`
	Added      int             `json:"added"`
	Updated    int             `json:"updated"`
	Recovered  int             `json:"recovered"`
	Deleted    int             `json:"deleted"`
	Unchanged  int             `json:"unchanged"`
	Skipped    int             `json:"skipped"`
	DurationMS int64           `json:"duration_ms"`
	Changes    []changeSummary `json:"changes"`
	Failures   []failure       `json:"failures,omitempty"`
}

type changeSummary struct {
	Path       string `json:"path"`
	Transition string `json:"transition"`
}

type failure struct {
	Path  string `json:"path"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

func summarize(res *reconcile.Result) passSummary {
	s := passSummary{
		RunID:      res.RunID,
		Root:       res.Root,
		DryRun:     res.DryRun,
		Scanned:    res.Scanned,
		Added:      res.Added,
		Updated:    res.Updated,
		Recovered:  res.Recovered,
		Deleted:    res.Deleted,
		Unchanged:  res.Unchanged,
		Skipped:    res.Skipped,
		DurationMS: res.Duration.Milliseconds(),
		Changes:    make([]changeSummary, 0, len(res.Changes)),
	}
	for _, c := range res.Changes {
		s.Changes = append(s.Changes, changeSummary{Path: c.Path, Transition: string(c.Transition)})
	}
	for _, f := range res.Failures {
		s.Failures = append(s.Failures, failure{Path: f.Path, Op: f.Op, Error: f.Err.Error()})
	}
	return s
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
