package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/lock"
	"github.com/Aman-CERP/ftsync/internal/reconcile"
)

func newCheckCmd(global *globalOptions) *cobra.Command {
	var repair, wait bool

	cmd := &cobra.Command{
		Use:   "check [root]",
		Short: "Verify that records and index entries correspond",
		Long: `Verify that every record refers to its own index entry and that
every index entry belongs to a record.

With --repair, orphaned entries are deleted and bad references cleared so
the next pass re-indexes the affected files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, global, args)
			if err != nil {
				return err
			}
			defer e.close()

			// Repairs must not interleave with a pass.
			if repair {
				l := lock.NewAt(e.paths.Lock)
				if err := acquire(cmd.Context(), l, wait); err != nil {
					return err
				}
				defer func() { _ = l.Unlock() }()
			}

			s, err := e.openExisting()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			if err := e.checkRoot(ctx, s, false); err != nil {
				return err
			}

			checker := reconcile.NewChecker(s.metadata, s.index, e.logger)
			result, err := checker.Check(ctx)
			if err != nil {
				return err
			}

			e.out.Statusf("", "Checked %d records and %d index entries in %s",
				result.Records, result.Entries, result.Duration.Round(time.Millisecond))
			if result.Unassigned > 0 {
				e.out.Dim(fmt.Sprintf("  %d records are waiting for the next pass to index them", result.Unassigned))
			}
			if result.Consistent() {
				e.out.Success("Stores are consistent")
				return nil
			}

			for _, issue := range result.Inconsistencies {
				e.out.Warning(describeIssue(issue))
			}
			if !repair {
				return ftserrors.New(ftserrors.ErrCodeInconsistent,
					fmt.Sprintf("found %d inconsistencies", len(result.Inconsistencies)), nil).
					WithSuggestion("run 'ftsync check --repair'")
			}

			repaired, err := checker.Repair(ctx, result.Inconsistencies)
			if err != nil {
				return err
			}
			e.out.Successf("Deleted %d orphaned entries and cleared %d references", repaired.EntriesDeleted, repaired.RefsCleared)
			if repaired.RefsCleared > 0 {
				e.out.Dim("  Run 'ftsync sync' to re-index the affected files.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Fix the inconsistencies found")
	cmd.Flags().BoolVar(&wait, "wait", false, "With --repair, wait for a running pass to finish")
	return cmd
}

func describeIssue(issue reconcile.Inconsistency) string {
	msg := fmt.Sprintf("%s: entry %d", issue.Type, issue.IndexID)
	if issue.Path != "" {
		msg += " (" + issue.Path + ")"
	}
	if issue.Details != "" {
		msg += ": " + issue.Details
	}
	return msg
}
