package cmd

import (
	"io/fs"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsync/internal/reconcile"
	"github.com/Aman-CERP/ftsync/internal/store"
)

// statusReport is what status prints, also as JSON.
type statusReport struct {
	Root           string `json:"root"`
	DataDir        string `json:"data_dir"`
	Synced         bool   `json:"synced"`
	Backend        string `json:"backend"`
	Tokenizer      string `json:"tokenizer"`
	Records        int    `json:"records"`
	Indexed        int    `json:"indexed"`
	Unassigned     int    `json:"unassigned"`
	Entries        int    `json:"entries"`
	ReindexPending bool   `json:"reindex_pending"`
	LastPass       string `json:"last_pass,omitempty"`
	LastRunID      string `json:"last_run_id,omitempty"`
	SizeBytes      uint64 `json:"size_bytes"`
}

func newStatusCmd(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [root]",
		Short: "Show what the stores hold for a root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, global, args)
			if err != nil {
				return err
			}
			defer e.close()

			report := statusReport{
				Root:      e.root,
				DataDir:   e.dataDir,
				Backend:   e.cfg.Storage.Backend,
				Tokenizer: e.cfg.Storage.Tokenizer,
			}
			if !e.hasStores() {
				if asJSON {
					return writeJSON(cmd, report)
				}
				e.out.Warningf("%s has not been synced yet", e.root)
				e.out.Dim("  Run 'ftsync sync' to index it.")
				return nil
			}

			if detected := store.DetectBackend(e.paths.IndexBase); detected != "" && string(detected) != e.cfg.Storage.Backend {
				if !asJSON {
					e.out.Warningf("index on disk uses the %s backend; config selects %s", detected, e.cfg.Storage.Backend)
				}
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

			records, err := s.metadata.ListAll(ctx)
			if err != nil {
				return err
			}
			report.Synced = true
			report.Records = len(records)
			for _, rec := range records {
				if rec.Index.Assigned() {
					report.Indexed++
				}
			}
			report.Unassigned = report.Records - report.Indexed
			if report.Entries, err = s.index.Count(ctx); err != nil {
				return err
			}
			if report.LastPass, err = s.metadata.GetState(ctx, store.StateKeyLastPass); err != nil {
				return err
			}
			if report.LastRunID, err = s.metadata.GetState(ctx, store.StateKeyLastRunID); err != nil {
				return err
			}
			stale, err := reconcile.NewChecker(s.metadata, s.index, e.logger).NeedsReset(ctx, e.indexIdentity(s))
			if err != nil {
				return err
			}
			report.ReindexPending = stale
			report.SizeBytes = dirSize(e.dataDir)

			if asJSON {
				return writeJSON(cmd, report)
			}
			printStatus(e, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func printStatus(e *env, r statusReport) {
	lastPass := "never"
	if t, err := time.Parse(time.RFC3339, r.LastPass); err == nil {
		lastPass = humanize.Time(t) + " (" + r.LastPass + ")"
	}

	e.out.Header("ftsync status")
	e.out.KeyValues(
		[2]string{"Root", r.Root},
		[2]string{"Data dir", r.DataDir},
		[2]string{"Backend", r.Backend + " / " + r.Tokenizer + " tokenizer"},
		[2]string{"Records", humanize.Comma(int64(r.Records))},
		[2]string{"Indexed", humanize.Comma(int64(r.Indexed))},
		[2]string{"Pending", strconv.Itoa(r.Unassigned)},
		[2]string{"Index entries", humanize.Comma(int64(r.Entries))},
		[2]string{"Last pass", lastPass},
		[2]string{"Last run", orDash(r.LastRunID)},
		[2]string{"Size on disk", humanize.Bytes(r.SizeBytes)},
	)
	if r.ReindexPending {
		e.out.Newline()
		e.out.Warning("the full-text index does not hold these records; the next sync re-indexes every file")
		return
	}
	if r.Entries != r.Indexed {
		e.out.Newline()
		e.out.Warningf("%d index entries for %d indexed records; run 'ftsync check'", r.Entries, r.Indexed)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// dirSize sums the sizes of regular files under dir, ignoring errors.
func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
