package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/store"
)

type searchOptions struct {
	root  string
	count bool
	limit int
	json  bool
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the full-text index",
		Long: `Search the full-text index of a synced root.

Every term must match. Quote a phrase to match its words in order, and
end a term with * to match it as a prefix.

Examples:
  ftsync search deadline
  ftsync search '"release notes"' draft*
  ftsync search --count invoice`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.Join(args, " ")
			if store.ParseQuery(expr).Empty() {
				return ftserrors.New(ftserrors.ErrCodeQueryEmpty, "query has no searchable terms", nil).
					WithDetail("query", expr)
			}

			var rootArgs []string
			if opts.root != "" {
				rootArgs = []string{opts.root}
			}
			e, err := newEnv(cmd, global, rootArgs)
			if err != nil {
				return err
			}
			defer e.close()

			s, err := e.openExisting()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			if err := e.checkRoot(ctx, s, false); err != nil {
				return err
			}

			if opts.count {
				n, err := s.index.MatchCount(ctx, expr)
				if err != nil {
					return ftserrors.Wrap(ftserrors.ErrCodeSearchFailed, err)
				}
				if opts.json {
					return writeJSON(cmd, map[string]int{"count": n})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			}

			matches, err := s.index.MatchAll(ctx, expr, opts.limit)
			if err != nil {
				return ftserrors.Wrap(ftserrors.ErrCodeSearchFailed, err)
			}
			paths, err := pathsByID(cmd, s)
			if err != nil {
				return err
			}

			hits := make([]searchHit, 0, len(matches))
			for _, m := range matches {
				hits = append(hits, searchHit{ID: m.ID, Path: paths[m.ID], Subject: m.Subject})
			}
			if opts.json {
				return writeJSON(cmd, hits)
			}
			if len(hits) == 0 {
				e.out.Status("", "No matches")
				return nil
			}

			rows := make([][]string, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, []string{strconv.FormatInt(h.ID, 10), h.Path, h.Subject})
			}
			e.out.Table([]string{"ID", "PATH", "SUBJECT"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.root, "root", "", "Synced root to search (default: nearest configured ancestor)")
	cmd.Flags().BoolVarP(&opts.count, "count", "c", false, "Print only the number of matches")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum results (0 for all)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print results as JSON")

	return cmd
}

type searchHit struct {
	ID      int64  `json:"id"`
	Path    string `json:"path"`
	Subject string `json:"subject"`
}

// pathsByID maps assigned index IDs back to record paths.
func pathsByID(cmd *cobra.Command, s *stores) (map[int64]string, error) {
	records, err := s.metadata.ListAll(cmd.Context())
	if err != nil {
		return nil, err
	}
	paths := make(map[int64]string, len(records))
	for _, rec := range records {
		if id, ok := rec.Index.ID(); ok {
			paths[id] = rec.Path
		}
	}
	return paths, nil
}
