package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ftsync/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanEntry is an index entry no record refers to.
	InconsistencyOrphanEntry InconsistencyType = iota
	// InconsistencyDanglingRef is a record referring to a missing entry.
	InconsistencyDanglingRef
	// InconsistencySharedEntry is an entry referred to by more than one record.
	InconsistencySharedEntry
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanEntry:
		return "orphan_entry"
	case InconsistencyDanglingRef:
		return "dangling_ref"
	case InconsistencySharedEntry:
		return "shared_entry"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType
	IndexID int64
	Path    string // empty for orphan entries
	Details string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Records is the number of file records verified.
	Records int
	// Entries is the number of index entries verified.
	Entries int
	// Unassigned counts records that have no entry yet (not an issue; the
	// next pass indexes them).
	Unassigned int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// Consistent reports whether no issues were found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// RepairResult counts what Repair fixed.
type RepairResult struct {
	EntriesDeleted int
	RefsCleared    int
}

// Checker validates that records and index entries correspond one to one.
type Checker struct {
	metadata store.MetadataStore
	index    store.FullTextIndex
	logger   *slog.Logger
}

// NewChecker creates a new checker with the given stores.
func NewChecker(metadata store.MetadataStore, index store.FullTextIndex, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{metadata: metadata, index: index, logger: logger}
}

// Check compares every record against every entry.
func (c *Checker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	records, err := c.metadata.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	ids, err := c.index.AllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index entries: %w", err)
	}

	entries := make(map[int64]bool, len(ids))
	for _, id := range ids {
		entries[id] = true
	}

	result := &CheckResult{Records: len(records), Entries: len(ids)}

	// Records are ordered by path, so the first owner of an entry is the
	// lexicographically smallest path.
	owner := make(map[int64]string, len(records))
	for _, rec := range records {
		id, ok := rec.Index.ID()
		if !ok {
			result.Unassigned++
			continue
		}
		if !entries[id] {
			result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
				Type:    InconsistencyDanglingRef,
				IndexID: id,
				Path:    rec.Path,
				Details: "record refers to a missing index entry",
			})
			continue
		}
		if first, shared := owner[id]; shared {
			result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
				Type:    InconsistencySharedEntry,
				IndexID: id,
				Path:    rec.Path,
				Details: "index entry already referenced by " + first,
			})
			continue
		}
		owner[id] = rec.Path
	}

	for _, id := range ids {
		if _, ok := owner[id]; !ok {
			result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
				Type:    InconsistencyOrphanEntry,
				IndexID: id,
				Details: "index entry without a record",
			})
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Repair fixes detected inconsistencies.
//   - Orphan entries are deleted from the index.
//   - Dangling and shared references are cleared, so the next pass gives the
//     record a fresh entry.
//
// A store failure stops the repair; what was fixed so far is reported.
func (c *Checker) Repair(ctx context.Context, issues []Inconsistency) (*RepairResult, error) {
	result := &RepairResult{}

	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch issue.Type {
		case InconsistencyOrphanEntry:
			err := c.index.DeleteByID(ctx, issue.IndexID)
			if errors.Is(err, store.ErrEntryNotFound) {
				continue
			}
			if err != nil {
				return result, fmt.Errorf("delete orphan entry %d: %w", issue.IndexID, err)
			}
			result.EntriesDeleted++

		case InconsistencyDanglingRef, InconsistencySharedEntry:
			err := c.metadata.UpdateIndexID(ctx, issue.Path, store.IndexRef{})
			if errors.Is(err, store.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return result, fmt.Errorf("clear reference of %s: %w", issue.Path, err)
			}
			result.RefsCleared++
		}
	}

	if result.EntriesDeleted > 0 || result.RefsCleared > 0 {
		c.logger.Info("consistency_repaired",
			slog.Int("entries_deleted", result.EntriesDeleted),
			slog.Int("refs_cleared", result.RefsCleared))
	}
	return result, nil
}

// Reset clears every reference and deletes every index entry, so the next
// pass gives each file a fresh entry. References are cleared first: an
// interrupted reset leaves orphans, which a later Check reports.
func (c *Checker) Reset(ctx context.Context) (*RepairResult, error) {
	result := &RepairResult{}

	records, err := c.metadata.ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("list records: %w", err)
	}
	for _, rec := range records {
		if !rec.Index.Assigned() {
			continue
		}
		if err := c.metadata.UpdateIndexID(ctx, rec.Path, store.IndexRef{}); err != nil {
			return result, fmt.Errorf("clear reference of %s: %w", rec.Path, err)
		}
		result.RefsCleared++
	}

	ids, err := c.index.AllIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("list index entries: %w", err)
	}
	for _, id := range ids {
		err := c.index.DeleteByID(ctx, id)
		if errors.Is(err, store.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return result, fmt.Errorf("delete entry %d: %w", id, err)
		}
		result.EntriesDeleted++
	}

	c.logger.Info("index_reset",
		slog.Int("entries_deleted", result.EntriesDeleted),
		slog.Int("refs_cleared", result.RefsCleared))
	return result, nil
}

// NeedsReset reports whether the records' references were made against an
// index other than the one named identity (see store.IndexIdentity). Records
// never tied to an index are accepted when they match it exactly.
func (c *Checker) NeedsReset(ctx context.Context, identity string) (bool, error) {
	bound, err := c.metadata.GetState(ctx, store.StateKeyIndex)
	if err != nil {
		return false, err
	}
	switch bound {
	case identity:
		return false, nil
	case "":
		result, err := c.Check(ctx)
		if err != nil {
			return false, err
		}
		return !result.Consistent(), nil
	default:
		return true, nil
	}
}

// Adopt ties the records to the index named identity, resetting both stores
// first when NeedsReset. It reports whether a reset happened.
func (c *Checker) Adopt(ctx context.Context, identity string) (bool, error) {
	bound, err := c.metadata.GetState(ctx, store.StateKeyIndex)
	if err != nil {
		return false, err
	}
	if bound == identity {
		return false, nil
	}

	reset, err := c.NeedsReset(ctx, identity)
	if err != nil {
		return false, err
	}
	if reset {
		c.logger.Warn("index_replaced",
			slog.String("previous", bound),
			slog.String("current", identity))
		if _, err := c.Reset(ctx); err != nil {
			return false, err
		}
	}
	if err := c.metadata.SetState(ctx, store.StateKeyIndex, identity); err != nil {
		return reset, fmt.Errorf("record index identity: %w", err)
	}
	return reset, nil
}

// QuickCheck only compares counts: records with an entry versus entries.
func (c *Checker) QuickCheck(ctx context.Context) (bool, error) {
	records, err := c.metadata.ListAll(ctx)
	if err != nil {
		return false, err
	}
	assigned := 0
	for _, rec := range records {
		if rec.Index.Assigned() {
			assigned++
		}
	}
	count, err := c.index.Count(ctx)
	if err != nil {
		return false, err
	}

	if assigned != count {
		c.logger.Debug("index counts mismatch",
			slog.Int("records", assigned),
			slog.Int("entries", count))
	}
	return assigned == count, nil
}
