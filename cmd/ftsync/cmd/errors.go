package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/lock"
	"github.com/Aman-CERP/ftsync/internal/reconcile"
	"github.com/Aman-CERP/ftsync/internal/store"
)

// classify turns errors from the internal packages into structured errors
// with codes and hints. Errors that already carry a code pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := ftserrors.As(err); ok {
		return err
	}

	var passErr *reconcile.PassError
	switch {
	case errors.As(err, &passErr):
		se := ftserrors.New(ftserrors.ErrCodePassPartial, err.Error(), err).
			WithSuggestion("fix the files listed above and run the pass again")
		return se.WithDetail("failed", fmt.Sprint(len(passErr.Failures)))

	case errors.Is(err, lock.ErrLocked):
		return ftserrors.New(ftserrors.ErrCodeLocked, "another ftsync pass is running on this data directory", err).
			WithSuggestion("wait for it to finish, or use --wait")

	case errors.Is(err, store.ErrTokenizerMismatch):
		return ftserrors.New(ftserrors.ErrCodeTokenizerMismatch, err.Error(), err).
			WithSuggestion("the index was built with another tokenizer; delete the index file and run 'ftsync sync' to rebuild it")

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ftserrors.New(ftserrors.ErrCodeCanceled, "interrupted", err).
			WithSuggestion("completed changes are kept; run the pass again to finish")

	case errors.Is(err, fs.ErrNotExist):
		return ftserrors.New(ftserrors.ErrCodeRootNotFound, err.Error(), err)

	case errors.Is(err, fs.ErrPermission):
		return ftserrors.New(ftserrors.ErrCodePermission, err.Error(), err)

	default:
		return ftserrors.Wrap(ftserrors.ErrCodeInternal, err)
	}
}

// storeOpenError wraps a failure to open one of the stores.
func storeOpenError(what, path string, err error) error {
	if errors.Is(err, store.ErrTokenizerMismatch) {
		return classify(err).(*ftserrors.SyncError).WithDetail("index", path)
	}
	return ftserrors.New(ftserrors.ErrCodeStoreOpen, fmt.Sprintf("failed to open %s: %v", what, err), err).
		WithDetail("path", path)
}
