// Package main provides the entry point for the ftsync CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aman-CERP/ftsync/cmd/ftsync/cmd"
	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, ftserrors.FormatForCLI(err))
		os.Exit(ftserrors.ExitCode(err))
	}
}
