// Package logging sets up structured slog logging for ftsync.
//
// By default records go to stderr only. With --debug they are also written
// as JSON to a size-rotated file under ~/.ftsync/logs/, which `ftsync logs`
// can tail and follow.
package logging
