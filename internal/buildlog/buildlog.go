// Package buildlog wraps the standard logger with the active-package-id
// correlation original_source's Log::SetActiveId/Diag/Info provide, so
// concurrent package builds still produce attributable log lines.
package buildlog

import (
	"log"
)

// ID identifies the package currently being built, for log-line correlation
// only; it carries no other meaning.
type ID string

// goroutine-local correlation isn't available in Go, so WithActiveID scopes
// the id to the call it wraps and logs it explicitly rather than relying on
// ambient goroutine state.
func WithActiveID(id ID, fn func() error) error {
	Info(id, "starting")
	err := fn()
	if err != nil {
		Diag(id, "failed: %v", err)
		return err
	}
	Info(id, "done")
	return nil
}

// Info logs a correlated informational line.
func Info(id ID, format string, args ...interface{}) {
	log.Printf("[%s] "+format, prepend(id, args)...)
}

// Diag logs a correlated diagnostic line (errors, sandbox violations, skip
// decisions under -v, etc).
func Diag(id ID, format string, args ...interface{}) {
	log.Printf("[%s] diag: "+format, prepend(id, args)...)
}

func prepend(id ID, args []interface{}) []interface{} {
	out := make([]interface{}, 0, len(args)+1)
	out = append(out, id)
	out = append(out, args...)
	return out
}
