// Package buildcore holds the error kinds and well-known paths shared by
// every other internal package (spec §7 Error Handling Design, §2
// "Constants & Paths").
package buildcore

import "golang.org/x/xerrors"

// Error kinds, per spec §7's table. Callers use errors.Is/xerrors.Is
// against these sentinels; wrapping preserves the original cause.
var (
	// ErrBuildFailed: an operation exited non-zero or violated sandbox
	// access. Policy: persist partial results, surface to caller.
	ErrBuildFailed = xerrors.New("buildcore: build failed")

	// ErrMissingEvaluateGraph: Generate did not produce the expected graph
	// file. Policy: fatal.
	ErrMissingEvaluateGraph = xerrors.New("buildcore: missing evaluate graph")

	// ErrDependencyNotBuilt: the runner consulted its build cache for a
	// package not yet built. Policy: fatal (programmer error).
	ErrDependencyNotBuilt = xerrors.New("buildcore: dependency not built")

	// ErrCircularDependency: detected by the external resolver. Policy:
	// fatal, surfaced unchanged.
	ErrCircularDependency = xerrors.New("buildcore: circular dependency")

	// ErrCancelled: caller-requested cancellation. Policy: persist partial
	// results, return.
	ErrCancelled = xerrors.New("buildcore: cancelled")
)
