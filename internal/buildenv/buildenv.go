// Package buildenv captures the ambient configuration knobs this module
// reads from its process environment (spec's AMBIENT STACK, Configuration),
// the way distr1-distri's internal/env exposes $DISTRIROOT.
package buildenv

import (
	"os"
	"runtime"
	"strconv"
)

// SoupRoot is the root directory builds are rooted under, read from
// $SOUPROOT with a $HOME/soup fallback.
var SoupRoot = findSoupRoot()

func findSoupRoot() string {
	if v := os.Getenv("SOUPROOT"); v != "" {
		return v
	}
	return os.ExpandEnv("$HOME/soup")
}

// Jobs is the default Evaluator concurrency, read from $SOUP_JOBS with a
// runtime.NumCPU() fallback, mirroring batch.go's -jobs flag default.
var Jobs = findJobs()

func findJobs() int {
	if v := os.Getenv("SOUP_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// ForceRebuild, when set via $SOUP_FORCE_REBUILD=1, disables the
// Evaluator's skip decision for every operation.
var ForceRebuild = os.Getenv("SOUP_FORCE_REBUILD") == "1"
