// Package sandbox defines the contract this module consumes from the
// external process-sandboxing collaborator (spec §1 OUT OF SCOPE: "process
// sandboxing syscall instrumentation (we consume its observations)"; spec
// §6 "Consumed sandbox contract"; spec §9's ProcessManager::spawn /
// Sandbox::run capability split).
package sandbox

import (
	"context"

	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
)

// Request is everything the sandbox needs to run one operation's command.
type Request struct {
	Command       opgraph.CommandInfo
	TempDir       fsstate.Path // always implicitly readable and writable
	AllowedReads  []fsstate.Path
	AllowedWrites []fsstate.Path
}

// Result is what the sandbox reports after the command exits.
type Result struct {
	ExitCode       int
	ObservedReads  []fsstate.Path
	ObservedWrites []fsstate.Path
}

// Succeeded reports whether exit code zero was observed. The Evaluator
// additionally treats any sandbox-reported access violation as failure;
// conforming Sandbox implementations fold that into a non-zero ExitCode
// rather than a separate signal, per spec §6: "A read or write to a path
// not covered by its allow list is a sandbox violation and forces a
// non-zero exit code; the Evaluator treats both identically."
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Sandbox is the capability the Evaluator depends on to actually run a
// command. Production code uses Exec (below); tests substitute a scripted
// fake, per spec §9's design note ("Tests substitute mock
// implementations").
type Sandbox interface {
	Run(ctx context.Context, req Request) (Result, error)
}
