package runner

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/soupd/soupd/internal/buildcore"
	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
	"github.com/soupd/soupd/internal/sandbox"
	"github.com/soupd/soupd/internal/statefile"
)

// fakeGeneratorSandbox stands in for a real Sandbox plus a real per-language
// generator: when asked to run the generator executable, it writes a
// trivial one-operation EvaluateGraph next to the parameters file it was
// pointed at (the generator's only real job, for these tests); any other
// command (the evaluate graph's own operation) just succeeds.
type fakeGeneratorSandbox struct {
	generatorExecutable string

	mu             sync.Mutex
	genRuns        int
	otherRuns      int
	lastOtherReads []fsstate.Path
}

func newFakeGeneratorSandbox(executable string) *fakeGeneratorSandbox {
	return &fakeGeneratorSandbox{generatorExecutable: executable}
}

func (f *fakeGeneratorSandbox) Run(ctx context.Context, req sandbox.Request) (sandbox.Result, error) {
	if string(req.Command.Executable) == f.generatorExecutable {
		f.mu.Lock()
		f.genRuns++
		f.mu.Unlock()

		soupTargetDir := filepath.Dir(req.Command.Arguments)
		evaluateGraphPath := filepath.Join(soupTargetDir, buildcore.EvaluateGraphFileName)

		fs := fsstate.New(fsstate.OSFileSystem{})
		g := opgraph.New()
		id := g.AddOperation(opgraph.OperationInfo{
			Title:   "noop",
			Command: opgraph.CommandInfo{Executable: "/bin/true"},
		})
		g.SetRoots([]opgraph.OperationID{id})
		if err := statefile.WriteGraph(evaluateGraphPath, g, fs); err != nil {
			return sandbox.Result{ExitCode: 1}, nil
		}
		return sandbox.Result{ExitCode: 0, ObservedReads: req.AllowedReads, ObservedWrites: req.AllowedWrites}, nil
	}

	f.mu.Lock()
	f.otherRuns++
	f.lastOtherReads = req.AllowedReads
	f.mu.Unlock()
	return sandbox.Result{ExitCode: 0, ObservedReads: req.AllowedReads, ObservedWrites: req.AllowedWrites}, nil
}
