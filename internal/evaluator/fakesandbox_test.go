package evaluator

import (
	"context"
	"sync"
	"time"

	"github.com/soupd/soupd/internal/sandbox"
)

// fakeSandbox is a scripted Sandbox: by default it "succeeds" and touches
// every allowed-write path in fs at the given clock time, the way a real
// compiler invocation would leave a fresh mtime on its outputs. Tests can
// override per-executable behaviour via set/denyWrites.
type fakeSandbox struct {
	fs    *fakeFS
	clock func() time.Time

	mu      sync.Mutex
	outcome map[string]sandbox.Result
	runs    map[string]int
	deny    map[string]bool // when true, writes nothing and exits non-zero, as a sandbox violation would
}

func newFakeSandbox(fs *fakeFS, clock func() time.Time) *fakeSandbox {
	return &fakeSandbox{
		fs:      fs,
		clock:   clock,
		outcome: make(map[string]sandbox.Result),
		runs:    make(map[string]int),
		deny:    make(map[string]bool),
	}
}

func (f *fakeSandbox) set(executable string, res sandbox.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome[executable] = res
}

func (f *fakeSandbox) denyWrites(executable string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deny[executable] = true
}

func (f *fakeSandbox) runsOf(executable string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[executable]
}

func (f *fakeSandbox) Run(ctx context.Context, req sandbox.Request) (sandbox.Result, error) {
	key := string(req.Command.Executable)
	f.mu.Lock()
	f.runs[key]++
	res, hasOutcome := f.outcome[key]
	denied := f.deny[key]
	f.mu.Unlock()

	if hasOutcome {
		return res, nil
	}
	if denied {
		return sandbox.Result{ExitCode: 1}, nil
	}

	now := f.clock()
	for _, w := range req.AllowedWrites {
		f.fs.touch(w, now)
	}
	return sandbox.Result{ExitCode: 0, ObservedReads: req.AllowedReads, ObservedWrites: req.AllowedWrites}, nil
}
