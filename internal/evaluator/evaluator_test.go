package evaluator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/xerrors"

	"github.com/soupd/soupd/internal/buildcore"
	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
)

// logicalClock hands out strictly increasing timestamps, shared between the
// Evaluator's Now and the fakeSandbox's write-time source, so "result
// recorded after the write it covers" holds the way it would with a real
// wall clock.
type logicalClock struct{ n int64 }

func (c *logicalClock) now() time.Time {
	return time.Unix(atomic.AddInt64(&c.n, 1), 0)
}

// chain builds a two-operation graph: a produces outPath, b consumes it.
func chain(fs *fsstate.FileSystemState, outPath fsstate.Path) (*opgraph.OperationGraph, opgraph.OperationID, opgraph.OperationID) {
	outID := fs.ToID(outPath)
	g := opgraph.New()
	aID := g.AddOperation(opgraph.OperationInfo{
		Title:           "a",
		Command:         opgraph.CommandInfo{Executable: "/bin/a"},
		DeclaredOutputs: []fsstate.FileID{outID},
	})
	bID := g.AddOperation(opgraph.OperationInfo{
		Title:           "b",
		Command:         opgraph.CommandInfo{Executable: "/bin/b"},
		DeclaredInputs:  []fsstate.FileID{outID},
		DependencyCount: 1,
	})
	a, _ := g.Operation(aID)
	a.Children = []opgraph.OperationID{bID}
	g.SetRoots([]opgraph.OperationID{aID})
	return g, aID, bID
}

func TestEvaluateFirstBuildRunsEverything(t *testing.T) {
	ffs := newFakeFS()
	fs := fsstate.New(ffs)
	clock := &logicalClock{}
	sb := newFakeSandbox(ffs, clock.now)
	g, aID, bID := chain(fs, "/out/a")
	results := opgraph.NewResults()

	ev := &Evaluator{FS: fs, Sandbox: sb, Now: clock.now, Concurrency: 1}
	ran, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ran {
		t.Fatalf("expected ran=true on first build")
	}
	if sb.runsOf("/bin/a") != 1 || sb.runsOf("/bin/b") != 1 {
		t.Fatalf("expected each operation to run once, got a=%d b=%d", sb.runsOf("/bin/a"), sb.runsOf("/bin/b"))
	}
	if res, ok := results.Get(bID); !ok || !res.WasSuccessful {
		t.Fatalf("expected b to have a successful result, got %+v, %v", res, ok)
	}
	_ = aID
}

func TestEvaluateUnchangedRunRedoesNothing(t *testing.T) {
	ffs := newFakeFS()
	fs := fsstate.New(ffs)
	clock := &logicalClock{}
	sb := newFakeSandbox(ffs, clock.now)
	g, _, _ := chain(fs, "/out/a")
	results := opgraph.NewResults()
	ev := &Evaluator{FS: fs, Sandbox: sb, Now: clock.now, Concurrency: 1}

	if _, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	ran, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if ran {
		t.Fatalf("expected ran=false when nothing changed")
	}
	if sb.runsOf("/bin/a") != 1 || sb.runsOf("/bin/b") != 1 {
		t.Fatalf("expected no additional runs, got a=%d b=%d", sb.runsOf("/bin/a"), sb.runsOf("/bin/b"))
	}
}

func TestEvaluateTouchingInputRerunsConsumerOnly(t *testing.T) {
	ffs := newFakeFS()
	fs := fsstate.New(ffs)
	clock := &logicalClock{}
	sb := newFakeSandbox(ffs, clock.now)
	g, _, _ := chain(fs, "/out/a")
	results := opgraph.NewResults()
	ev := &Evaluator{FS: fs, Sandbox: sb, Now: clock.now, Concurrency: 1}

	if _, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}

	// Simulate an external edit to a's output, after its last recorded
	// evaluation: this is b's declared input.
	ffs.touch("/out/a", clock.now())

	ran, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if !ran {
		t.Fatalf("expected ran=true after touching b's input")
	}
	if sb.runsOf("/bin/a") != 1 {
		t.Fatalf("expected a to remain skipped, ran %d times", sb.runsOf("/bin/a"))
	}
	if sb.runsOf("/bin/b") != 2 {
		t.Fatalf("expected b to re-run, ran %d times", sb.runsOf("/bin/b"))
	}
}

func TestEvaluateOutputDeletionForcesRerun(t *testing.T) {
	ffs := newFakeFS()
	fs := fsstate.New(ffs)
	clock := &logicalClock{}
	sb := newFakeSandbox(ffs, clock.now)

	outID := fs.ToID("/out/a")
	g := opgraph.New()
	aID := g.AddOperation(opgraph.OperationInfo{
		Title:           "a",
		Command:         opgraph.CommandInfo{Executable: "/bin/a"},
		DeclaredOutputs: []fsstate.FileID{outID},
	})
	g.SetRoots([]opgraph.OperationID{aID})
	results := opgraph.NewResults()
	ev := &Evaluator{FS: fs, Sandbox: sb, Now: clock.now, Concurrency: 1}

	if _, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	if ran, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil); err != nil || ran {
		t.Fatalf("expected skip before deletion, ran=%v err=%v", ran, err)
	}

	ffs.remove("/out/a")

	ran, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil)
	if err != nil {
		t.Fatalf("Evaluate after deletion: %v", err)
	}
	if !ran {
		t.Fatalf("expected re-run after output deletion")
	}
	if sb.runsOf("/bin/a") != 2 {
		t.Fatalf("expected a to run twice, ran %d times", sb.runsOf("/bin/a"))
	}
}

func TestEvaluateSandboxViolationFailsAndSkipsChildren(t *testing.T) {
	ffs := newFakeFS()
	fs := fsstate.New(ffs)
	clock := &logicalClock{}
	sb := newFakeSandbox(ffs, clock.now)
	sb.denyWrites("/bin/a")
	g, aID, bID := chain(fs, "/out/a")
	results := opgraph.NewResults()
	ev := &Evaluator{FS: fs, Sandbox: sb, Now: clock.now, Concurrency: 1}

	ran, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil)
	if !ran {
		t.Fatalf("expected ran=true: a did attempt to run")
	}
	if err == nil || !xerrors.Is(err, buildcore.ErrBuildFailed) {
		t.Fatalf("err = %v, want wrapping ErrBuildFailed", err)
	}
	if sb.runsOf("/bin/b") != 0 {
		t.Fatalf("expected b to never run, ran %d times", sb.runsOf("/bin/b"))
	}
	aRes, ok := results.Get(aID)
	if !ok || aRes.WasSuccessful {
		t.Fatalf("expected a's result to be recorded as failed, got %+v, %v", aRes, ok)
	}
	if _, ok := results.Get(bID); ok {
		t.Fatalf("expected no result recorded for b")
	}
}

func TestEvaluateForceRebuildReevaluatesEverything(t *testing.T) {
	ffs := newFakeFS()
	fs := fsstate.New(ffs)
	clock := &logicalClock{}
	sb := newFakeSandbox(ffs, clock.now)
	g, _, _ := chain(fs, "/out/a")
	results := opgraph.NewResults()
	ev := &Evaluator{FS: fs, Sandbox: sb, Now: clock.now, Concurrency: 1}

	if _, err := ev.Evaluate(context.Background(), g, results, "/tmp", nil, nil); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}

	forced := &Evaluator{FS: fs, Sandbox: sb, Now: clock.now, Concurrency: 1, ForceRebuild: true}
	ran, err := forced.Evaluate(context.Background(), g, results, "/tmp", nil, nil)
	if err != nil {
		t.Fatalf("forced Evaluate: %v", err)
	}
	if !ran {
		t.Fatalf("expected ran=true under ForceRebuild")
	}
	if sb.runsOf("/bin/a") != 2 || sb.runsOf("/bin/b") != 2 {
		t.Fatalf("expected both to re-run, got a=%d b=%d", sb.runsOf("/bin/a"), sb.runsOf("/bin/b"))
	}
}
