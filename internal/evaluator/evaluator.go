// Package evaluator implements the incremental execution engine (spec
// §4.6): given an operation graph and the prior run's results, it decides
// which operations can be skipped, runs the rest under a Sandbox in
// dependency order, and records what it observed.
//
// Scheduling follows distr1-distri's internal/batch scheduler: a
// ready-to-run queue seeded from the graph's roots, workers draining it
// concurrently via golang.org/x/sync/errgroup, children released as their
// last pending parent completes.
package evaluator

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/soupd/soupd/internal/buildcore"
	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
	"github.com/soupd/soupd/internal/sandbox"
)

// Evaluator runs one operation graph to completion (or first failure).
type Evaluator struct {
	FS      *fsstate.FileSystemState
	Sandbox sandbox.Sandbox

	// Concurrency bounds how many operations run at once. Zero means
	// runtime.NumCPU(), mirroring batch.go's -jobs default.
	Concurrency int

	// ForceRebuild disables the skip decision for every operation,
	// scenario S6.
	ForceRebuild bool

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate walks graph in dependency order, skipping operations whose
// declared-or-observed inputs and outputs are unchanged since their last
// successful run, and running the rest via Sandbox. It reports whether any
// operation actually ran. On the first operation failure it stops
// dispatching new work, cancels the context handed to in-flight operations'
// Sandbox.Run calls, waits for them to return, and returns an error
// wrapping buildcore.ErrBuildFailed; all results produced up to that point,
// successful or not, are left in results for the caller to persist.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	graph *opgraph.OperationGraph,
	results *opgraph.OperationResults,
	tempDir fsstate.Path,
	allowedReads, allowedWrites []fsstate.Path,
) (ran bool, err error) {
	e.FS.ResetObservationCache()

	n := graph.Len()
	if n == 0 {
		return false, nil
	}

	depCount := make(map[opgraph.OperationID]uint32, n)
	for id, op := range graph.Operations() {
		depCount[id] = op.DependencyCount
	}

	ready := make(chan opgraph.OperationID, n)
	for _, id := range graph.RootIDs() {
		ready <- id
	}
	var pending int64 = int64(n)
	var ranAny int32

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if concurrency > n {
		concurrency = n
	}
	if concurrency < 1 {
		concurrency = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	worker := func() error {
		for {
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			case id, ok := <-ready:
				if !ok {
					return nil
				}
				if err := e.step(egCtx, graph, results, tempDir, allowedReads, allowedWrites, id, &ranAny); err != nil {
					return err
				}

				op, _ := graph.Operation(id)
				var releasable []opgraph.OperationID
				mu.Lock()
				for _, c := range op.Children {
					depCount[c]--
					if depCount[c] == 0 {
						releasable = append(releasable, c)
					}
				}
				mu.Unlock()
				for _, c := range releasable {
					ready <- c
				}
				if atomic.AddInt64(&pending, -1) == 0 {
					close(ready)
				}
			}
		}
	}

	for i := 0; i < concurrency; i++ {
		eg.Go(worker)
	}

	if waitErr := eg.Wait(); waitErr != nil {
		if xerrors.Is(waitErr, context.Canceled) && ctx.Err() != nil {
			return atomic.LoadInt32(&ranAny) != 0, xerrors.Errorf("evaluate: %w", buildcore.ErrCancelled)
		}
		return atomic.LoadInt32(&ranAny) != 0, waitErr
	}
	return atomic.LoadInt32(&ranAny) != 0, nil
}

// step runs the skip decision and, if needed, the operation itself,
// recording whatever result comes out of it.
func (e *Evaluator) step(
	ctx context.Context,
	graph *opgraph.OperationGraph,
	results *opgraph.OperationResults,
	tempDir fsstate.Path,
	allowedReads, allowedWrites []fsstate.Path,
	id opgraph.OperationID,
	ranAny *int32,
) error {
	op, ok := graph.Operation(id)
	if !ok {
		return xerrors.Errorf("evaluate: operation %d not found in graph", id)
	}

	skip, err := e.shouldSkip(op, results)
	if err != nil {
		return xerrors.Errorf("evaluate: operation %q: %w", op.Title, err)
	}
	if skip {
		return nil
	}
	atomic.StoreInt32(ranAny, 1)

	success, observedInputs, observedOutputs := e.run(ctx, op, tempDir, allowedReads, allowedWrites)
	for _, fid := range observedOutputs {
		e.FS.Invalidate(fid)
	}
	results.Put(id, opgraph.OperationResult{
		WasSuccessful:   success,
		EvaluateTime:    e.now(),
		ObservedInputs:  observedInputs,
		ObservedOutputs: observedOutputs,
	})
	if !success {
		return xerrors.Errorf("evaluate: operation %q: %w", op.Title, buildcore.ErrBuildFailed)
	}
	return nil
}

// shouldSkip implements spec §4.6's skip decision: an operation may be
// skipped only if it previously succeeded, every file in its
// declared-union-observed outputs still exists, and no file in its
// declared-union-observed inputs was written after that run. A missing
// input does not by itself force a run.
func (e *Evaluator) shouldSkip(op *opgraph.OperationInfo, results *opgraph.OperationResults) (bool, error) {
	if e.ForceRebuild {
		return false, nil
	}
	res, ok := results.Get(op.ID)
	if !ok || !res.WasSuccessful {
		return false, nil
	}

	outputs := unionFileIDs(op.DeclaredOutputs, res.ObservedOutputs)
	for _, id := range outputs {
		obs, err := e.FS.Observe(id)
		if err != nil {
			return false, err
		}
		if obs.Missing {
			return false, nil
		}
	}

	inputs := unionFileIDs(op.DeclaredInputs, res.ObservedInputs)
	for _, id := range inputs {
		obs, err := e.FS.Observe(id)
		if err != nil {
			return false, err
		}
		if !obs.Missing && obs.LastWrite.After(res.EvaluateTime) {
			return false, nil
		}
	}
	return true, nil
}

// run executes op's command under the sandbox and reports success plus the
// FileIDs it observed. Sandbox spawn failures (Io, per spec §7) and errors
// returned by Sandbox.Run come back as a failed operation; run itself
// returns no error. Declared FileIDs that do not resolve to a path are left
// out of the allow lists.
func (e *Evaluator) run(
	ctx context.Context,
	op *opgraph.OperationInfo,
	tempDir fsstate.Path,
	allowedReads, allowedWrites []fsstate.Path,
) (success bool, observedInputs, observedOutputs []fsstate.FileID) {
	reads := append(append([]fsstate.Path{}, allowedReads...), tempDir)
	for _, id := range op.DeclaredInputs {
		if p, ok := e.FS.ToPath(id); ok {
			reads = append(reads, p)
		}
	}
	writes := append(append([]fsstate.Path{}, allowedWrites...), tempDir)
	for _, id := range op.DeclaredOutputs {
		if p, ok := e.FS.ToPath(id); ok {
			writes = append(writes, p)
		}
	}

	req := sandbox.Request{
		Command:       op.Command,
		TempDir:       tempDir,
		AllowedReads:  reads,
		AllowedWrites: writes,
	}

	res, err := e.Sandbox.Run(ctx, req)
	if err != nil {
		return false, nil, nil
	}

	observedInputs = internPaths(e.FS, res.ObservedReads, tempDir)
	observedOutputs = internPaths(e.FS, res.ObservedWrites, tempDir)
	return res.Succeeded(), observedInputs, observedOutputs
}

// internPaths interns paths as FileIDs, dropping tempDir: it is always
// implicitly accessible scratch space, not build output worth tracking in
// the skip decision.
func internPaths(fs *fsstate.FileSystemState, paths []fsstate.Path, tempDir fsstate.Path) []fsstate.FileID {
	var ids []fsstate.FileID
	for _, p := range paths {
		if p == tempDir {
			continue
		}
		ids = append(ids, fs.ToID(p))
	}
	return ids
}

// unionFileIDs returns the deduplicated union of a and b, order unspecified.
func unionFileIDs(a, b []fsstate.FileID) []fsstate.FileID {
	seen := make(map[fsstate.FileID]struct{}, len(a)+len(b))
	out := make([]fsstate.FileID, 0, len(a)+len(b))
	for _, ids := range [][]fsstate.FileID{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
