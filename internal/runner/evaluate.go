package runner

import (
	"context"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/soupd/soupd/internal/buildcore"
	"github.com/soupd/soupd/internal/buildlog"
	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
	"github.com/soupd/soupd/internal/reconcile"
	"github.com/soupd/soupd/internal/resolver"
	"github.com/soupd/soupd/internal/statefile"
)

// buildOne runs Setup, Generate, Reconcile and Evaluate for a single
// package whose dependencies are already built, then publishes its
// RecipeBuildCacheState (spec §4.7 steps 1, 3-7). The whole run is scoped
// under buildlog.WithActiveID so every log line it produces, including on
// the error path, is attributable to this package.
func (r *Runner) buildOne(
	ctx context.Context,
	pkgID resolver.PackageID,
	pkg resolver.PackageInfo,
	graph resolver.PackageGraph,
	directChildDirs, recursiveChildDirs []string,
) (resolver.RecipeBuildCacheState, error) {
	id := packageLogID(pkgID)
	var state resolver.RecipeBuildCacheState
	err := buildlog.WithActiveID(id, func() error {
		var runErr error
		state, runErr = r.runOne(ctx, pkg, graph, directChildDirs, recursiveChildDirs)
		return runErr
	})
	return state, err
}

func (r *Runner) runOne(
	ctx context.Context,
	pkg resolver.PackageInfo,
	graph resolver.PackageGraph,
	directChildDirs, recursiveChildDirs []string,
) (resolver.RecipeBuildCacheState, error) {
	targetDir, err := r.location()(pkg, graph)
	if err != nil {
		return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: computing target directory: %w", err)
	}
	soupTargetDir := filepath.Join(targetDir, buildcore.SoupTargetDirName)

	evaluateGraphPath := filepath.Join(soupTargetDir, buildcore.EvaluateGraphFileName)
	evaluateResultsPath := filepath.Join(soupTargetDir, buildcore.EvaluateResultsFileName)

	oldGraph, err := statefile.TryLoadGraph(evaluateGraphPath, r.FS)
	if err != nil {
		if !isAbsentOrCorrupt(err) {
			return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: loading prior evaluate graph: %w", err)
		}
		oldGraph = nil
	}
	oldResults, err := statefile.TryLoadResults(evaluateResultsPath, r.FS)
	if err != nil {
		if !isAbsentOrCorrupt(err) {
			return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: loading prior evaluate results: %w", err)
		}
		oldResults = nil
	}

	generateRan, err := r.generateStep(ctx, pkg, targetDir, soupTargetDir, directChildDirs, recursiveChildDirs)
	if err != nil {
		return resolver.RecipeBuildCacheState{}, err
	}

	var evaluateGraph *opgraph.OperationGraph
	var evaluateResults *opgraph.OperationResults

	if generateRan {
		newGraph, err := statefile.TryLoadGraph(evaluateGraphPath, r.FS)
		if err != nil {
			if xerrors.Is(err, statefile.ErrNotFound) {
				return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: %s: %w", pkg.PackageRoot, buildcore.ErrMissingEvaluateGraph)
			}
			return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: loading freshly generated evaluate graph: %w", err)
		}
		evaluateGraph = newGraph
		evaluateResults = reconcile.Reconcile(newGraph, oldGraph, oldResults)
	} else {
		if oldGraph == nil {
			return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: %s: %w", pkg.PackageRoot, buildcore.ErrMissingEvaluateGraph)
		}
		evaluateGraph = oldGraph
		if oldResults != nil {
			evaluateResults = oldResults
		} else {
			evaluateResults = opgraph.NewResults()
		}
	}

	evalReads := pathsOf(r.SystemDirs)
	evalReads = append(evalReads, pathsOf(r.SDKDirs)...)
	evalReads = append(evalReads, fsstate.Path(targetDir))
	evalReads = append(evalReads, pathsOf(recursiveChildDirs)...)
	evalWrites := []fsstate.Path{fsstate.Path(targetDir)}
	tempDir := fsstate.Path(filepath.Join(soupTargetDir, buildcore.TempDirName))
	r.trackTempDir(tempDir)

	ev := r.newEvaluator()
	_, evalErr := ev.Evaluate(ctx, evaluateGraph, evaluateResults, tempDir, evalReads, evalWrites)

	if writeErr := statefile.WriteResults(evaluateResultsPath, evaluateResults, evaluateGraph, r.FS); writeErr != nil {
		return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: persisting evaluate results: %w", writeErr)
	}

	state := resolver.RecipeBuildCacheState{
		Name:                            pkg.Recipe,
		TargetDirectory:                 targetDir,
		SoupTargetDirectory:             soupTargetDir,
		RecursiveChildTargetDirectories: recursiveChildDirs,
	}

	if evalErr != nil {
		return state, evalErr
	}
	return state, nil
}

func pathsOf(ss []string) []fsstate.Path {
	if len(ss) == 0 {
		return nil
	}
	out := make([]fsstate.Path, len(ss))
	for i, s := range ss {
		out[i] = fsstate.Path(s)
	}
	return out
}
