// Package runner implements the Build Runner (spec §4.7): it walks a
// resolved package graph dependency-first, and for each package runs
// Setup, Generate, Reconcile, and Evaluate, publishing a
// RecipeBuildCacheState dependents can consume. Grounded directly on
// original_source's BuildRunner.h (BuildPackageAndDependencies,
// CheckBuildPackage, RunBuild, RunIncrementalGenerate, RunEvaluate).
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/xerrors"

	"github.com/soupd/soupd/internal/buildcore"
	"github.com/soupd/soupd/internal/buildlog"
	"github.com/soupd/soupd/internal/evaluator"
	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/oninterrupt"
	"github.com/soupd/soupd/internal/resolver"
	"github.com/soupd/soupd/internal/sandbox"
)

// LocationManager computes a package's target directory: a pure function
// of the package and its graph's global parameters, per spec §4.7 step 1.
// It is an external collaborator; DefaultLocationManager provides a
// minimal stand-in.
type LocationManager func(pkg resolver.PackageInfo, graph resolver.PackageGraph) (string, error)

// DefaultLocationManager roots every package's target directory under its
// own package root, ignoring global parameters. Real deployments are
// expected to supply their own LocationManager.
func DefaultLocationManager(pkg resolver.PackageInfo, graph resolver.PackageGraph) (string, error) {
	return filepath.Join(pkg.PackageRoot, "target"), nil
}

// DefaultGeneratorLookup resolves every package to the same generator
// binary, regardless of language extension. Real deployments are expected
// to supply their own GeneratorLookup, keyed on the language extensions
// their recipes declare.
func DefaultGeneratorLookup(languageExtension *string) (string, string, error) {
	return "/usr/bin/soup-generate", "/usr/lib/soup/generators", nil
}

// GeneratorLookup resolves the generator command to invoke for a package,
// based on its (optional) language extension. It stands in for the
// external language-generator registry.
type GeneratorLookup func(languageExtension *string) (executable string, generatorDir string, err error)

// Runner orchestrates one build of a resolved package graph.
type Runner struct {
	FS       *fsstate.FileSystemState
	Sandbox  sandbox.Sandbox
	Resolved resolver.ResolvedGraph

	Location  LocationManager
	Generator GeneratorLookup

	// PlatformRuntimeDirs are appended to the generate sandbox's read
	// access (spec §4.7 step 4); SystemDirs and SDKDirs are appended to the
	// evaluate sandbox's read access (step 6).
	SDKDirs             []string
	SystemDirs          []string
	PlatformRuntimeDirs []string

	Concurrency  int
	ForceRebuild bool

	mu    sync.Mutex
	cache map[resolver.PackageID]cacheEntry

	// tempDirs tracks every per-package scratch directory (spec §4.6's
	// Evaluator tempDir) this Runner has created, so a cleanup callback
	// registered with internal/oninterrupt can remove them if the process
	// is interrupted mid-build instead of leaving them behind.
	tempDirMu     sync.Mutex
	tempDirs      map[fsstate.Path]struct{}
	registerClean sync.Once
}

type cacheEntry struct {
	state resolver.RecipeBuildCacheState
	err   error
}

// Build builds the root package of the resolved graph and every
// dependency it needs, dependency-first.
func (r *Runner) Build(ctx context.Context) (resolver.RecipeBuildCacheState, error) {
	root, ok := r.Resolved.Graph(r.Resolved.RootPackageGraphID)
	if !ok {
		return resolver.RecipeBuildCacheState{}, xerrors.Errorf("runner: root package graph %d does not resolve", r.Resolved.RootPackageGraphID)
	}
	return r.buildPackageAndDependencies(ctx, r.Resolved.RootPackageGraphID, root.RootPackageID)
}

// buildPackageAndDependencies is BuildRunner.h's entry point: build every
// dependency first, then this package, short-circuiting via the per-run
// cache on repeat visits (diamond dependencies).
func (r *Runner) buildPackageAndDependencies(ctx context.Context, graphID resolver.PackageGraphID, pkgID resolver.PackageID) (resolver.RecipeBuildCacheState, error) {
	if state, err, ok := r.checkBuildPackage(pkgID); ok {
		buildlog.Info(packageLogID(pkgID), "already built, skipping")
		return state, err
	}

	pkg, ok := r.Resolved.Package(pkgID)
	if !ok {
		err := xerrors.Errorf("runner: package %d does not resolve", pkgID)
		r.setCache(pkgID, resolver.RecipeBuildCacheState{}, err)
		return resolver.RecipeBuildCacheState{}, err
	}

	var directChildDirs []string
	var recursiveChildDirs []string
	seenRecursive := make(map[string]struct{})

	kinds := make([]string, 0, len(pkg.Dependencies))
	for kind := range pkg.Dependencies {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		for _, ref := range pkg.Dependencies[resolver.DependencyKind(kind)] {
			childGraphID := graphID
			if ref.IsSubGraph {
				childGraphID = ref.PackageGraphID
			}
			childState, err := r.buildPackageAndDependencies(ctx, childGraphID, ref.PackageID)
			if err != nil {
				r.setCache(pkgID, resolver.RecipeBuildCacheState{}, err)
				return resolver.RecipeBuildCacheState{}, err
			}
			directChildDirs = append(directChildDirs, childState.TargetDirectory)
			for _, d := range append([]string{childState.TargetDirectory}, childState.RecursiveChildTargetDirectories...) {
				if _, ok := seenRecursive[d]; ok {
					continue
				}
				seenRecursive[d] = struct{}{}
				recursiveChildDirs = append(recursiveChildDirs, d)
			}
		}
	}
	sort.Strings(recursiveChildDirs)

	graph, ok := r.Resolved.Graph(graphID)
	if !ok {
		err := xerrors.Errorf("runner: package graph %d does not resolve", graphID)
		r.setCache(pkgID, resolver.RecipeBuildCacheState{}, err)
		return resolver.RecipeBuildCacheState{}, err
	}

	state, err := r.buildOne(ctx, pkgID, pkg, graph, directChildDirs, recursiveChildDirs)
	r.setCache(pkgID, state, err)
	return state, err
}

func (r *Runner) checkBuildPackage(pkgID resolver.PackageID) (resolver.RecipeBuildCacheState, error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return resolver.RecipeBuildCacheState{}, nil, false
	}
	e, ok := r.cache[pkgID]
	return e.state, e.err, ok
}

func (r *Runner) setCache(pkgID resolver.PackageID, state resolver.RecipeBuildCacheState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		r.cache = make(map[resolver.PackageID]cacheEntry)
	}
	r.cache[pkgID] = cacheEntry{state: state, err: err}
}

// trackTempDir records dir as a scratch directory this Runner has created,
// registering the cleanup callback with internal/oninterrupt the first
// time any temp dir is tracked.
func (r *Runner) trackTempDir(dir fsstate.Path) {
	r.registerClean.Do(func() {
		oninterrupt.Register(r.cleanupTempDirs)
	})
	r.tempDirMu.Lock()
	defer r.tempDirMu.Unlock()
	if r.tempDirs == nil {
		r.tempDirs = make(map[fsstate.Path]struct{})
	}
	r.tempDirs[dir] = struct{}{}
}

// cleanupTempDirs removes every tracked scratch directory. It is registered
// as an interrupt callback so a build cancelled mid-flight doesn't leave
// stray temp directories under .soup behind.
func (r *Runner) cleanupTempDirs() {
	r.tempDirMu.Lock()
	dirs := make([]fsstate.Path, 0, len(r.tempDirs))
	for d := range r.tempDirs {
		dirs = append(dirs, d)
	}
	r.tempDirMu.Unlock()
	for _, d := range dirs {
		if err := os.RemoveAll(string(d)); err != nil {
			buildlog.Diag("runner", "removing temp dir %s: %v", d, err)
		}
	}
}

func (r *Runner) newEvaluator() *evaluator.Evaluator {
	return &evaluator.Evaluator{
		FS:           r.FS,
		Sandbox:      r.Sandbox,
		Concurrency:  r.Concurrency,
		ForceRebuild: r.ForceRebuild,
	}
}

func packageLogID(pkgID resolver.PackageID) buildlog.ID {
	return buildlog.ID(fmt.Sprintf("pkg:%d", int64(pkgID)))
}

func (r *Runner) location() LocationManager {
	if r.Location != nil {
		return r.Location
	}
	return DefaultLocationManager
}

func (r *Runner) generator() GeneratorLookup {
	if r.Generator != nil {
		return r.Generator
	}
	return DefaultGeneratorLookup
}

func dependencyNotBuilt(pkgID resolver.PackageID) error {
	return xerrors.Errorf("runner: dependency %d not in build cache: %w", pkgID, buildcore.ErrDependencyNotBuilt)
}
