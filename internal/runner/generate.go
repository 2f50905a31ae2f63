package runner

import (
	"context"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/soupd/soupd/internal/buildcore"
	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
	"github.com/soupd/soupd/internal/resolver"
	"github.com/soupd/soupd/internal/statefile"
	"github.com/soupd/soupd/internal/value"
)

// buildParameters assembles the Generate parameter table (spec §4.7 step
// 4): LanguageExtensionPath, PackageDirectory, TargetDirectory,
// SoupTargetDirectory, Dependencies (per kind, plus the full recursive
// transitive closure under "All"), SDKs.
func (r *Runner) buildParameters(pkg resolver.PackageInfo, targetDir, soupTargetDir string, recursiveChildDirs []string) (value.Value, error) {
	t := value.NewEmptyTable()
	if pkg.LanguageExtension != nil {
		t.Set("LanguageExtensionPath", value.NewString(*pkg.LanguageExtension))
	}
	t.Set("PackageDirectory", value.NewString(pkg.PackageRoot))
	t.Set("TargetDirectory", value.NewString(targetDir))
	t.Set("SoupTargetDirectory", value.NewString(soupTargetDir))

	deps := value.NewEmptyTable()
	for kind, refs := range pkg.Dependencies {
		entries := make([]value.Value, 0, len(refs))
		for _, ref := range refs {
			state, _, ok := r.checkBuildPackage(ref.PackageID)
			if !ok {
				return value.Value{}, dependencyNotBuilt(ref.PackageID)
			}
			entry := value.NewEmptyTable()
			entry.Set("TargetDirectory", value.NewString(state.TargetDirectory))
			entries = append(entries, value.NewTable(entry))
		}
		deps.Set(string(kind), value.NewList(entries))
	}
	recursive := make([]value.Value, 0, len(recursiveChildDirs))
	for _, d := range recursiveChildDirs {
		entry := value.NewEmptyTable()
		entry.Set("TargetDirectory", value.NewString(d))
		recursive = append(recursive, value.NewTable(entry))
	}
	deps.Set("All", value.NewList(recursive))
	t.Set("Dependencies", value.NewTable(deps))

	sdks := make([]value.Value, 0, len(r.SDKDirs))
	for _, d := range r.SDKDirs {
		sdks = append(sdks, value.NewString(d))
	}
	t.Set("SDKs", value.NewList(sdks))

	return value.NewTable(t), nil
}

// generateReadAccess is the read allow-list for the Generate operation's
// sandbox, per spec §4.7 step 4: direct dependencies only (so a package can
// read its direct dependencies' shared build properties), not the full
// recursive closure.
func (r *Runner) generateReadAccess(generatorDir string, pkg resolver.PackageInfo, targetDir string, directChildDirs []string) []fsstate.Path {
	var out []fsstate.Path
	out = append(out, fsstate.Path(generatorDir))
	if pkg.LanguageExtension != nil {
		out = append(out, fsstate.Path(filepath.Dir(*pkg.LanguageExtension)))
	}
	out = append(out, fsstate.Path(pkg.PackageRoot), fsstate.Path(targetDir))
	for _, d := range directChildDirs {
		out = append(out, fsstate.Path(d))
	}
	for _, d := range r.PlatformRuntimeDirs {
		out = append(out, fsstate.Path(d))
	}
	return out
}

// generateStep runs Setup+Generate for one package: it rewrites the
// parameters file and access lists only if they changed (the
// outdated-check-before-write discipline), then evaluates the single
// Generate operation, returning whether it actually ran.
func (r *Runner) generateStep(
	ctx context.Context,
	pkg resolver.PackageInfo,
	targetDir, soupTargetDir string,
	directChildDirs, recursiveChildDirs []string,
) (ran bool, err error) {
	executable, generatorDir, err := r.generator()(pkg.LanguageExtension)
	if err != nil {
		return false, xerrors.Errorf("runner: resolving generator: %w", err)
	}

	params, err := r.buildParameters(pkg, targetDir, soupTargetDir, recursiveChildDirs)
	if err != nil {
		return false, err
	}

	parametersPath := filepath.Join(soupTargetDir, buildcore.GenerateParametersFileName)
	prevParams, err := statefile.TryLoadParameters(parametersPath)
	paramsChanged := true
	if err == nil {
		paramsChanged = !prevParams.Equal(params)
	} else if !isAbsentOrCorrupt(err) {
		return false, xerrors.Errorf("runner: loading prior parameters: %w", err)
	}
	if paramsChanged {
		if err := statefile.WriteParameters(parametersPath, params); err != nil {
			return false, xerrors.Errorf("runner: writing parameters: %w", err)
		}
	}

	readAccess := r.generateReadAccess(generatorDir, pkg, targetDir, directChildDirs)
	writeAccess := []fsstate.Path{fsstate.Path(targetDir)}

	if err := r.rewritePathListIfChanged(filepath.Join(soupTargetDir, buildcore.GenerateReadAccessFileName), readAccess); err != nil {
		return false, err
	}
	if err := r.rewritePathListIfChanged(filepath.Join(soupTargetDir, buildcore.GenerateWriteAccessFileName), writeAccess); err != nil {
		return false, err
	}

	evaluateGraphPath := filepath.Join(soupTargetDir, buildcore.EvaluateGraphFileName)
	parametersID := r.FS.ToID(fsstate.Path(parametersPath))
	outputID := r.FS.ToID(fsstate.Path(evaluateGraphPath))

	generateGraph := opgraph.New()
	genID := generateGraph.AddOperation(opgraph.OperationInfo{
		Title: "generate " + pkg.PackageRoot,
		Command: opgraph.CommandInfo{
			WorkingDirectory: fsstate.Path(pkg.PackageRoot),
			Executable:       fsstate.Path(executable),
			Arguments:        parametersPath,
		},
		DeclaredInputs:  []fsstate.FileID{parametersID},
		DeclaredOutputs: []fsstate.FileID{outputID},
	})
	generateGraph.SetRoots([]opgraph.OperationID{genID})

	generateResultsPath := filepath.Join(soupTargetDir, buildcore.GenerateResultsFileName)
	generateResults, err := statefile.TryLoadResults(generateResultsPath, r.FS)
	if err != nil {
		if !isAbsentOrCorrupt(err) {
			return false, xerrors.Errorf("runner: loading prior generate results: %w", err)
		}
		generateResults = opgraph.NewResults()
	}

	tempDir := fsstate.Path(filepath.Join(soupTargetDir, buildcore.TempDirName))
	r.trackTempDir(tempDir)
	ev := r.newEvaluator()
	ran, evalErr := ev.Evaluate(ctx, generateGraph, generateResults, tempDir, readAccess, writeAccess)

	if writeErr := statefile.WriteResults(generateResultsPath, generateResults, generateGraph, r.FS); writeErr != nil {
		return ran, xerrors.Errorf("runner: persisting generate results: %w", writeErr)
	}
	if evalErr != nil {
		return ran, evalErr
	}
	return ran, nil
}

// rewritePathListIfChanged loads the path list at path and rewrites it only
// if it differs from want, per spec §4.7's equality-before-write discipline
// (order-sensitive, per statefile.PathListEqual).
func (r *Runner) rewritePathListIfChanged(path string, want []fsstate.Path) error {
	prev, err := statefile.TryLoadPathList(path)
	changed := true
	if err == nil {
		changed = !statefile.PathListEqual(prev, want)
	} else if !isAbsentOrCorrupt(err) {
		return xerrors.Errorf("runner: loading prior path list %s: %w", path, err)
	}
	if !changed {
		return nil
	}
	if err := statefile.WritePathList(path, want); err != nil {
		return xerrors.Errorf("runner: writing path list %s: %w", path, err)
	}
	return nil
}

func isAbsentOrCorrupt(err error) bool {
	return xerrors.Is(err, statefile.ErrNotFound) ||
		xerrors.Is(err, statefile.ErrVersionMismatch) ||
		xerrors.Is(err, statefile.ErrCorrupt)
}
