package buildcore

// Well-known filenames and subpaths (spec §2 "Constants & Paths", §4.7,
// §6), grounded on original_source's BuildConstants helpers and
// distr1-distri's internal/env constants-style package.
const (
	// SoupTargetDirName is the per-package state subdirectory, e.g.
	// "<target directory>/.soup".
	SoupTargetDirName = ".soup"

	// TempDirName is the scratch directory every operation may read and
	// write, under the package's soup target directory.
	TempDirName = "temp"

	EvaluateGraphFileName   = "EvaluateGraph"
	EvaluateResultsFileName = "EvaluateResults"

	GenerateParametersFileName = "GenerateParameters"
	GenerateResultsFileName    = "GenerateResults"

	GenerateReadAccessFileName  = "GenerateReadAccessList"
	GenerateWriteAccessFileName = "GenerateWriteAccessList"
)
