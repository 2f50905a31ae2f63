// Package resolver defines the package-graph contract this module consumes
// from the external package resolver (spec §6 "Consumed package resolver",
// §3's PackageId/PackageGraphId/PackageInfo/RecipeBuildCacheState types).
// The resolver itself (dependency resolution, recipe parsing, cycle
// detection upstream of the core) is out of scope; this package only
// shapes the data the Runner walks.
package resolver

import "github.com/soupd/soupd/internal/value"

// PackageID and PackageGraphID are opaque handles assigned by the external
// resolver; this module only compares and looks them up, never constructs
// new ones.
type PackageID int64
type PackageGraphID int64

// DependencyKind distinguishes how a dependency is consumed (e.g. build-time
// tool vs. linked runtime library); the concrete set of kinds is a recipe
// concern external to this module, so it is left as an opaque string.
type DependencyKind string

// DependencyRef names one edge in the dependency map: either a package in
// the same graph, or the root of an entirely different sub-graph.
type DependencyRef struct {
	OriginalReference string
	IsSubGraph        bool
	PackageID         PackageID
	PackageGraphID    PackageGraphID
}

// PackageInfo is one resolved package.
type PackageInfo struct {
	PackageRoot       string
	Recipe            string
	LanguageExtension *string
	Dependencies      map[DependencyKind][]DependencyRef
}

// PackageGraph is one resolved dependency graph with a single root.
type PackageGraph struct {
	RootPackageID   PackageID
	GlobalParameters value.Value
}

// ResolvedGraph is the fully resolved input the Runner walks: a root graph
// plus every graph and package reachable from it (sub-graphs included).
type ResolvedGraph struct {
	RootPackageGraphID PackageGraphID
	Graphs             map[PackageGraphID]PackageGraph
	Packages           map[PackageID]PackageInfo
}

// Package looks up id, the way the Runner does before building it; lookup
// failures are fatal per spec §6.
func (g ResolvedGraph) Package(id PackageID) (PackageInfo, bool) {
	p, ok := g.Packages[id]
	return p, ok
}

// Graph looks up id.
func (g ResolvedGraph) Graph(id PackageGraphID) (PackageGraph, bool) {
	pg, ok := g.Graphs[id]
	return pg, ok
}

// RecipeBuildCacheState is the per-package record a successful build
// publishes for its dependents to consume (spec §3).
type RecipeBuildCacheState struct {
	Name                           string
	TargetDirectory                string
	SoupTargetDirectory            string
	RecursiveChildTargetDirectories []string
}
