// Command soupd builds one resolved package graph, dependency-first,
// loading the graph description from a JSON file and reporting the root
// package's published target directory on success.
//
// No package resolver ships with this module (spec §6); soupd's -graph
// flag exists so the Runner can be exercised end-to-end against a graph
// produced by an external resolver, without this binary knowing anything
// about recipes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/xerrors"

	"github.com/soupd/soupd/internal/buildenv"
	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/oninterrupt"
	"github.com/soupd/soupd/internal/resolver"
	"github.com/soupd/soupd/internal/runner"
	"github.com/soupd/soupd/internal/sandbox"
)

var (
	graphPath = flag.String("graph", "", "path to a JSON-encoded resolver.ResolvedGraph to build")
	jobs      = flag.Int("jobs", buildenv.Jobs, "maximum number of operations to run concurrently per package")
	force     = flag.Bool("force", buildenv.ForceRebuild, "ignore cached results and re-run every operation")
)

func loadGraph(path string) (resolver.ResolvedGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return resolver.ResolvedGraph{}, xerrors.Errorf("soupd: opening graph: %w", err)
	}
	defer f.Close()
	var g resolver.ResolvedGraph
	if err := json.NewDecoder(f).Decode(&g); err != nil {
		return resolver.ResolvedGraph{}, xerrors.Errorf("soupd: decoding graph: %w", err)
	}
	return g, nil
}

func funcmain() error {
	flag.Parse()
	if *graphPath == "" {
		return xerrors.New("soupd: -graph is required")
	}

	ctx, stop := oninterrupt.Context(context.Background())
	defer stop()

	resolved, err := loadGraph(*graphPath)
	if err != nil {
		return err
	}

	r := &runner.Runner{
		FS:           fsstate.New(fsstate.OSFileSystem{}),
		Sandbox:      sandbox.NewExec(),
		Resolved:     resolved,
		SystemDirs:   []string{"/usr", "/lib", "/lib64", "/bin"},
		Concurrency:  *jobs,
		ForceRebuild: *force,
	}

	state, err := r.Build(ctx)
	if err != nil {
		return xerrors.Errorf("soupd: build failed: %w", err)
	}
	log.Printf("built %s -> %s", state.Name, state.TargetDirectory)
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
