// Package opgraph implements the Operation Graph and Operation Results
// components: the persistent record of what an Evaluate phase must run and
// what it observed the last time it ran. See spec §4.3/§4.4/§3.
package opgraph

import (
	"sort"
	"sync"
	"time"

	"github.com/soupd/soupd/internal/fsstate"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrCorruptGraph is returned by Validate when the graph violates one of
// its invariants: a dangling id reference, or a cycle. statefile.TryLoadGraph
// reports a failed Validate as statefile.ErrCorrupt, keeping this error's
// text but not the error itself.
var ErrCorruptGraph = xerrors.New("opgraph: corrupt graph")

// OperationID is a positive integer, unique within one OperationGraph.
type OperationID int64

// CommandInfo is the external process invocation an operation performs.
// It is a plain comparable struct so it can be used directly as a map key
// (OperationGraph's command_index).
type CommandInfo struct {
	WorkingDirectory fsstate.Path
	Executable       fsstate.Path
	Arguments        string
}

// OperationInfo is one node in the graph.
type OperationInfo struct {
	ID              OperationID
	Title           string
	Command         CommandInfo
	DeclaredInputs  []fsstate.FileID
	DeclaredOutputs []fsstate.FileID
	Children        []OperationID
	DependencyCount uint32
}

// OperationGraph is the full operation DAG produced by a Generate phase.
type OperationGraph struct {
	operations   map[OperationID]*OperationInfo
	commandIndex map[CommandInfo]OperationID
	rootIDs      []OperationID
	nextID       OperationID
}

func New() *OperationGraph {
	return &OperationGraph{
		operations:   make(map[OperationID]*OperationInfo),
		commandIndex: make(map[CommandInfo]OperationID),
	}
}

// AddOperation appends op, assigning the next unique id when op.ID is zero.
// It returns the id the operation was stored under.
func (g *OperationGraph) AddOperation(op OperationInfo) OperationID {
	if op.ID == 0 {
		g.nextID++
		op.ID = g.nextID
	} else if op.ID > g.nextID {
		g.nextID = op.ID
	}
	stored := op
	g.operations[op.ID] = &stored
	g.commandIndex[op.Command] = op.ID
	return op.ID
}

// SetRoots fixes the root operation set.
func (g *OperationGraph) SetRoots(ids []OperationID) {
	g.rootIDs = append([]OperationID(nil), ids...)
}

func (g *OperationGraph) RootIDs() []OperationID {
	return append([]OperationID(nil), g.rootIDs...)
}

// FindByCommand looks up an operation by its exact command, via the
// command index.
func (g *OperationGraph) FindByCommand(cmd CommandInfo) (OperationID, bool) {
	id, ok := g.commandIndex[cmd]
	return id, ok
}

// Operation returns the operation stored under id.
func (g *OperationGraph) Operation(id OperationID) (*OperationInfo, bool) {
	op, ok := g.operations[id]
	return op, ok
}

// Operations returns every operation, keyed by id. Callers must not mutate
// the returned map.
func (g *OperationGraph) Operations() map[OperationID]*OperationInfo {
	return g.operations
}

// Len returns the number of operations in the graph.
func (g *OperationGraph) Len() int { return len(g.operations) }

// ReferencedFileIDs returns the deduplicated set of every FileID mentioned
// by any operation's declared inputs or outputs, in ascending id order.
// This is the set the persisted file table canonicalises (spec §4.3).
func (g *OperationGraph) ReferencedFileIDs() []fsstate.FileID {
	seen := make(map[fsstate.FileID]struct{})
	for _, op := range g.operations {
		for _, id := range op.DeclaredInputs {
			seen[id] = struct{}{}
		}
		for _, id := range op.DeclaredOutputs {
			seen[id] = struct{}{}
		}
	}
	out := make([]fsstate.FileID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks every structural invariant required by spec §4.3:
// every id referenced by children/root_ids/command_index resolves, and the
// graph contains no cycles. It returns ErrCorruptGraph (wrapped with
// detail) on any violation.
func (g *OperationGraph) Validate() error {
	for id, op := range g.operations {
		if op.ID != id {
			return xerrors.Errorf("operation stored under id %d has ID %d: %w", id, op.ID, ErrCorruptGraph)
		}
		for _, child := range op.Children {
			if _, ok := g.operations[child]; !ok {
				return xerrors.Errorf("operation %d references missing child %d: %w", id, child, ErrCorruptGraph)
			}
		}
	}
	for _, id := range g.rootIDs {
		if _, ok := g.operations[id]; !ok {
			return xerrors.Errorf("root id %d does not resolve: %w", id, ErrCorruptGraph)
		}
	}
	for cmd, id := range g.commandIndex {
		op, ok := g.operations[id]
		if !ok {
			return xerrors.Errorf("command index entry %d does not resolve: %w", id, ErrCorruptGraph)
		}
		if op.Command != cmd {
			return xerrors.Errorf("command index entry %d does not match stored command: %w", id, ErrCorruptGraph)
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return err
	}
	return nil
}

// checkAcyclic builds a gonum directed graph (operation -> child edges) and
// runs topo.Sort, mirroring the cycle-detection technique cmd/distri/batch.go
// uses for the package dependency graph (there via topo.Sort +
// topo.Unorderable cycle-breaking; here we only need detection, since a
// cyclic Operation Graph is a hard load-time error, not something this core
// repairs).
func (g *OperationGraph) checkAcyclic() error {
	dg := simple.NewDirectedGraph()
	for id := range g.operations {
		dg.AddNode(simple.Node(id))
	}
	for id, op := range g.operations {
		for _, child := range op.Children {
			dg.SetEdge(dg.NewEdge(simple.Node(id), simple.Node(child)))
		}
	}
	if _, err := topo.Sort(dg); err != nil {
		if _, ok := err.(topo.Unorderable); ok {
			return xerrors.Errorf("cycle detected: %w", ErrCorruptGraph)
		}
		return xerrors.Errorf("topological sort failed: %w", err)
	}
	return nil
}

// TopologicalOrder returns the operations in a valid dependency order
// (parents before children), for callers that want a deterministic full
// walk without going through the Evaluator's ready-queue.
func (g *OperationGraph) TopologicalOrder() ([]OperationID, error) {
	dg := simple.NewDirectedGraph()
	for id := range g.operations {
		dg.AddNode(simple.Node(id))
	}
	for id, op := range g.operations {
		for _, child := range op.Children {
			dg.SetEdge(dg.NewEdge(simple.Node(id), simple.Node(child)))
		}
	}
	sorted, err := topo.Sort(dg)
	if err != nil {
		return nil, xerrors.Errorf("topological sort failed: %w", err)
	}
	out := make([]OperationID, len(sorted))
	for i, n := range sorted {
		out[i] = OperationID(n.ID())
	}
	return out, nil
}

// OperationResult is the observation recorded after an operation's last
// successful (or failed) evaluation.
type OperationResult struct {
	WasSuccessful   bool
	EvaluateTime    time.Time
	ObservedInputs  []fsstate.FileID
	ObservedOutputs []fsstate.FileID
}

// OperationResults is a keyed store of OperationResult; absence of an entry
// means "never successfully evaluated". It is mutated exclusively by the
// Evaluator (spec §3 Ownership) and is safe for concurrent use since the
// Evaluator may run independent branches of the graph concurrently.
type OperationResults struct {
	mu sync.Mutex
	m  map[OperationID]OperationResult
}

func NewResults() *OperationResults {
	return &OperationResults{m: make(map[OperationID]OperationResult)}
}

func (r *OperationResults) Get(id OperationID) (OperationResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.m[id]
	return res, ok
}

func (r *OperationResults) Put(id OperationID, res OperationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = res
}

func (r *OperationResults) Remove(id OperationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

// Keys returns every OperationID with a stored result, in ascending order.
func (r *OperationResults) Keys() []OperationID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OperationID, 0, len(r.m))
	for id := range r.m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *OperationResults) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
