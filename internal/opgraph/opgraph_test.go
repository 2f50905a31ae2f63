package opgraph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/soupd/soupd/internal/fsstate"
)

func cmd(n string) CommandInfo {
	return CommandInfo{WorkingDirectory: "/pkg", Executable: fsstate.Path(n), Arguments: ""}
}

func TestAddOperationAssignsAndFindsByCommand(t *testing.T) {
	g := New()
	aID := g.AddOperation(OperationInfo{Title: "A", Command: cmd("a")})
	bID := g.AddOperation(OperationInfo{Title: "B", Command: cmd("b")})
	if aID == bID {
		t.Fatalf("expected distinct ids")
	}
	g.SetRoots([]OperationID{aID})

	got, ok := g.FindByCommand(cmd("b"))
	if !ok || got != bID {
		t.Fatalf("FindByCommand(b) = %v, %v, want %v, true", got, ok, bID)
	}
	if _, ok := g.FindByCommand(cmd("missing")); ok {
		t.Fatalf("expected no match for unknown command")
	}
}

func TestValidateDetectsDanglingChild(t *testing.T) {
	g := New()
	id := g.AddOperation(OperationInfo{Title: "A", Command: cmd("a"), Children: []OperationID{99}})
	g.SetRoots([]OperationID{id})
	if err := g.Validate(); !errors.Is(err, ErrCorruptGraph) {
		t.Fatalf("Validate() = %v, want ErrCorruptGraph", err)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	g := New()
	aID := g.AddOperation(OperationInfo{Title: "A", Command: cmd("a")})
	bID := g.AddOperation(OperationInfo{Title: "B", Command: cmd("b")})
	a, _ := g.Operation(aID)
	a.Children = []OperationID{bID}
	b, _ := g.Operation(bID)
	b.Children = []OperationID{aID}
	g.SetRoots([]OperationID{aID})

	if err := g.Validate(); !errors.Is(err, ErrCorruptGraph) {
		t.Fatalf("Validate() = %v, want ErrCorruptGraph (cycle)", err)
	}
}

func TestValidateAcceptsDAG(t *testing.T) {
	g := New()
	aID := g.AddOperation(OperationInfo{Title: "A", Command: cmd("a")})
	bID := g.AddOperation(OperationInfo{Title: "B", Command: cmd("b"), DependencyCount: 1})
	a, _ := g.Operation(aID)
	a.Children = []OperationID{bID}
	g.SetRoots([]OperationID{aID})

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	idxA, idxB := -1, -1
	for i, id := range order {
		if id == aID {
			idxA = i
		}
		if id == bID {
			idxB = i
		}
	}
	if idxA == -1 || idxB == -1 || idxA > idxB {
		t.Fatalf("expected A before B in topological order, got %v", order)
	}
}

func TestReferencedFileIDsDeduplicatedAndSorted(t *testing.T) {
	g := New()
	g.AddOperation(OperationInfo{
		Command:         cmd("a"),
		DeclaredInputs:  []fsstate.FileID{3, 1},
		DeclaredOutputs: []fsstate.FileID{1, 5},
	})
	got := g.ReferencedFileIDs()
	want := []fsstate.FileID{1, 3, 5}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("ReferencedFileIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestOperationResultsGetPutRemove(t *testing.T) {
	r := NewResults()
	if _, ok := r.Get(1); ok {
		t.Fatalf("expected absent result for never-evaluated operation")
	}
	r.Put(1, OperationResult{WasSuccessful: true})
	got, ok := r.Get(1)
	if !ok || !got.WasSuccessful {
		t.Fatalf("Get(1) = %+v, %v, want WasSuccessful=true", got, ok)
	}
	r.Remove(1)
	if _, ok := r.Get(1); ok {
		t.Fatalf("expected result removed")
	}
}
