package reconcile

import (
	"testing"
	"time"

	"github.com/soupd/soupd/internal/opgraph"
)

func TestReconcileCarriesForwardMatchingCommands(t *testing.T) {
	oldGraph := opgraph.New()
	oldID := oldGraph.AddOperation(opgraph.OperationInfo{
		Command: opgraph.CommandInfo{Executable: "/usr/bin/cc", Arguments: "-c a.c"},
	})
	oldResults := opgraph.NewResults()
	want := opgraph.OperationResult{WasSuccessful: true, EvaluateTime: time.Unix(100, 0)}
	oldResults.Put(oldID, want)

	newGraph := opgraph.New()
	newID := newGraph.AddOperation(opgraph.OperationInfo{
		Command: opgraph.CommandInfo{Executable: "/usr/bin/cc", Arguments: "-c a.c"},
	})
	unmatchedID := newGraph.AddOperation(opgraph.OperationInfo{
		Command: opgraph.CommandInfo{Executable: "/usr/bin/cc", Arguments: "-c b.c"},
	})

	got := Reconcile(newGraph, oldGraph, oldResults)

	gotRes, ok := got.Get(newID)
	if !ok {
		t.Fatalf("expected carried-forward result for matching command")
	}
	if gotRes.WasSuccessful != want.WasSuccessful || !gotRes.EvaluateTime.Equal(want.EvaluateTime) {
		t.Fatalf("carried result = %+v, want %+v", gotRes, want)
	}
	if _, ok := got.Get(unmatchedID); ok {
		t.Fatalf("expected no result for an operation whose command is new")
	}
}

func TestReconcileDropsResultsForVanishedCommands(t *testing.T) {
	oldGraph := opgraph.New()
	oldID := oldGraph.AddOperation(opgraph.OperationInfo{
		Command: opgraph.CommandInfo{Executable: "/usr/bin/cc", Arguments: "-c stale.c"},
	})
	oldResults := opgraph.NewResults()
	oldResults.Put(oldID, opgraph.OperationResult{WasSuccessful: true})

	newGraph := opgraph.New()
	newGraph.AddOperation(opgraph.OperationInfo{
		Command: opgraph.CommandInfo{Executable: "/usr/bin/cc", Arguments: "-c fresh.c"},
	})

	got := Reconcile(newGraph, oldGraph, oldResults)
	if got.Len() != 0 {
		t.Fatalf("expected every result dropped, got %d", got.Len())
	}
}

func TestReconcileFirstBuildHasNoPriorState(t *testing.T) {
	newGraph := opgraph.New()
	newGraph.AddOperation(opgraph.OperationInfo{
		Command: opgraph.CommandInfo{Executable: "/usr/bin/cc"},
	})

	got := Reconcile(newGraph, nil, nil)
	if got.Len() != 0 {
		t.Fatalf("expected empty results table on first build, got %d", got.Len())
	}
}
