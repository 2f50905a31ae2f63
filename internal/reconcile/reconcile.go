// Package reconcile implements the Reconciliation Algorithm (spec §4.8):
// after a Generate step produces a fresh operation graph, prior results are
// carried forward onto the new operation ids by matching command identity,
// grounded on original_source's BuildRunner.h reconciliation block.
package reconcile

import (
	"github.com/soupd/soupd/internal/opgraph"
)

// Reconcile builds the results table the Evaluator should use against
// newGraph: for each operation N in newGraph, its command is looked up in
// oldGraph's command index; if a matching old operation P is found and
// oldResults has a result for P, that result is carried forward (moved, not
// cloned) under N's id. Operations with no matching command are left
// without a prior result, forcing a run.
//
// oldGraph and oldResults may be nil, the case of a package's first build.
func Reconcile(newGraph *opgraph.OperationGraph, oldGraph *opgraph.OperationGraph, oldResults *opgraph.OperationResults) *opgraph.OperationResults {
	newResults := opgraph.NewResults()
	if oldGraph == nil || oldResults == nil {
		return newResults
	}

	for id, op := range newGraph.Operations() {
		oldID, ok := oldGraph.FindByCommand(op.Command)
		if !ok {
			continue
		}
		res, ok := oldResults.Get(oldID)
		if !ok {
			continue
		}
		newResults.Put(id, res)
	}
	return newResults
}
