package statefile

import (
	"bufio"
	"io"
	"sort"
	"time"

	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
)

// WriteResults persists res atomically. Per spec §4.4, only results for
// operations still present in the paired graph are written; stale entries
// are dropped at save time. It carries its own path table so that the
// results file remains independently loadable (e.g. GenerateResults has no
// companion persisted graph file: the Generate operation graph is
// reconstructed fresh in memory on every run).
func WriteResults(path string, res *opgraph.OperationResults, graph *opgraph.OperationGraph, fs *fsstate.FileSystemState) error {
	keys := res.Keys()
	kept := make([]opgraph.OperationID, 0, len(keys))
	for _, id := range keys {
		if _, ok := graph.Operation(id); ok {
			kept = append(kept, id)
		}
	}

	referenced := make(map[fsstate.FileID]struct{})
	for _, id := range kept {
		r, _ := res.Get(id)
		for _, fid := range r.ObservedInputs {
			referenced[fid] = struct{}{}
		}
		for _, fid := range r.ObservedOutputs {
			referenced[fid] = struct{}{}
		}
	}
	fileIDs := make([]fsstate.FileID, 0, len(referenced))
	for id := range referenced {
		fileIDs = append(fileIDs, id)
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	indexOf := make(map[fsstate.FileID]uint32, len(fileIDs))
	paths := make([]fsstate.Path, len(fileIDs))
	for i, id := range fileIDs {
		p, ok := fs.ToPath(id)
		if !ok {
			return xerrorsWrapCorrupt(errUnresolvedFileID)
		}
		paths[i] = p
		indexOf[id] = uint32(i + 1)
	}

	return atomicWrite(path, func(w io.Writer) error {
		if err := writeHeader(w, magicResults); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(paths))); err != nil {
			return err
		}
		for _, p := range paths {
			if err := writeString(w, string(p)); err != nil {
				return err
			}
		}
		if err := writeUint32(w, uint32(len(kept))); err != nil {
			return err
		}
		for _, id := range kept {
			r, _ := res.Get(id)
			if err := writeResult(w, id, r, indexOf); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeResult(w io.Writer, id opgraph.OperationID, r opgraph.OperationResult, indexOf map[fsstate.FileID]uint32) error {
	if err := writeInt64(w, int64(id)); err != nil {
		return err
	}
	if err := writeBool(w, r.WasSuccessful); err != nil {
		return err
	}
	if err := writeInt64(w, r.EvaluateTime.UnixNano()); err != nil {
		return err
	}
	if err := writeFileIDIndexes(w, r.ObservedInputs, indexOf); err != nil {
		return err
	}
	return writeFileIDIndexes(w, r.ObservedOutputs, indexOf)
}

// TryLoadResults loads a previously-written results file, re-interning its
// path table into fs.
func TryLoadResults(path string, fs *fsstate.FileSystemState) (*opgraph.OperationResults, error) {
	f, err := openForRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := readHeader(r, magicResults); err != nil {
		return nil, err
	}

	pathCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	idByIndex := make([]fsstate.FileID, pathCount+1)
	for i := uint32(1); i <= pathCount; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		idByIndex[i] = fs.ToID(fsstate.Path(s))
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	results := opgraph.NewResults()
	for i := uint32(0); i < count; i++ {
		id, res, err := readResult(r, idByIndex)
		if err != nil {
			return nil, err
		}
		results.Put(id, res)
	}

	if err := checkNoTrailingBytes(r); err != nil {
		return nil, err
	}
	return results, nil
}

func readResult(r io.Reader, idByIndex []fsstate.FileID) (opgraph.OperationID, opgraph.OperationResult, error) {
	id, err := readInt64(r)
	if err != nil {
		return 0, opgraph.OperationResult{}, err
	}
	ok, err := readBool(r)
	if err != nil {
		return 0, opgraph.OperationResult{}, err
	}
	nanos, err := readInt64(r)
	if err != nil {
		return 0, opgraph.OperationResult{}, err
	}
	inputs, err := readFileIDIndexes(r, idByIndex)
	if err != nil {
		return 0, opgraph.OperationResult{}, err
	}
	outputs, err := readFileIDIndexes(r, idByIndex)
	if err != nil {
		return 0, opgraph.OperationResult{}, err
	}
	return opgraph.OperationID(id), opgraph.OperationResult{
		WasSuccessful:   ok,
		EvaluateTime:    time.Unix(0, nanos).UTC(),
		ObservedInputs:  inputs,
		ObservedOutputs: outputs,
	}, nil
}
