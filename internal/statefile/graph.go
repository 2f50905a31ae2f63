package statefile

import (
	"bufio"
	"io"
	"sort"

	"github.com/soupd/soupd/internal/fsstate"
	"github.com/soupd/soupd/internal/opgraph"
)

// WriteGraph persists g atomically. File ids referenced by any operation's
// declared inputs/outputs are canonicalised into a single path table and
// referenced elsewhere by 1-based index, per spec §4.3/§6.
func WriteGraph(path string, g *opgraph.OperationGraph, fs *fsstate.FileSystemState) error {
	referenced := g.ReferencedFileIDs()
	indexOf := make(map[fsstate.FileID]uint32, len(referenced))
	paths := make([]fsstate.Path, len(referenced))
	for i, id := range referenced {
		p, ok := fs.ToPath(id)
		if !ok {
			return xerrorsWrapCorrupt(errUnresolvedFileID)
		}
		paths[i] = p
		indexOf[id] = uint32(i + 1) // 1-based
	}

	ops := g.Operations()
	ids := make([]opgraph.OperationID, 0, len(ops))
	for id := range ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return atomicWrite(path, func(w io.Writer) error {
		if err := writeHeader(w, magicGraph); err != nil {
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

		roots := g.RootIDs()
		if err := writeUint32(w, uint32(len(roots))); err != nil {
			return err
		}
		for _, id := range roots {
			if err := writeInt64(w, int64(id)); err != nil {
				return err
			}
		}

		if err := writeUint32(w, uint32(len(ids))); err != nil {
			return err
		}
		for _, id := range ids {
			op := ops[id]
			if err := writeOperation(w, op, indexOf); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeOperation(w io.Writer, op *opgraph.OperationInfo, indexOf map[fsstate.FileID]uint32) error {
	if err := writeInt64(w, int64(op.ID)); err != nil {
		return err
	}
	if err := writeString(w, op.Title); err != nil {
		return err
	}
	if err := writeString(w, string(op.Command.WorkingDirectory)); err != nil {
		return err
	}
	if err := writeString(w, string(op.Command.Executable)); err != nil {
		return err
	}
	if err := writeString(w, op.Command.Arguments); err != nil {
		return err
	}
	if err := writeFileIDIndexes(w, op.DeclaredInputs, indexOf); err != nil {
		return err
	}
	if err := writeFileIDIndexes(w, op.DeclaredOutputs, indexOf); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(op.Children))); err != nil {
		return err
	}
	for _, c := range op.Children {
		if err := writeInt64(w, int64(c)); err != nil {
			return err
		}
	}
	return writeUint32(w, op.DependencyCount)
}

func writeFileIDIndexes(w io.Writer, ids []fsstate.FileID, indexOf map[fsstate.FileID]uint32) error {
	if err := writeUint32(w, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		idx, ok := indexOf[id]
		if !ok {
			return xerrorsWrapCorrupt(errUnresolvedFileID)
		}
		if err := writeUint32(w, idx); err != nil {
			return err
		}
	}
	return nil
}

// TryLoadGraph loads a previously-written graph. Every persisted path is
// re-interned into fs (assigning fresh FileIDs, per fsstate's "re-id'd on
// load" invariant), and the loaded graph is validated (spec §4.3: unknown
// ids, out-of-range file indexes, or cycles all fail with ErrCorrupt).
func TryLoadGraph(path string, fs *fsstate.FileSystemState) (*opgraph.OperationGraph, error) {
	f, err := openForRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := readHeader(r, magicGraph); err != nil {
		return nil, err
	}

	pathCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	idByIndex := make([]fsstate.FileID, pathCount+1) // 1-based; index 0 unused
	for i := uint32(1); i <= pathCount; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		idByIndex[i] = fs.ToID(fsstate.Path(s))
	}

	rootCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	roots := make([]opgraph.OperationID, rootCount)
	for i := range roots {
		id, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		roots[i] = opgraph.OperationID(id)
	}

	opCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	g := opgraph.New()
	for i := uint32(0); i < opCount; i++ {
		op, err := readOperation(r, idByIndex)
		if err != nil {
			return nil, err
		}
		g.AddOperation(*op)
	}
	g.SetRoots(roots)

	if err := checkNoTrailingBytes(r); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, xerrorsWrapCorrupt(err)
	}
	return g, nil
}

func readOperation(r io.Reader, idByIndex []fsstate.FileID) (*opgraph.OperationInfo, error) {
	id, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	title, err := readString(r)
	if err != nil {
		return nil, err
	}
	workdir, err := readString(r)
	if err != nil {
		return nil, err
	}
	exe, err := readString(r)
	if err != nil {
		return nil, err
	}
	args, err := readString(r)
	if err != nil {
		return nil, err
	}
	inputs, err := readFileIDIndexes(r, idByIndex)
	if err != nil {
		return nil, err
	}
	outputs, err := readFileIDIndexes(r, idByIndex)
	if err != nil {
		return nil, err
	}
	childCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	children := make([]opgraph.OperationID, childCount)
	for i := range children {
		c, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		children[i] = opgraph.OperationID(c)
	}
	depCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &opgraph.OperationInfo{
		ID:    opgraph.OperationID(id),
		Title: title,
		Command: opgraph.CommandInfo{
			WorkingDirectory: fsstate.Path(workdir),
			Executable:       fsstate.Path(exe),
			Arguments:        args,
		},
		DeclaredInputs:  inputs,
		DeclaredOutputs: outputs,
		Children:        children,
		DependencyCount: depCount,
	}, nil
}

func readFileIDIndexes(r io.Reader, idByIndex []fsstate.FileID) ([]fsstate.FileID, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]fsstate.FileID, count)
	for i := range out {
		idx, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		if idx == 0 || int(idx) >= len(idByIndex) {
			return nil, xerrorsWrapCorrupt(errUnresolvedFileID)
		}
		out[i] = idByIndex[idx]
	}
	return out, nil
}

var errUnresolvedFileID = fileIDError{}

type fileIDError struct{}

func (fileIDError) Error() string { return "statefile: file id does not resolve against path table" }
