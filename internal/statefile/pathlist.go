package statefile

import (
	"bufio"
	"io"

	"github.com/soupd/soupd/internal/fsstate"
)

// WritePathList persists paths atomically, used for GenerateReadAccessList
// and GenerateWriteAccessList. Order is preserved on disk: path-list
// equality is order-sensitive by design (spec §4.7: "an ordering change
// invalidates, by design, because sandbox ordering can matter for later
// tooling").
func WritePathList(path string, paths []fsstate.Path) error {
	return atomicWrite(path, func(w io.Writer) error {
		if err := writeHeader(w, magicPathList); err != nil {
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
		return nil
	})
}

// TryLoadPathList loads a previously-written path list. It returns
// (nil, ErrNotFound) if the file does not exist.
func TryLoadPathList(path string) ([]fsstate.Path, error) {
	f, err := openForRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := readHeader(r, magicPathList); err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]fsstate.Path, count)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = fsstate.Path(s)
	}
	if err := checkNoTrailingBytes(r); err != nil {
		return nil, err
	}
	return out, nil
}

// PathListEqual implements the order-sensitive equality spec §4.7 requires
// for change detection on the generate read/write access lists.
func PathListEqual(a, b []fsstate.Path) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
