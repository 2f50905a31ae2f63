// Package statefile implements the four persisted binary formats that make
// up the Incremental State Model (spec §4.5/§6): the evaluate operation
// graph, operation results, the generate parameters value table, and path
// lists (used for the generate read/write access lists).
//
// Every format shares the same envelope (4-byte magic + uint32 version),
// the same length-prefixed-string and path-table-by-index conventions, and
// the same atomic-write discipline via github.com/google/renameio, the way
// distr1-distri's internal/build package writes squashfs images: a sibling
// temp file, fsync, rename.
package statefile

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned by every TryLoad* function when the target file
// does not exist: this is not an error condition, callers treat it as "no
// prior state" (spec §4.5: "Readers tolerate absence").
var ErrNotFound = xerrors.New("statefile: not found")

// ErrVersionMismatch is returned when a file's version field does not match
// what this build of soupd understands. Per spec §7, callers treat this
// identically to ErrCorrupt: discard prior state, log, proceed as a first
// build.
var ErrVersionMismatch = xerrors.New("statefile: version mismatch")

// ErrCorrupt is returned when a persisted file fails its magic check, has a
// malformed shape, or carries unexpected trailing bytes.
var ErrCorrupt = xerrors.New("statefile: corrupt state")

const currentVersion uint32 = 1

type magic [4]byte

var (
	magicGraph      = magic{'S', 'O', 'G', 'R'}
	magicResults    = magic{'S', 'O', 'R', 'S'}
	magicParameters = magic{'S', 'O', 'P', 'M'}
	magicPathList   = magic{'S', 'O', 'P', 'L'}
)

func writeHeader(w io.Writer, m magic) error {
	if _, err := w.Write(m[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, currentVersion)
}

// readHeader checks the magic and the version, returning nil when both
// match, or ErrCorrupt / ErrVersionMismatch.
func readHeader(r io.Reader, want magic) error {
	var got magic
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return xerrors.Errorf("reading magic: %w", ErrCorrupt)
	}
	if got != want {
		return xerrors.Errorf("bad magic %x, want %x: %w", got, want, ErrCorrupt)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return xerrors.Errorf("reading version: %w", ErrCorrupt)
	}
	if version != currentVersion {
		return xerrors.Errorf("version %d: %w", version, ErrVersionMismatch)
	}
	return nil
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, xerrors.Errorf("reading uint32: %w", ErrCorrupt)
	}
	return v, nil
}

func writeInt64(w io.Writer, v int64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readInt64(r io.Reader) (int64, error) {
	var v int64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, xerrors.Errorf("reading int64: %w", ErrCorrupt)
	}
	return v, nil
}

func writeBool(w io.Writer, b bool) error {
	v := uint8(0)
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, xerrors.Errorf("reading bool: %w", ErrCorrupt)
	}
	return buf[0] != 0, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", xerrors.Errorf("reading string body: %w", ErrCorrupt)
	}
	return string(buf), nil
}

// xerrorsWrapCorrupt wraps an inner decode error (from the value or opgraph
// packages, which know nothing about ErrCorrupt) so callers can still
// errors.Is(err, ErrCorrupt) regardless of where decoding failed.
func xerrorsWrapCorrupt(err error) error {
	return xerrors.Errorf("%v: %w", err, ErrCorrupt)
}

// checkNoTrailingBytes enforces "unknown trailing bytes -> reject" (spec
// §6). r must be the same reader sections were read from.
func checkNoTrailingBytes(r *bufio.Reader) error {
	if _, err := r.Peek(1); err != io.EOF {
		return xerrors.Errorf("unexpected trailing bytes: %w", ErrCorrupt)
	}
	return nil
}

// openForRead opens path, translating a missing file into ErrNotFound.
func openForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// atomicWrite writes the bytes produced by encode into path atomically: a
// sibling temp file, fsync, rename. Mirrors distr1-distri's
// renameio.TempFile(...) / f.CloseAtomicallyReplace() pattern used for
// squashfs images in internal/build/build.go.
func atomicWrite(path string, encode func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return err
	}
	defer f.Cleanup()

	bw := bufio.NewWriter(f)
	if err := encode(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.CloseAtomicallyReplace()
}
