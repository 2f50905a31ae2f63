package fsstate

import (
	"bytes"
	"io"
	"time"
)

// fakeFS is a minimal in-memory FileSystem double, substituted in tests per
// spec §9's "Tests substitute mock implementations" design note.
type fakeFS struct {
	content map[Path][]byte
	modTime map[Path]time.Time
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		content: make(map[Path][]byte),
		modTime: make(map[Path]time.Time),
	}
}

func (f *fakeFS) touch(path Path, at time.Time, content string) {
	f.content[path] = []byte(content)
	f.modTime[path] = at
}

func (f *fakeFS) remove(path Path) {
	delete(f.content, path)
	delete(f.modTime, path)
}

func (f *fakeFS) Metadata(path Path) (time.Time, bool, error) {
	mt, ok := f.modTime[path]
	if !ok {
		return time.Time{}, true, nil
	}
	return mt, false, nil
}

func (f *fakeFS) Open(path Path) (io.ReadCloser, error) {
	b, ok := f.content[path]
	if !ok {
		return nil, errUnknownFileID(0)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
