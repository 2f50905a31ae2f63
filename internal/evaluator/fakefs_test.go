package evaluator

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/soupd/soupd/internal/fsstate"
)

// fakeFS is an in-memory FileSystem test double, keyed by last-write time
// rather than real timestamps so tests can order events precisely.
type fakeFS struct {
	mu      sync.Mutex
	written map[fsstate.Path]time.Time
}

func newFakeFS() *fakeFS {
	return &fakeFS{written: make(map[fsstate.Path]time.Time)}
}

func (f *fakeFS) touch(p fsstate.Path, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[p] = at
}

func (f *fakeFS) remove(p fsstate.Path) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.written, p)
}

func (f *fakeFS) Metadata(path fsstate.Path) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.written[path]
	if !ok {
		return time.Time{}, true, nil
	}
	return t, false, nil
}

func (f *fakeFS) Open(path fsstate.Path) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
