// Package fsstate implements the File-System State component: a
// bidirectional Path<->FileID table plus a per-process cache of file
// observations (last-write time, lazily-hashed content). See spec §4.1/§3.
package fsstate

import (
	"crypto/sha256"
	"io"
	"sort"
	"sync"
	"time"
)

// Path is an opaque, normalised file-system path. It is orderable
// (string-ordered) and root-aware in the sense that callers are expected to
// pass already-rooted (absolute) paths; normalisation of raw user input is
// an external collaborator's concern (recipe/CLI parsing, out of scope).
type Path string

// FileID is a stable integer handle assigned the first time a Path is seen
// by a given FileSystemState. Ids are dense from 1 and monotonic within the
// owning process; the persisted form only ever stores Paths, and ids are
// reassigned on load by re-interning those paths.
type FileID int64

// Observation is the ground truth the Evaluator uses to decide whether to
// skip or re-run an operation.
type Observation struct {
	Missing   bool
	LastWrite time.Time
}

// FileSystem is the capability this package needs from the OS (or a test
// double), per spec §9's "FileSystem::{exists, metadata, create_dir,
// open}" capability.
type FileSystem interface {
	// Metadata returns the last-write time of path. missing is true and err
	// is nil when the path does not exist.
	Metadata(path Path) (lastWrite time.Time, missing bool, err error)
	// Open opens path for reading, used for on-demand content hashing.
	Open(path Path) (io.ReadCloser, error)
}

// FileSystemState is the canonical id<->path table for one build process.
// It is safe for concurrent use; the Evaluator shares one instance across
// every operation it runs.
type FileSystemState struct {
	fs FileSystem

	mu       sync.Mutex
	idsByPth map[Path]FileID
	pathByID map[FileID]Path
	nextID   FileID

	// observed is cleared at the start of every Evaluate call (see
	// ResetObservationCache); within one call, repeated Observe(id) calls
	// for the same id hit this cache instead of re-stat'ing.
	observed map[FileID]Observation
	hashes   map[FileID][]byte
}

func New(fs FileSystem) *FileSystemState {
	return &FileSystemState{
		fs:       fs,
		idsByPth: make(map[Path]FileID),
		pathByID: make(map[FileID]Path),
		observed: make(map[FileID]Observation),
		hashes:   make(map[FileID][]byte),
	}
}

// ToID returns the stable id for path, interning it (assigning the next
// dense id) if this is the first time path has been seen.
func (s *FileSystemState) ToID(path Path) FileID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.idsByPth[path]; ok {
		return id
	}
	s.nextID++
	id := s.nextID
	s.idsByPth[path] = id
	s.pathByID[id] = path
	return id
}

// ToPath resolves a previously-interned id back to its Path.
func (s *FileSystemState) ToPath(id FileID) (Path, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pathByID[id]
	return p, ok
}

// Invalidate drops any cached observation for id, forcing the next Observe
// to re-read the file system.
func (s *FileSystemState) Invalidate(id FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observed, id)
	delete(s.hashes, id)
}

// ResetObservationCache clears the per-call observation cache. The
// Evaluator calls this at the start of each Evaluate invocation: observations are
// cached for the duration of one Evaluate call and re-read across calls.
func (s *FileSystemState) ResetObservationCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed = make(map[FileID]Observation)
	s.hashes = make(map[FileID][]byte)
}

// Observe returns the last-write-or-missing state of id, using the
// per-Evaluate-call cache when present.
func (s *FileSystemState) Observe(id FileID) (Observation, error) {
	s.mu.Lock()
	if obs, ok := s.observed[id]; ok {
		s.mu.Unlock()
		return obs, nil
	}
	path, ok := s.pathByID[id]
	s.mu.Unlock()
	if !ok {
		return Observation{}, errUnknownFileID(id)
	}

	lastWrite, missing, err := s.fs.Metadata(path)
	if err != nil {
		return Observation{}, err
	}
	obs := Observation{Missing: missing, LastWrite: lastWrite}

	s.mu.Lock()
	s.observed[id] = obs
	s.mu.Unlock()
	return obs, nil
}

// ContentHash lazily computes and caches the sha256 of id's current
// content. Per spec §4.1, this is only meant to be invoked when two
// observations share a last-write timestamp and the consumer wants
// stronger evidence than the timestamp alone.
func (s *FileSystemState) ContentHash(id FileID) ([]byte, error) {
	s.mu.Lock()
	if h, ok := s.hashes[id]; ok {
		s.mu.Unlock()
		return h, nil
	}
	path, ok := s.pathByID[id]
	s.mu.Unlock()
	if !ok {
		return nil, errUnknownFileID(id)
	}

	rc, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return nil, err
	}
	sum := h.Sum(nil)

	s.mu.Lock()
	s.hashes[id] = sum
	s.mu.Unlock()
	return sum, nil
}

// Snapshot returns every interned path, ordered by FileID (i.e. dense from
// 1), for persistence. The persisted form stores only these strings; ids
// are reassigned by re-interning (ToID) on load.
func (s *FileSystemState) Snapshot() []Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]FileID, 0, len(s.pathByID))
	for id := range s.pathByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Path, len(ids))
	for i, id := range ids {
		out[i] = s.pathByID[id]
	}
	return out
}

type unknownFileIDError struct{ id FileID }

func (e unknownFileIDError) Error() string {
	return "fsstate: unknown FileID"
}

func errUnknownFileID(id FileID) error { return unknownFileIDError{id: id} }
