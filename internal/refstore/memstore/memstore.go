// Package memstore is the in-memory refstore backend used by unit tests. It
// mirrors gitstore's semantics (content-addressed payloads, moving path
// pointers, branch create/merge/delete) without touching the filesystem.
package memstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"parliament/internal/refstore"
)

// Resolver hands out one Store per participant name. Tests can force a name
// to be unreachable with FailWith.
type Resolver struct {
	mu     sync.Mutex
	stores map[string]*Store
	fail   map[string]error
}

func NewResolver() *Resolver {
	return &Resolver{
		stores: make(map[string]*Store),
		fail:   make(map[string]error),
	}
}

func (r *Resolver) Open(ctx context.Context, name string) (refstore.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[name]; ok {
		return nil, err
	}
	st, ok := r.stores[name]
	if !ok {
		st = NewStore()
		r.stores[name] = st
	}
	return st, nil
}

// Store returns the named store directly, creating it if needed.
func (r *Resolver) Store(name string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[name]
	if !ok {
		st = NewStore()
		r.stores[name] = st
	}
	return st
}

// FailWith makes Open(name) return err, simulating an unreachable remote.
func (r *Resolver) FailWith(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[name] = err
}

type Store struct {
	mu       sync.Mutex
	objects  map[refstore.Ref][]byte
	paths    map[string]refstore.Ref
	branches map[string]map[string][]byte
	main     map[string][]byte

	// Merged and Deleted record enacted branch operations in order.
	Merged  []string
	Deleted []string

	// MergeErr/DeleteErr, when set, make the corresponding operation fail.
	MergeErr  error
	DeleteErr error
}

func NewStore() *Store {
	return &Store{
		objects:  make(map[refstore.Ref][]byte),
		paths:    make(map[string]refstore.Ref),
		branches: make(map[string]map[string][]byte),
		main:     make(map[string][]byte),
	}
}

func hashPayload(payload []byte) refstore.Ref {
	sum := sha1.Sum(payload)
	return refstore.Ref(hex.EncodeToString(sum[:]))
}

func (s *Store) Put(ctx context.Context, path string, payload []byte) (refstore.Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := hashPayload(payload)
	s.objects[ref] = append([]byte(nil), payload...)
	s.paths[path] = ref
	return ref, nil
}

func (s *Store) Swap(ctx context.Context, path string, payload []byte, old refstore.Ref) (refstore.Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, bound := s.paths[path]
	if old == "" && bound {
		return "", refstore.ErrPathExists
	}
	if old != "" && (!bound || current != old) {
		return "", refstore.ErrStaleSwap
	}

	ref := hashPayload(payload)
	s.objects[ref] = append([]byte(nil), payload...)
	s.paths[path] = ref
	return ref, nil
}

func (s *Store) Get(ctx context.Context, ref refstore.Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.objects[ref]
	if !ok {
		return nil, refstore.ErrNotFound
	}
	return append([]byte(nil), payload...), nil
}

func (s *Store) ListPrefix(ctx context.Context, prefix string) ([]refstore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]refstore.Entry, 0)
	for path, ref := range s.paths {
		if strings.HasPrefix(path, prefix) {
			entries = append(entries, refstore.Entry{Ref: ref, Path: path})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (s *Store) CreateBranch(ctx context.Context, name string, files map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[name]; ok {
		return refstore.ErrBranchExists
	}
	copied := make(map[string][]byte, len(files))
	for file, content := range files {
		copied[file] = append([]byte(nil), content...)
	}
	s.branches[name] = copied
	return nil
}

func (s *Store) MergeBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MergeErr != nil {
		return s.MergeErr
	}
	files, ok := s.branches[name]
	if !ok {
		return refstore.ErrBranchMissing
	}
	for file, content := range files {
		s.main[file] = append([]byte(nil), content...)
	}
	s.Merged = append(s.Merged, name)
	return nil
}

func (s *Store) DeleteBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.branches[name]; !ok {
		return refstore.ErrBranchMissing
	}
	delete(s.branches, name)
	s.Deleted = append(s.Deleted, name)
	return nil
}

// MainFile returns the content of a file on the main line, if merged.
func (s *Store) MainFile(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.main[name]
	return content, ok
}

// HasBranch reports whether the named branch still exists.
func (s *Store) HasBranch(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.branches[name]
	return ok
}
