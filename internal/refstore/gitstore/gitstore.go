// Package gitstore backs the refstore contract with git repositories, one
// repository per participant under a shared base directory. Record payloads
// are written as loose blob objects addressed by their hash, with a ref per
// logical path, so every write is atomic and append-only by construction.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"parliament/internal/refstore"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const mainBranch = "main"

// Manager hands out one Store per participant name, creating and
// initializing the underlying repository on first open.
type Manager struct {
	baseDir string
	mu      sync.Mutex
	stores  map[string]*Store
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir: baseDir,
		stores:  make(map[string]*Store),
	}
}

// Open returns the store owned by name, initializing its repository if it
// does not exist yet.
func (m *Manager) Open(ctx context.Context, name string) (refstore.Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.stores[name]; ok {
		return st, nil
	}

	path := filepath.Join(m.baseDir, name)
	repo, err := openOrInit(path, name)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}

	st := &Store{owner: name, repo: repo}
	m.stores[name] = st
	return st, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("gitstore: empty store name")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("gitstore: invalid store name %q", name)
	}
	return nil
}

func openOrInit(path, owner string) (*git.Repository, error) {
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return nil, fmt.Errorf("open repo: %w", err)
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "OWNER"), []byte(owner+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write owner file: %w", err)
	}
	if _, err := worktree.Add("OWNER"); err != nil {
		return nil, fmt.Errorf("git add owner file: %w", err)
	}
	hash, err := worktree.Commit("Initialize participant store", &git.CommitOptions{
		Author: signature(owner),
	})
	if err != nil {
		return nil, fmt.Errorf("commit store baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func signature(owner string) *object.Signature {
	return &object.Signature{
		Name:  owner,
		Email: fmt.Sprintf("%s@parliament.local", sanitizeEmail(owner)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	cleaned := strings.ToLower(strings.TrimSpace(input))
	cleaned = strings.ReplaceAll(cleaned, " ", ".")
	if cleaned == "" {
		return "anonymous"
	}
	return cleaned
}

// Store is one participant's repository. All mutating operations hold the
// store lock; git ref writes are not atomic on their own.
type Store struct {
	owner string
	mu    sync.Mutex
	repo  *git.Repository
}

func (s *Store) Put(ctx context.Context, path string, payload []byte) (refstore.Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := s.writeBlob(payload)
	if err != nil {
		return "", err
	}
	refName := plumbing.ReferenceName("refs/" + path)
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash)); err != nil {
		return "", fmt.Errorf("set ref %s: %w", path, err)
	}
	return refstore.Ref(hash.String()), nil
}

func (s *Store) Swap(ctx context.Context, path string, payload []byte, old refstore.Ref) (refstore.Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	refName := plumbing.ReferenceName("refs/" + path)
	current, err := s.repo.Storer.Reference(refName)
	switch {
	case err == nil:
		if old == "" {
			return "", refstore.ErrPathExists
		}
		if current.Hash().String() != string(old) {
			return "", refstore.ErrStaleSwap
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		if old != "" {
			return "", refstore.ErrStaleSwap
		}
	default:
		return "", fmt.Errorf("read ref %s: %w", path, err)
	}

	hash, err := s.writeBlob(payload)
	if err != nil {
		return "", err
	}
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash)); err != nil {
		return "", fmt.Errorf("set ref %s: %w", path, err)
	}
	return refstore.Ref(hash.String()), nil
}

func (s *Store) writeBlob(payload []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open blob writer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close blob writer: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob: %w", err)
	}
	return hash, nil
}

func (s *Store) Get(ctx context.Context, ref refstore.Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.repo.BlobObject(plumbing.NewHash(string(ref)))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, refstore.ErrNotFound
		}
		return nil, fmt.Errorf("read blob %s: %w", ref, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("open blob reader: %w", err)
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob payload: %w", err)
	}
	return payload, nil
}

func (s *Store) ListPrefix(ctx context.Context, prefix string) ([]refstore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.repo.References()
	if err != nil {
		return nil, fmt.Errorf("iterate refs: %w", err)
	}
	defer iter.Close()

	full := "refs/" + prefix
	entries := make([]refstore.Entry, 0)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name().String()
		if !strings.HasPrefix(name, full) {
			return nil
		}
		entries = append(entries, refstore.Entry{
			Ref:  refstore.Ref(ref.Hash().String()),
			Path: strings.TrimPrefix(name, "refs/"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan refs under %s: %w", prefix, err)
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

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := s.repo.Reference(branchRef, true); err == nil {
		return refstore.ErrBranchExists
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("check branch %s: %w", name, err)
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := s.checkoutMain(worktree); err != nil {
		return err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}

	root := worktree.Filesystem.Root()
	for file, content := range files {
		target := filepath.Join(root, filepath.FromSlash(file))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", file, err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
		if _, err := worktree.Add(file); err != nil {
			return fmt.Errorf("git add %s: %w", file, err)
		}
	}
	if _, err := worktree.Commit(fmt.Sprintf("Open branch %s", name), &git.CommitOptions{
		Author: signature(s.owner),
	}); err != nil {
		return fmt.Errorf("commit branch %s: %w", name, err)
	}
	return s.checkoutMain(worktree)
}

func (s *Store) MergeBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	branchRef, err := s.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return refstore.ErrBranchMissing
		}
		return fmt.Errorf("resolve branch %s: %w", name, err)
	}
	mainRef, err := s.repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return fmt.Errorf("resolve main: %w", err)
	}

	branchCommit, err := s.repo.CommitObject(branchRef.Hash())
	if err != nil {
		return fmt.Errorf("load branch commit: %w", err)
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := s.checkoutMain(worktree); err != nil {
		return err
	}

	// Materialize the branch's files onto main, then record a two-parent
	// merge commit so the branch history stays reachable.
	root := worktree.Filesystem.Root()
	fileIter, err := branchCommit.Files()
	if err != nil {
		return fmt.Errorf("iterate branch files: %w", err)
	}
	err = fileIter.ForEach(func(f *object.File) error {
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", f.Name, err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
		if _, err := worktree.Add(f.Name); err != nil {
			return fmt.Errorf("git add %s: %w", f.Name, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := worktree.Commit(fmt.Sprintf("Merge branch '%s'", name), &git.CommitOptions{
		AllowEmptyCommits: true,
		Parents:           []plumbing.Hash{mainRef.Hash(), branchRef.Hash()},
		Author:            signature(s.owner),
	}); err != nil {
		return fmt.Errorf("commit merge of %s: %w", name, err)
	}
	return nil
}

func (s *Store) DeleteBranch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := s.repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return refstore.ErrBranchMissing
		}
		return fmt.Errorf("resolve branch %s: %w", name, err)
	}
	if err := s.repo.Storer.RemoveReference(branchRef); err != nil {
		return fmt.Errorf("delete branch %s: %w", name, err)
	}
	return nil
}

func (s *Store) checkoutMain(worktree *git.Worktree) error {
	if err := worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(mainBranch),
		Force:  true,
	}); err != nil {
		return fmt.Errorf("checkout main: %w", err)
	}
	return nil
}
