// Package refstore defines the backing-store contract for the parliament
// ledger: content-addressable immutable objects reached through named paths,
// prefix enumeration, and branch merge/delete for motion content. Any backend
// satisfying this contract is a valid substrate; the gitstore subpackage
// backs it with git repositories and memstore keeps everything in memory for
// tests.
package refstore

import (
	"context"
	"errors"
)

// Ref identifies one immutable payload inside a store. For the git backend
// this is the blob's object hash.
type Ref string

// Entry pairs a payload ref with the path it is reachable under.
type Entry struct {
	Ref  Ref
	Path string
}

var (
	// ErrNotFound is returned by Get for a ref the store does not hold.
	ErrNotFound = errors.New("refstore: object not found")
	// ErrPathExists is returned by Swap("") when the path is already bound.
	ErrPathExists = errors.New("refstore: path already bound")
	// ErrStaleSwap is returned by Swap when the path moved since the caller
	// read it.
	ErrStaleSwap = errors.New("refstore: path changed since read")
	// ErrBranchExists is returned by CreateBranch for a name already in use.
	ErrBranchExists = errors.New("refstore: branch already exists")
	// ErrBranchMissing is returned by MergeBranch/DeleteBranch for an
	// unknown branch.
	ErrBranchMissing = errors.New("refstore: branch not found")
)

// Store is a single participant's append-only record store. Written payloads
// are immutable; paths are moving pointers onto them. A path is expected to
// be written once with a fresh nonce segment (ballots, debate entries) or to
// be deliberately repointed by its owner (delegations, motion metadata).
type Store interface {
	// Put writes payload as an immutable object and points path at it,
	// replacing any previous binding of path.
	Put(ctx context.Context, path string, payload []byte) (Ref, error)

	// Swap points path at payload only if it currently points at old.
	// An empty old requires that path is not bound yet.
	Swap(ctx context.Context, path string, payload []byte, old Ref) (Ref, error)

	// Get returns the payload identified by ref.
	Get(ctx context.Context, ref Ref) ([]byte, error)

	// ListPrefix enumerates every bound path under prefix. A prefix nobody
	// has written under yields an empty list, not an error.
	ListPrefix(ctx context.Context, prefix string) ([]Entry, error)

	// CreateBranch creates an isolated branch from the main line holding
	// the given files.
	CreateBranch(ctx context.Context, name string, files map[string][]byte) error

	// MergeBranch merges the named branch into the main line. The merge is
	// history-preserving: the branch's history remains reachable from the
	// merge point (no fast-forward).
	MergeBranch(ctx context.Context, name string) error

	// DeleteBranch discards the named branch.
	DeleteBranch(ctx context.Context, name string) error
}

// Resolver opens the store owned by a named participant. Opening a remote
// that cannot be reached returns an error; callers scanning many remotes
// treat that as skippable.
type Resolver interface {
	Open(ctx context.Context, name string) (Store, error)
}
