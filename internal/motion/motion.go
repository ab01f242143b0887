// Package motion implements the motion store: proposal metadata, the
// monotonic state lattice, and the isolated content branch each motion's
// text lives on until a decision is enacted.
package motion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parliament/internal/events"
	"parliament/internal/ident"
	"parliament/internal/refstore"
)

type State string

const (
	StateDraft    State = "draft"
	StateOpen     State = "open"
	StateVoting   State = "voting"
	StateDecided  State = "decided"
	StateMerged   State = "merged"
	StateRejected State = "rejected"
)

// Terminal reports whether the state admits no further transition.
func (s State) Terminal() bool {
	return s == StateMerged || s == StateRejected
}

func (s State) valid() bool {
	switch s {
	case StateDraft, StateOpen, StateVoting, StateDecided, StateMerged, StateRejected:
		return true
	}
	return false
}

// canAdvance is the full transition relation: one forward step at a time,
// merged/rejected terminal.
func canAdvance(from, to State) bool {
	switch from {
	case StateDraft:
		return to == StateOpen
	case StateOpen:
		return to == StateVoting
	case StateVoting:
		return to == StateDecided
	case StateDecided:
		return to == StateMerged || to == StateRejected
	}
	return false
}

var (
	ErrNotFound          = errors.New("motion: not found")
	ErrDuplicate         = errors.New("motion: id already exists")
	ErrInvalidTransition = errors.New("motion: invalid state transition")
	ErrConcurrentUpdate  = errors.New("motion: state changed concurrently")
)

type Motion struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// BranchName is the isolated branch a motion's content lives on.
func BranchName(id string) string {
	return "motions/" + id
}

// ContentFile is the file holding the motion text on its branch.
func ContentFile(id string) string {
	return "motions/" + id + ".md"
}

func metaPath(id string) string {
	return "motion/" + id
}

// Store persists motions in the shared parliament store.
type Store struct {
	store refstore.Store
	ids   ident.Generator
	bus   *events.Bus
	now   func() time.Time
}

func NewStore(store refstore.Store, ids ident.Generator, bus *events.Bus) *Store {
	return &Store{
		store: store,
		ids:   ids,
		bus:   bus,
		now:   time.Now,
	}
}

// Create registers a new motion under a generated id and opens its content
// branch.
func (s *Store) Create(ctx context.Context, title, body, author string) (Motion, error) {
	return s.create(ctx, s.ids.NewMotionID(), title, body, author)
}

// CreateWithID registers a motion under a caller-chosen id, failing with
// ErrDuplicate if the id is taken.
func (s *Store) CreateWithID(ctx context.Context, id, title, body, author string) (Motion, error) {
	if id == "" {
		return Motion{}, errors.New("motion: empty id")
	}
	return s.create(ctx, id, title, body, author)
}

func (s *Store) create(ctx context.Context, id, title, body, author string) (Motion, error) {
	m := Motion{
		ID:        id,
		Title:     title,
		Body:      body,
		Author:    author,
		State:     StateDraft,
		CreatedAt: s.now().UTC(),
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return Motion{}, fmt.Errorf("marshal motion: %w", err)
	}
	if _, err := s.store.Swap(ctx, metaPath(id), payload, ""); err != nil {
		if errors.Is(err, refstore.ErrPathExists) {
			return Motion{}, fmt.Errorf("%w: %s", ErrDuplicate, id)
		}
		return Motion{}, fmt.Errorf("write motion record: %w", err)
	}

	content := fmt.Sprintf("# %s\n\n%s\n", title, body)
	err = s.store.CreateBranch(ctx, BranchName(id), map[string][]byte{
		ContentFile(id): []byte(content),
	})
	if err != nil {
		if errors.Is(err, refstore.ErrBranchExists) {
			return Motion{}, fmt.Errorf("%w: branch %s", ErrDuplicate, BranchName(id))
		}
		return Motion{}, fmt.Errorf("open motion branch: %w", err)
	}

	s.bus.Publish(events.MotionCreated, events.Event{MotionID: id, Actor: author, Detail: title})
	return m, nil
}

// Get returns the motion record for id.
func (s *Store) Get(ctx context.Context, id string) (Motion, error) {
	m, _, err := s.load(ctx, id)
	return m, err
}

func (s *Store) load(ctx context.Context, id string) (Motion, refstore.Ref, error) {
	entries, err := s.store.ListPrefix(ctx, metaPath(id))
	if err != nil {
		return Motion{}, "", fmt.Errorf("list motion record: %w", err)
	}
	for _, entry := range entries {
		if entry.Path != metaPath(id) {
			continue
		}
		payload, err := s.store.Get(ctx, entry.Ref)
		if err != nil {
			return Motion{}, "", fmt.Errorf("read motion record: %w", err)
		}
		var m Motion
		if err := json.Unmarshal(payload, &m); err != nil {
			return Motion{}, "", fmt.Errorf("decode motion record: %w", err)
		}
		return m, entry.Ref, nil
	}
	return Motion{}, "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Advance moves the motion one step forward in the state lattice. Backward
// or skip transitions fail with ErrInvalidTransition; a state changed under
// us fails with ErrConcurrentUpdate.
func (s *Store) Advance(ctx context.Context, id string, next State) (Motion, error) {
	if !next.valid() {
		return Motion{}, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, next)
	}
	m, ref, err := s.load(ctx, id)
	if err != nil {
		return Motion{}, err
	}
	if !canAdvance(m.State, next) {
		return Motion{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.State, next)
	}

	m.State = next
	payload, err := json.Marshal(m)
	if err != nil {
		return Motion{}, fmt.Errorf("marshal motion: %w", err)
	}
	if _, err := s.store.Swap(ctx, metaPath(id), payload, ref); err != nil {
		if errors.Is(err, refstore.ErrStaleSwap) {
			return Motion{}, fmt.Errorf("%w: %s", ErrConcurrentUpdate, id)
		}
		return Motion{}, fmt.Errorf("write motion record: %w", err)
	}
	return m, nil
}

// EnactMerge merges the motion's content branch into the main line.
func (s *Store) EnactMerge(ctx context.Context, id string) error {
	if err := s.store.MergeBranch(ctx, BranchName(id)); err != nil {
		return fmt.Errorf("merge %s: %w", BranchName(id), err)
	}
	return nil
}

// EnactDiscard deletes the motion's content branch.
func (s *Store) EnactDiscard(ctx context.Context, id string) error {
	if err := s.store.DeleteBranch(ctx, BranchName(id)); err != nil {
		return fmt.Errorf("discard %s: %w", BranchName(id), err)
	}
	return nil
}
