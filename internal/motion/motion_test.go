package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"parliament/internal/ident"
	"parliament/internal/refstore/memstore"
)

func newTestStore() (*Store, *memstore.Store) {
	backing := memstore.NewStore()
	s := NewStore(backing, &ident.Sequence{Prefix: "t"}, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, backing
}

func TestCreateAndGet(t *testing.T) {
	s, backing := newTestStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "Raise dues", "By 2% next quarter.", "alice")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.State != StateDraft {
		t.Errorf("expected draft state, got %s", created.State)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != created.ID || got.Title != created.Title || got.Author != created.Author || got.State != created.State {
		t.Errorf("get mismatch: %+v vs %+v", got, created)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, created.CreatedAt)
	}

	if !backing.HasBranch(BranchName(created.ID)) {
		t.Errorf("expected content branch %s", BranchName(created.ID))
	}
}

func TestCreateWithIDDuplicate(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if _, err := s.CreateWithID(ctx, "M1", "First", "", "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.CreateWithID(ctx, "M1", "Second", "", "bob"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetUnknownMotion(t *testing.T) {
	s, _ := newTestStore()
	if _, err := s.Get(context.Background(), "M404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetDoesNotMatchLongerIDs(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if _, err := s.CreateWithID(ctx, "M12", "Longer id", "", "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.Get(ctx, "M1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for prefix of an existing id, got %v", err)
	}
}

func TestAdvanceFollowsLattice(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	if _, err := s.CreateWithID(ctx, "M1", "Motion", "", "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for _, next := range []State{StateOpen, StateVoting, StateDecided, StateMerged} {
		m, err := s.Advance(ctx, "M1", next)
		if err != nil {
			t.Fatalf("advance to %s failed: %v", next, err)
		}
		if m.State != next {
			t.Fatalf("expected state %s, got %s", next, m.State)
		}
	}

	// merged is terminal
	if _, err := s.Advance(ctx, "M1", StateRejected); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition out of terminal state, got %v", err)
	}
}

func TestAdvanceRejectsSkipsAndBackwardSteps(t *testing.T) {
	tests := []struct {
		name string
		walk []State
		next State
	}{
		{name: "draft to voting skips open", walk: nil, next: StateVoting},
		{name: "draft to merged", walk: nil, next: StateMerged},
		{name: "open back to draft", walk: []State{StateOpen}, next: StateDraft},
		{name: "voting to merged skips decided", walk: []State{StateOpen, StateVoting}, next: StateMerged},
		{name: "decided back to voting", walk: []State{StateOpen, StateVoting, StateDecided}, next: StateVoting},
		{name: "unknown state", walk: nil, next: State("tabled")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore()
			ctx := context.Background()
			if _, err := s.CreateWithID(ctx, "M1", "Motion", "", "alice"); err != nil {
				t.Fatalf("create failed: %v", err)
			}
			for _, step := range tt.walk {
				if _, err := s.Advance(ctx, "M1", step); err != nil {
					t.Fatalf("setup advance to %s failed: %v", step, err)
				}
			}
			if _, err := s.Advance(ctx, "M1", tt.next); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestAdvanceDecidedBranches(t *testing.T) {
	for _, terminal := range []State{StateMerged, StateRejected} {
		s, _ := newTestStore()
		ctx := context.Background()
		if _, err := s.CreateWithID(ctx, "M1", "Motion", "", "alice"); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		for _, step := range []State{StateOpen, StateVoting, StateDecided, terminal} {
			if _, err := s.Advance(ctx, "M1", step); err != nil {
				t.Fatalf("advance to %s failed: %v", step, err)
			}
		}
		m, err := s.Get(ctx, "M1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !m.State.Terminal() {
			t.Errorf("expected %s to be terminal", m.State)
		}
	}
}

func TestEnactMergePutsContentOnMain(t *testing.T) {
	s, backing := newTestStore()
	ctx := context.Background()
	if _, err := s.CreateWithID(ctx, "M1", "Raise dues", "By 2%.", "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := s.EnactMerge(ctx, "M1"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	content, ok := backing.MainFile(ContentFile("M1"))
	if !ok {
		t.Fatalf("expected motion content on main line")
	}
	if string(content) != "# Raise dues\n\nBy 2%.\n" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestEnactDiscardRemovesBranch(t *testing.T) {
	s, backing := newTestStore()
	ctx := context.Background()
	if _, err := s.CreateWithID(ctx, "M1", "Raise dues", "By 2%.", "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := s.EnactDiscard(ctx, "M1"); err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	if backing.HasBranch(BranchName("M1")) {
		t.Errorf("expected branch to be deleted")
	}
	if _, ok := backing.MainFile(ContentFile("M1")); ok {
		t.Errorf("discarded content must not reach main")
	}
}
