package ledger

import (
	"context"
	"testing"

	"parliament/internal/refstore/memstore"
)

func TestDelegateWritesPlainTarget(t *testing.T) {
	stores := memstore.NewResolver()
	g := NewDelegationGraph(stores, nil, nil)
	ctx := context.Background()

	edge, err := g.Delegate(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("delegate failed: %v", err)
	}
	if edge.Delegator != "alice" || edge.Delegate != "bob" {
		t.Errorf("unexpected edge: %+v", edge)
	}

	st := stores.Store("alice")
	entries, err := st.ListPrefix(ctx, "delegate/")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "delegate/alice" {
		t.Fatalf("unexpected entries: %v", entries)
	}
	payload, err := st.Get(ctx, entries[0].Ref)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(payload) != "bob" {
		t.Errorf("wire payload should be the bare target, got %q", payload)
	}
}

func TestDelegateSupersedesPreviousEdge(t *testing.T) {
	stores := memstore.NewResolver()
	g := NewDelegationGraph(stores, nil, nil)
	ctx := context.Background()

	if _, err := g.Delegate(ctx, "alice", "bob"); err != nil {
		t.Fatalf("first delegate failed: %v", err)
	}
	if _, err := g.Delegate(ctx, "alice", "carol"); err != nil {
		t.Fatalf("second delegate failed: %v", err)
	}

	edges, malformed, err := g.Enumerate(ctx, "alice")
	if err != nil {
		t.Fatalf("enumerate failed: %v", err)
	}
	if malformed != 0 {
		t.Errorf("expected no malformed edges, got %d", malformed)
	}
	if len(edges) != 1 {
		t.Fatalf("expected exactly one edge per delegator, got %d", len(edges))
	}
	if edges[0].Delegate != "carol" {
		t.Errorf("expected latest edge to win, got %s", edges[0].Delegate)
	}
}

func TestDelegateValidatesParticipants(t *testing.T) {
	g := NewDelegationGraph(memstore.NewResolver(), nil, nil)
	ctx := context.Background()

	if _, err := g.Delegate(ctx, "", "bob"); err == nil {
		t.Errorf("expected error for empty delegator")
	}
	if _, err := g.Delegate(ctx, "alice", ""); err == nil {
		t.Errorf("expected error for empty delegate")
	}
	if _, err := g.Delegate(ctx, "a/b", "bob"); err == nil {
		t.Errorf("expected error for slash in id")
	}
}

func TestSelfDelegationIsStored(t *testing.T) {
	// A self-edge is a revocation marker; it is recorded like any other edge
	// and interpreted downstream.
	stores := memstore.NewResolver()
	g := NewDelegationGraph(stores, nil, nil)
	ctx := context.Background()

	if _, err := g.Delegate(ctx, "alice", "alice"); err != nil {
		t.Fatalf("self delegation failed: %v", err)
	}
	edges, _, err := g.Enumerate(ctx, "alice")
	if err != nil {
		t.Fatalf("enumerate failed: %v", err)
	}
	if len(edges) != 1 || edges[0].Delegate != "alice" {
		t.Errorf("unexpected edges: %v", edges)
	}
}

func TestEnumerateSkipsMalformedEdges(t *testing.T) {
	stores := memstore.NewResolver()
	g := NewDelegationGraph(stores, nil, nil)
	ctx := context.Background()

	if _, err := g.Delegate(ctx, "alice", "bob"); err != nil {
		t.Fatalf("delegate failed: %v", err)
	}
	st := stores.Store("alice")
	if _, err := st.Put(ctx, "delegate/alice/extra", []byte("bob")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, err := st.Put(ctx, "delegate/eve", []byte("   ")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	edges, malformed, err := g.Enumerate(ctx, "alice")
	if err != nil {
		t.Fatalf("enumerate failed: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("expected only the valid edge, got %v", edges)
	}
	if malformed != 2 {
		t.Errorf("expected 2 malformed edges counted, got %d", malformed)
	}
}
