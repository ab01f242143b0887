package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"parliament/internal/ident"
	"parliament/internal/refstore/memstore"
)

func newTestDebateLog() *DebateLog {
	d := NewDebateLog(memstore.NewStore(), &ident.Sequence{Prefix: "t"}, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	d.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return d
}

func TestSecondAndEntries(t *testing.T) {
	d := newTestDebateLog()
	ctx := context.Background()

	entry, err := d.Second(ctx, "M1", "bob")
	if err != nil {
		t.Fatalf("second failed: %v", err)
	}
	if entry.Kind != "second" || entry.Speaker != "bob" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	entries, err := d.Entries(ctx, "M1")
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Kind != "second" {
		t.Errorf("unexpected kind: %s", entries[0].Kind)
	}
}

func TestDebateValidatesStance(t *testing.T) {
	d := newTestDebateLog()
	ctx := context.Background()

	if _, err := d.Debate(ctx, "M1", "carol", "lukewarm", "meh"); !errors.Is(err, ErrInvalidStance) {
		t.Errorf("expected ErrInvalidStance, got %v", err)
	}
	for _, stance := range []string{"pro", "con"} {
		if _, err := d.Debate(ctx, "M1", "carol", stance, "because"); err != nil {
			t.Errorf("stance %s should be accepted: %v", stance, err)
		}
	}
}

func TestEntriesChronological(t *testing.T) {
	d := newTestDebateLog()
	ctx := context.Background()

	if _, err := d.Second(ctx, "M1", "bob"); err != nil {
		t.Fatalf("second failed: %v", err)
	}
	if _, err := d.Debate(ctx, "M1", "carol", "pro", "saves money"); err != nil {
		t.Fatalf("debate failed: %v", err)
	}
	if _, err := d.Debate(ctx, "M1", "dave", "con", "too risky"); err != nil {
		t.Fatalf("debate failed: %v", err)
	}
	// another motion's channel stays separate
	if _, err := d.Second(ctx, "M2", "erin"); err != nil {
		t.Fatalf("second failed: %v", err)
	}

	entries, err := d.Entries(ctx, "M1")
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].SpokenAt.Before(entries[i-1].SpokenAt) {
			t.Errorf("entries out of order at %d: %+v", i, entries)
		}
	}
	if entries[0].Speaker != "bob" || entries[2].Speaker != "dave" {
		t.Errorf("unexpected ordering: %+v", entries)
	}
}

func TestEntriesEmptyChannel(t *testing.T) {
	d := newTestDebateLog()
	entries, err := d.Entries(context.Background(), "M404")
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty channel, got %v", entries)
	}
}
