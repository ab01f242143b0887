package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"parliament/internal/ident"
	"parliament/internal/refstore"
)

// DebateLog is the per-motion, append-only channel of seconds and arguments.
// It is purely observational: the tally never reads it.
type DebateLog struct {
	store refstore.Store
	ids   ident.Generator
	log   *slog.Logger
	now   func() time.Time
}

func NewDebateLog(store refstore.Store, ids ident.Generator, log *slog.Logger) *DebateLog {
	if log == nil {
		log = slog.Default()
	}
	return &DebateLog{store: store, ids: ids, log: log, now: time.Now}
}

// Second records a speaker seconding the motion.
func (d *DebateLog) Second(ctx context.Context, motionID, speaker string) (DebateEntry, error) {
	entry := DebateEntry{
		MotionID: motionID,
		Kind:     "second",
		Speaker:  speaker,
		SpokenAt: d.now().UTC(),
	}
	return entry, d.append(ctx, entry)
}

// Debate records an argument with a pro/con stance.
func (d *DebateLog) Debate(ctx context.Context, motionID, speaker, stance, argument string) (DebateEntry, error) {
	if stance != "pro" && stance != "con" {
		return DebateEntry{}, fmt.Errorf("%w: %q", ErrInvalidStance, stance)
	}
	entry := DebateEntry{
		MotionID: motionID,
		Kind:     "argument",
		Speaker:  speaker,
		Stance:   stance,
		Argument: argument,
		SpokenAt: d.now().UTC(),
	}
	return entry, d.append(ctx, entry)
}

func (d *DebateLog) append(ctx context.Context, entry DebateEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal debate entry: %w", err)
	}
	path := debatePrefix + entry.MotionID + "/" + d.ids.NewNonce()
	if _, err := d.store.Put(ctx, path, payload); err != nil {
		return fmt.Errorf("write debate entry: %w", err)
	}
	return nil
}

// Entries returns the motion's debate channel in chronological order.
func (d *DebateLog) Entries(ctx context.Context, motionID string) ([]DebateEntry, error) {
	entries, err := d.store.ListPrefix(ctx, debatePrefix+motionID+"/")
	if err != nil {
		return nil, fmt.Errorf("list debate entries: %w", err)
	}
	out := make([]DebateEntry, 0, len(entries))
	for _, entry := range entries {
		payload, err := d.store.Get(ctx, entry.Ref)
		if err != nil {
			return nil, fmt.Errorf("fetch debate entry %s: %w", entry.Path, err)
		}
		var rec DebateEntry
		if err := json.Unmarshal(payload, &rec); err != nil {
			d.log.Warn("skipping malformed debate entry", "path", entry.Path, "err", err)
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SpokenAt.Before(out[j].SpokenAt) })
	return out, nil
}
