package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"parliament/internal/events"
	"parliament/internal/ident"
	"parliament/internal/refstore"
)

// VoteLedger writes ballots into each voter's own store and enumerates them
// from any reachable remote. Repeated casts by the same voter accumulate
// under fresh nonces; nothing is ever overwritten.
type VoteLedger struct {
	stores refstore.Resolver
	mode   Mode
	ids    ident.Generator
	bus    *events.Bus
	log    *slog.Logger
	now    func() time.Time
}

func NewVoteLedger(stores refstore.Resolver, mode Mode, ids ident.Generator, bus *events.Bus, log *slog.Logger) *VoteLedger {
	if log == nil {
		log = slog.Default()
	}
	return &VoteLedger{
		stores: stores,
		mode:   mode,
		ids:    ids,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}
}

// Cast records a ballot in the voter's own store. The write is durable
// before Cast returns; distribution happens when remotes are enumerated at
// tally time. A weight outside [0,10] is flagged as a security anomaly and,
// in Permissive mode, recorded anyway.
func (l *VoteLedger) Cast(ctx context.Context, motionID, voterID string, value BallotValue, weight float64) (Ballot, error) {
	if !value.valid() {
		return Ballot{}, fmt.Errorf("%w: %q", ErrInvalidBallot, value)
	}
	if weight < 0 || weight > 10 {
		l.log.Warn("suspicious ballot weight",
			"motion_id", motionID, "voter_id", voterID, "weight", weight)
		l.bus.Publish(events.AnomalyFlagged, events.Event{
			MotionID: motionID,
			Actor:    voterID,
			Detail:   fmt.Sprintf("suspicious_weight: %g", weight),
		})
		if l.mode == Strict {
			return Ballot{}, fmt.Errorf("%w: %g", ErrWeightOutOfRange, weight)
		}
	}

	store, err := l.stores.Open(ctx, voterID)
	if err != nil {
		return Ballot{}, fmt.Errorf("open voter store: %w", err)
	}

	castAt := l.now().UTC()
	w := weight
	payload, err := json.Marshal(ballotRecord{
		Vote:      string(value),
		Weight:    &w,
		Timestamp: castAt,
	})
	if err != nil {
		return Ballot{}, fmt.Errorf("marshal ballot: %w", err)
	}

	path := votePrefix + motionID + "/" + voterID + "/" + l.ids.NewNonce()
	if _, err := store.Put(ctx, path, payload); err != nil {
		return Ballot{}, fmt.Errorf("write ballot: %w", err)
	}

	ballot := Ballot{
		MotionID: motionID,
		VoterID:  voterID,
		Value:    value,
		Weight:   weight,
		CastAt:   castAt,
		Remote:   voterID,
		Path:     path,
	}
	l.bus.Publish(events.BallotCast, events.Event{
		MotionID: motionID,
		Actor:    voterID,
		Detail:   string(value),
		Data:     ballot,
	})
	return ballot, nil
}

// Enumerate lists every ballot for motionID held by one remote, in path
// order. A remote holding none yields an empty list. Malformed records are
// skipped; the count of skipped records is returned alongside.
func (l *VoteLedger) Enumerate(ctx context.Context, remote, motionID string) ([]Ballot, int, error) {
	store, err := l.stores.Open(ctx, remote)
	if err != nil {
		return nil, 0, fmt.Errorf("open remote %s: %w", remote, err)
	}

	prefix := votePrefix + motionID + "/"
	entries, err := store.ListPrefix(ctx, prefix)
	if err != nil {
		return nil, 0, fmt.Errorf("list ballots on %s: %w", remote, err)
	}

	ballots := make([]Ballot, 0, len(entries))
	malformed := 0
	for _, entry := range entries {
		segments := strings.Split(entry.Path, "/")
		if len(segments) != 4 {
			malformed++
			l.log.Warn("skipping ballot with malformed path", "remote", remote, "path", entry.Path)
			continue
		}
		payload, err := store.Get(ctx, entry.Ref)
		if err != nil {
			return nil, malformed, fmt.Errorf("fetch ballot %s on %s: %w", entry.Path, remote, err)
		}
		value, weight, castAt, err := decodeBallot(payload)
		if err != nil {
			malformed++
			l.log.Warn("skipping malformed ballot", "remote", remote, "path", entry.Path, "err", err)
			continue
		}
		ballots = append(ballots, Ballot{
			MotionID: motionID,
			VoterID:  segments[2],
			Value:    value,
			Weight:   weight,
			CastAt:   castAt,
			Remote:   remote,
			Path:     entry.Path,
		})
	}
	return ballots, malformed, nil
}
