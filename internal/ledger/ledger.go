// Package ledger holds the append-only parliamentary records: ballots cast
// into each voter's own store, delegation edges owned by their delegator,
// and the observational debate channel. Record payloads are validated at
// the store boundary; malformed records are counted and skipped, never
// carried into the tally.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type BallotValue string

const (
	VoteFor     BallotValue = "for"
	VoteAgainst BallotValue = "against"
	VoteAbstain BallotValue = "abstain"
)

func (v BallotValue) valid() bool {
	return v == VoteFor || v == VoteAgainst || v == VoteAbstain
}

// Mode controls how anomalous ballots are handled. Permissive records them
// anyway (audit completeness) and only flags the anomaly; Strict rejects.
type Mode int

const (
	Permissive Mode = iota
	Strict
)

var (
	ErrInvalidBallot    = errors.New("ledger: invalid ballot value")
	ErrWeightOutOfRange = errors.New("ledger: ballot weight outside [0,10]")
	ErrInvalidStance    = errors.New("ledger: debate stance must be pro or con")
	ErrMalformedRecord  = errors.New("ledger: malformed record payload")
)

// Ballot is one recorded vote by one voter on one motion.
type Ballot struct {
	MotionID string
	VoterID  string
	Value    BallotValue
	Weight   float64
	CastAt   time.Time
	Remote   string
	Path     string
}

// DelegationEdge is a voter handing their vote to a delegate. Edges are
// global (not motion-scoped) and live in the delegator's own store.
type DelegationEdge struct {
	Delegator string
	Delegate  string
	Remote    string
}

// DebateEntry is one observational record on a motion's debate channel.
type DebateEntry struct {
	MotionID string    `json:"motion_id"`
	Kind     string    `json:"kind"` // "second" or "argument"
	Speaker  string    `json:"speaker"`
	Stance   string    `json:"stance,omitempty"`
	Argument string    `json:"argument,omitempty"`
	SpokenAt time.Time `json:"timestamp"`
}

// ballotRecord is the wire shape of a stored ballot:
// {"vote": "for"|"against"|"abstain", "weight": number, "timestamp": ISO-8601}
type ballotRecord struct {
	Vote      string    `json:"vote"`
	Weight    *float64  `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

func decodeBallot(payload []byte) (BallotValue, float64, time.Time, error) {
	var rec ballotRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return "", 0, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	value := BallotValue(rec.Vote)
	if !value.valid() {
		return "", 0, time.Time{}, fmt.Errorf("%w: vote %q", ErrMalformedRecord, rec.Vote)
	}
	weight := 1.0
	if rec.Weight != nil {
		weight = *rec.Weight
	}
	return value, weight, rec.Timestamp, nil
}

const (
	votePrefix     = "vote/"
	delegatePrefix = "delegate/"
	debatePrefix   = "debate/"
)
