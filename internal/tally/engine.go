// Package tally turns raw ballots and delegation edges scattered across
// participant stores into a deterministic accept/reject decision. A tally is
// a pure read: repeated calls against an unchanged ledger return identical
// results.
package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"parliament/internal/events"
	"parliament/internal/ledger"
)

type Decision string

const (
	Accepted Decision = "accepted"
	Rejected Decision = "rejected"
)

// FaninPolicy controls what happens when several resolved ballots land on
// the same final voter.
//
// FaninOverwrite reproduces the legacy behavior: the last-processed ballot
// wins. That is only deterministic under a fixed fetch order, so the engine
// fetches sequentially from remotes sorted by name under this policy.
//
// FaninAggregate (the default) sums weights per ballot value for each final
// voter and keeps the majority value, ties broken for > abstain > against;
// the resolved weight is the winning value's sum.
type FaninPolicy string

const (
	FaninAggregate FaninPolicy = "aggregate"
	FaninOverwrite FaninPolicy = "overwrite"
)

// ResolutionPolicy controls whose ballots are redirected through the
// delegation map.
//
// ResolveForwardAll is the legacy behavior and the default: every ballot is
// redirected through its caster's own delegation entry, so a voter who both
// cast a ballot and declared a delegation has their own vote land on their
// delegate. Most liquid-democracy designs do not do this; it is preserved
// here deliberately as a named policy.
//
// ResolveForwardNonVoters keeps each ballot with its caster: a declared
// delegation never redirects a vote the delegator cast themselves.
type ResolutionPolicy string

const (
	ResolveForwardAll       ResolutionPolicy = "forward_all"
	ResolveForwardNonVoters ResolutionPolicy = "forward_nonvoters"
)

const (
	DefaultMaxDepth     = 10
	DefaultFetchTimeout = 5 * time.Second
)

var ErrThresholdOutOfRange = errors.New("tally: accept threshold outside [0,1]")

type Options struct {
	Fanin             FaninPolicy
	Resolution        ResolutionPolicy
	MaxDepth          int
	FetchTimeout      time.Duration
	DedupLatestBallot bool
	// Now supplies timestamps for results; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Fanin == "" {
		o.Fanin = FaninAggregate
	}
	if o.Resolution == "" {
		o.Resolution = ResolveForwardAll
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Diagnostics counts every non-fatal condition hit during a tally so
// long-run anomaly rates stay auditable.
type Diagnostics struct {
	UnreachableRemotes []string `json:"unreachable_remotes,omitempty"`
	DelegationCycles   int      `json:"delegation_cycles"`
	DepthTruncations   int      `json:"depth_truncations"`
	MalformedRecords   int      `json:"malformed_records"`
}

// Result is derived data, recomputed from the ledger on every call and never
// persisted as ground truth.
type Result struct {
	MotionID            string      `json:"motion_id"`
	TotalWeight         float64     `json:"total_weight"`
	YesWeight           float64     `json:"yes_weight"`
	ParticipationRate   float64     `json:"participation_rate"`
	ApprovalRate        float64     `json:"approval_rate"`
	Decision            Decision    `json:"decision"`
	ResolvedBallotCount int         `json:"resolved_ballot_count"`
	ComputedAt          time.Time   `json:"computed_at"`
	Diagnostics         Diagnostics `json:"diagnostics"`
}

type Engine struct {
	votes       *ledger.VoteLedger
	delegations *ledger.DelegationGraph
	opts        Options
	bus         *events.Bus
	log         *slog.Logger
}

func NewEngine(votes *ledger.VoteLedger, delegations *ledger.DelegationGraph, opts Options, bus *events.Bus, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		votes:       votes,
		delegations: delegations,
		opts:        opts.withDefaults(),
		bus:         bus,
		log:         log,
	}
}

type remoteFetch struct {
	remote    string
	ballots   []ledger.Ballot
	edges     []ledger.DelegationEdge
	malformed int
	err       error
}

type resolvedBallot struct {
	voter  string
	value  ledger.BallotValue
	weight float64
}

// Tally scatter-gathers ballots and delegations from every remote, resolves
// delegation chains, and computes the weighted decision. Unreachable remotes
// are skipped and counted, never fatal.
func (e *Engine) Tally(ctx context.Context, motionID string, remotes []string, threshold float64) (Result, error) {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return Result{}, fmt.Errorf("%w: %g", ErrThresholdOutOfRange, threshold)
	}

	sorted := append([]string(nil), remotes...)
	sort.Strings(sorted)

	// Remote reads are independent and fetched in parallel under the
	// aggregate policy. The overwrite policy is order-sensitive, so it
	// fetches sequentially in sorted order.
	fetches := make([]remoteFetch, len(sorted))
	if e.opts.Fanin == FaninAggregate {
		var wg sync.WaitGroup
		for i, remote := range sorted {
			wg.Add(1)
			go func(i int, remote string) {
				defer wg.Done()
				fetches[i] = e.fetchRemote(ctx, motionID, remote)
			}(i, remote)
		}
		wg.Wait()
	} else {
		for i, remote := range sorted {
			fetches[i] = e.fetchRemote(ctx, motionID, remote)
		}
	}

	diag := Diagnostics{}
	var raw []ledger.Ballot
	delegationMap := make(map[string]string)
	for _, fetch := range fetches {
		if fetch.err != nil {
			diag.UnreachableRemotes = append(diag.UnreachableRemotes, fetch.remote)
			e.log.Warn("remote unreachable, skipping",
				"motion_id", motionID, "remote", fetch.remote, "err", fetch.err)
			continue
		}
		diag.MalformedRecords += fetch.malformed
		raw = append(raw, fetch.ballots...)
		for _, edge := range fetch.edges {
			// A self-edge is a revoked delegation.
			if edge.Delegator == edge.Delegate {
				delete(delegationMap, edge.Delegator)
				continue
			}
			delegationMap[edge.Delegator] = edge.Delegate
		}
	}

	rawCount := len(raw)
	if e.opts.DedupLatestBallot {
		raw = dedupLatest(raw)
	}

	resolved := e.resolveAndCombine(raw, delegationMap, &diag)

	var totalWeight, yesWeight float64
	for _, rb := range resolved {
		totalWeight += rb.weight
		if rb.value == ledger.VoteFor {
			yesWeight += rb.weight
		}
	}

	participation := float64(len(resolved)) / math.Max(float64(rawCount+len(delegationMap)), 1)
	approval := yesWeight / math.Max(totalWeight, 1)

	decision := Rejected
	if approval >= threshold {
		decision = Accepted
	}

	result := Result{
		MotionID:            motionID,
		TotalWeight:         totalWeight,
		YesWeight:           yesWeight,
		ParticipationRate:   participation,
		ApprovalRate:        approval,
		Decision:            decision,
		ResolvedBallotCount: len(resolved),
		ComputedAt:          e.opts.Now().UTC(),
		Diagnostics:         diag,
	}

	e.log.Info("tally computed",
		"motion_id", motionID,
		"decision", decision,
		"approval_rate", approval,
		"participation_rate", participation,
		"resolved_ballots", len(resolved),
		"unreachable_remotes", len(diag.UnreachableRemotes))
	e.bus.Publish(events.TallyComputed, events.Event{
		MotionID: motionID,
		Detail:   string(decision),
		Data:     result,
	})
	if diag.DelegationCycles > 0 || diag.DepthTruncations > 0 {
		e.bus.Publish(events.AnomalyFlagged, events.Event{
			MotionID: motionID,
			Detail: fmt.Sprintf("delegation_cycles=%d depth_truncations=%d",
				diag.DelegationCycles, diag.DepthTruncations),
		})
	}
	return result, nil
}

func (e *Engine) fetchRemote(ctx context.Context, motionID, remote string) remoteFetch {
	fctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()

	ballots, malformedBallots, err := e.votes.Enumerate(fctx, remote, motionID)
	if err != nil {
		return remoteFetch{remote: remote, err: err}
	}
	edges, malformedEdges, err := e.delegations.Enumerate(fctx, remote)
	if err != nil {
		return remoteFetch{remote: remote, err: err}
	}
	return remoteFetch{
		remote:    remote,
		ballots:   ballots,
		edges:     edges,
		malformed: malformedBallots + malformedEdges,
	}
}

// dedupLatest keeps only the latest-timestamp ballot per voter, preserving
// the deterministic fetch order of the survivors.
func dedupLatest(raw []ledger.Ballot) []ledger.Ballot {
	chosen := make(map[string]int)
	for i, b := range raw {
		if prev, ok := chosen[b.VoterID]; !ok || !raw[i].CastAt.Before(raw[prev].CastAt) {
			chosen[b.VoterID] = i
		}
	}
	keep := make(map[int]bool, len(chosen))
	for _, i := range chosen {
		keep[i] = true
	}
	out := make([]ledger.Ballot, 0, len(chosen))
	for i, b := range raw {
		if keep[i] {
			out = append(out, b)
		}
	}
	return out
}

func (e *Engine) resolveAndCombine(raw []ledger.Ballot, delegationMap map[string]string, diag *Diagnostics) []resolvedBallot {
	resolve := func(voter string) string {
		if e.opts.Resolution == ResolveForwardNonVoters {
			// Every ballot here was cast directly, so nothing redirects.
			return voter
		}
		final := voter
		visited := make(map[string]bool)
		depth := 0
		for depth < e.opts.MaxDepth {
			next, ok := delegationMap[final]
			if !ok {
				return final
			}
			if visited[final] {
				diag.DelegationCycles++
				return final
			}
			visited[final] = true
			final = next
			depth++
		}
		if _, ok := delegationMap[final]; ok && !visited[final] {
			diag.DepthTruncations++
		}
		return final
	}

	var finals []string
	switch e.opts.Fanin {
	case FaninOverwrite:
		last := make(map[string]ledger.Ballot)
		for _, b := range raw {
			final := resolve(b.VoterID)
			if _, ok := last[final]; !ok {
				finals = append(finals, final)
			}
			last[final] = b
		}
		sort.Strings(finals)
		out := make([]resolvedBallot, 0, len(finals))
		for _, voter := range finals {
			b := last[voter]
			out = append(out, resolvedBallot{voter: voter, value: b.Value, weight: b.Weight})
		}
		return out

	default: // FaninAggregate
		sums := make(map[string]map[ledger.BallotValue]float64)
		for _, b := range raw {
			final := resolve(b.VoterID)
			if _, ok := sums[final]; !ok {
				sums[final] = make(map[ledger.BallotValue]float64)
				finals = append(finals, final)
			}
			sums[final][b.Value] += b.Weight
		}
		sort.Strings(finals)
		out := make([]resolvedBallot, 0, len(finals))
		for _, voter := range finals {
			value, weight := majorityValue(sums[voter])
			out = append(out, resolvedBallot{voter: voter, value: value, weight: weight})
		}
		return out
	}
}

// majorityValue picks the value carrying the most weight, ties broken
// for > abstain > against.
func majorityValue(sums map[ledger.BallotValue]float64) (ledger.BallotValue, float64) {
	order := []ledger.BallotValue{ledger.VoteFor, ledger.VoteAbstain, ledger.VoteAgainst}
	best := order[0]
	bestWeight := sums[best]
	for _, value := range order[1:] {
		if sums[value] > bestWeight {
			best = value
			bestWeight = sums[value]
		}
	}
	return best, bestWeight
}
