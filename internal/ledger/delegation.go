package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"parliament/internal/events"
	"parliament/internal/refstore"
)

// DelegationGraph stores voter-to-delegate edges, one per delegator, in the
// delegator's own store. Writing a new edge supersedes the previous one;
// delegating to yourself is how an edge is effectively revoked.
type DelegationGraph struct {
	stores refstore.Resolver
	bus    *events.Bus
	log    *slog.Logger
}

func NewDelegationGraph(stores refstore.Resolver, bus *events.Bus, log *slog.Logger) *DelegationGraph {
	if log == nil {
		log = slog.Default()
	}
	return &DelegationGraph{stores: stores, bus: bus, log: log}
}

// Delegate points delegator's vote at delegate. The edge is global, not
// motion-scoped.
func (g *DelegationGraph) Delegate(ctx context.Context, delegator, delegate string) (DelegationEdge, error) {
	if delegator == "" || delegate == "" {
		return DelegationEdge{}, errors.New("ledger: delegator and delegate must be set")
	}
	if strings.Contains(delegator, "/") || strings.Contains(delegate, "/") {
		return DelegationEdge{}, fmt.Errorf("ledger: invalid participant id")
	}

	store, err := g.stores.Open(ctx, delegator)
	if err != nil {
		return DelegationEdge{}, fmt.Errorf("open delegator store: %w", err)
	}

	// Wire payload is the plain delegate identifier.
	if _, err := store.Put(ctx, delegatePrefix+delegator, []byte(delegate)); err != nil {
		return DelegationEdge{}, fmt.Errorf("write delegation: %w", err)
	}

	edge := DelegationEdge{Delegator: delegator, Delegate: delegate, Remote: delegator}
	g.bus.Publish(events.DelegationCreated, events.Event{
		Actor:  delegator,
		Detail: delegate,
		Data:   edge,
	})
	return edge, nil
}

// Enumerate lists every delegation edge held by one remote, in delegator
// order. Malformed records are skipped and counted.
func (g *DelegationGraph) Enumerate(ctx context.Context, remote string) ([]DelegationEdge, int, error) {
	store, err := g.stores.Open(ctx, remote)
	if err != nil {
		return nil, 0, fmt.Errorf("open remote %s: %w", remote, err)
	}
	entries, err := store.ListPrefix(ctx, delegatePrefix)
	if err != nil {
		return nil, 0, fmt.Errorf("list delegations on %s: %w", remote, err)
	}

	edges := make([]DelegationEdge, 0, len(entries))
	malformed := 0
	for _, entry := range entries {
		delegator := strings.TrimPrefix(entry.Path, delegatePrefix)
		if delegator == "" || strings.Contains(delegator, "/") {
			malformed++
			g.log.Warn("skipping delegation with malformed path", "remote", remote, "path", entry.Path)
			continue
		}
		payload, err := store.Get(ctx, entry.Ref)
		if err != nil {
			return nil, malformed, fmt.Errorf("fetch delegation %s on %s: %w", entry.Path, remote, err)
		}
		delegate := strings.TrimSpace(string(payload))
		if delegate == "" {
			malformed++
			g.log.Warn("skipping delegation with empty target", "remote", remote, "path", entry.Path)
			continue
		}
		edges = append(edges, DelegationEdge{Delegator: delegator, Delegate: delegate, Remote: remote})
	}
	return edges, malformed, nil
}
