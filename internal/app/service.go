// Package app ties the parliament components together behind one service
// facade and exposes them over HTTP.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"parliament/internal/config"
	"parliament/internal/ledger"
	"parliament/internal/motion"
	"parliament/internal/oracle"
	"parliament/internal/tally"
)

type Service struct {
	cfg         config.Config
	motions     *motion.Store
	debates     *ledger.DebateLog
	votes       *ledger.VoteLedger
	delegations *ledger.DelegationGraph
	engine      *tally.Engine
	oracle      *oracle.Oracle
	log         *slog.Logger
}

func New(
	cfg config.Config,
	motions *motion.Store,
	debates *ledger.DebateLog,
	votes *ledger.VoteLedger,
	delegations *ledger.DelegationGraph,
	engine *tally.Engine,
	orc *oracle.Oracle,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:         cfg,
		motions:     motions,
		debates:     debates,
		votes:       votes,
		delegations: delegations,
		engine:      engine,
		oracle:      orc,
		log:         log,
	}
}

func (s *Service) CreateMotion(ctx context.Context, title, body, author string) (motion.Motion, error) {
	if strings.TrimSpace(title) == "" {
		return motion.Motion{}, domainError(http.StatusBadRequest, "TITLE_REQUIRED", "motion title is required", nil)
	}
	if strings.TrimSpace(author) == "" {
		return motion.Motion{}, domainError(http.StatusBadRequest, "AUTHOR_REQUIRED", "motion author is required", nil)
	}
	return s.motions.Create(ctx, title, body, author)
}

func (s *Service) GetMotion(ctx context.Context, id string) (motion.Motion, error) {
	return s.motions.Get(ctx, id)
}

func (s *Service) AdvanceMotion(ctx context.Context, id string, next motion.State) (motion.Motion, error) {
	return s.motions.Advance(ctx, id, next)
}

func (s *Service) SecondMotion(ctx context.Context, id, speaker string) (ledger.DebateEntry, error) {
	if strings.TrimSpace(speaker) == "" {
		return ledger.DebateEntry{}, domainError(http.StatusBadRequest, "SPEAKER_REQUIRED", "speaker is required", nil)
	}
	if _, err := s.motions.Get(ctx, id); err != nil {
		return ledger.DebateEntry{}, err
	}
	return s.debates.Second(ctx, id, speaker)
}

func (s *Service) DebateMotion(ctx context.Context, id, speaker, stance, argument string) (ledger.DebateEntry, error) {
	if strings.TrimSpace(speaker) == "" {
		return ledger.DebateEntry{}, domainError(http.StatusBadRequest, "SPEAKER_REQUIRED", "speaker is required", nil)
	}
	if _, err := s.motions.Get(ctx, id); err != nil {
		return ledger.DebateEntry{}, err
	}
	return s.debates.Debate(ctx, id, speaker, stance, argument)
}

func (s *Service) DebateEntries(ctx context.Context, id string) ([]ledger.DebateEntry, error) {
	if _, err := s.motions.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.debates.Entries(ctx, id)
}

// CastBallot records a ballot in the voter's own store. A nil weight means
// the default weight of 1.
func (s *Service) CastBallot(ctx context.Context, motionID, voterID string, value ledger.BallotValue, weight *float64) (ledger.Ballot, error) {
	if strings.TrimSpace(voterID) == "" {
		return ledger.Ballot{}, domainError(http.StatusBadRequest, "VOTER_REQUIRED", "voter id is required", nil)
	}
	if _, err := s.motions.Get(ctx, motionID); err != nil {
		return ledger.Ballot{}, err
	}
	w := 1.0
	if weight != nil {
		w = *weight
	}
	return s.votes.Cast(ctx, motionID, voterID, value, w)
}

func (s *Service) Delegate(ctx context.Context, delegator, delegate string) (ledger.DelegationEdge, error) {
	return s.delegations.Delegate(ctx, delegator, delegate)
}

func (s *Service) Tally(ctx context.Context, motionID string) (tally.Result, error) {
	if _, err := s.motions.Get(ctx, motionID); err != nil {
		return tally.Result{}, err
	}
	return s.engine.Tally(ctx, motionID, s.cfg.Remotes, s.cfg.AcceptThreshold)
}

func (s *Service) Decide(ctx context.Context, motionID string) (oracle.Outcome, error) {
	return s.oracle.DecideAndEnact(ctx, motionID, s.cfg.Remotes, s.cfg.AcceptThreshold)
}
