// Package oracle enacts tally decisions: an accepted motion's branch is
// merged into the main line, a rejected motion's branch is discarded, and
// the motion's terminal state records the outcome.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"parliament/internal/events"
	"parliament/internal/guard"
	"parliament/internal/motion"
	"parliament/internal/tally"
)

var (
	// ErrEnactment wraps a failed merge/discard. The motion stays in
	// voting state and is never retried automatically.
	ErrEnactment = errors.New("oracle: enactment failed")
	// ErrNotVoting is returned when the motion is not open for decision.
	ErrNotVoting = errors.New("oracle: motion is not in voting state")
)

// Outcome is what a decision call returns. Replayed outcomes come from the
// motion's terminal state without re-running the enactment.
type Outcome struct {
	MotionID string         `json:"motion_id"`
	Decision tally.Decision `json:"decision"`
	State    motion.State   `json:"state"`
	Replayed bool           `json:"replayed"`
	Result   *tally.Result  `json:"result,omitempty"`
}

type Oracle struct {
	motions *motion.Store
	engine  *tally.Engine
	locks   guard.Locker
	bus     *events.Bus
	log     *slog.Logger
}

func New(motions *motion.Store, engine *tally.Engine, locks guard.Locker, bus *events.Bus, log *slog.Logger) *Oracle {
	if log == nil {
		log = slog.Default()
	}
	return &Oracle{
		motions: motions,
		engine:  engine,
		locks:   locks,
		bus:     bus,
		log:     log,
	}
}

// DecideAndEnact tallies the motion and enacts the decision exactly once.
// Calling it again on a decided motion returns the recorded outcome without
// repeating the merge/delete.
func (o *Oracle) DecideAndEnact(ctx context.Context, motionID string, remotes []string, threshold float64) (Outcome, error) {
	release, err := o.locks.Acquire(ctx, motionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock motion %s: %w", motionID, err)
	}
	defer release()

	m, err := o.motions.Get(ctx, motionID)
	if err != nil {
		return Outcome{}, err
	}
	if m.State.Terminal() {
		return Outcome{
			MotionID: motionID,
			Decision: decisionForState(m.State),
			State:    m.State,
			Replayed: true,
		}, nil
	}
	if m.State != motion.StateVoting {
		return Outcome{}, fmt.Errorf("%w: %s is %s", ErrNotVoting, motionID, m.State)
	}

	result, err := o.engine.Tally(ctx, motionID, remotes, threshold)
	if err != nil {
		return Outcome{}, err
	}

	// Enact before recording any state change so a failed enactment
	// leaves the motion in voting.
	terminal := motion.StateRejected
	if result.Decision == tally.Accepted {
		terminal = motion.StateMerged
		if err := o.motions.EnactMerge(ctx, motionID); err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrEnactment, err)
		}
	} else {
		if err := o.motions.EnactDiscard(ctx, motionID); err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrEnactment, err)
		}
	}

	if _, err := o.motions.Advance(ctx, motionID, motion.StateDecided); err != nil {
		return Outcome{}, fmt.Errorf("record decided state: %w", err)
	}
	if _, err := o.motions.Advance(ctx, motionID, terminal); err != nil {
		return Outcome{}, fmt.Errorf("record terminal state: %w", err)
	}

	o.log.Info("decision enacted",
		"motion_id", motionID,
		"decision", result.Decision,
		"approval_rate", result.ApprovalRate)
	o.bus.Publish(events.DecisionEnacted, events.Event{
		MotionID: motionID,
		Detail:   string(result.Decision),
		Data:     result,
	})

	return Outcome{
		MotionID: motionID,
		Decision: result.Decision,
		State:    terminal,
		Result:   &result,
	}, nil
}

func decisionForState(s motion.State) tally.Decision {
	if s == motion.StateMerged {
		return tally.Accepted
	}
	return tally.Rejected
}
