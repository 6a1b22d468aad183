package engine

import (
	"sync/atomic"
	"time"
)

// ConsensusState holds the current step, round and proposed-flag of one
// engine instance. Each field has its own atomic so that the liveness timer
// never waits on a lock; a reader may observe the round already incremented
// while the step has not yet settled, and collaborators tolerate that
// relaxed consistency.
type ConsensusState struct {
	timeouts StepTimeouts

	step     atomic.Uint32
	round    atomic.Int32
	proposed atomic.Bool

	// Start of the current step, unix nanoseconds. Written on every
	// transition, read to compute the remaining deadline.
	stepStart atomic.Int64
}

// NewConsensusState creates a ConsensusState at round 0, step Propose,
// with no proposal recorded.
func NewConsensusState(timeouts StepTimeouts) *ConsensusState {
	cs := &ConsensusState{timeouts: timeouts}
	cs.step.Store(uint32(StepPropose))
	cs.stepStart.Store(time.Now().UnixNano())
	return cs
}

// Step returns the current step
func (cs *ConsensusState) Step() Step {
	return Step(cs.step.Load())
}

// Round returns the current round
func (cs *ConsensusState) Round() Round {
	return cs.round.Load()
}

// Proposed reports whether a proposal has been recorded for the current
// round's Propose step.
func (cs *ConsensusState) Proposed() bool {
	return cs.proposed.Load()
}

// SetProposed records that a proposal arrived. It only takes effect during
// the Propose step and reports whether the flag was set.
func (cs *ConsensusState) SetProposed() bool {
	if cs.Step() != StepPropose {
		return false
	}
	cs.proposed.Store(true)
	return true
}

// Transition advances the step to its cyclic successor. The round is
// incremented when the prior step was Precommit or Commit, and the
// proposed-flag is cleared unconditionally. Transition is pure state
// mutation with no error path; callers serialize transitions per engine.
func (cs *ConsensusState) Transition() Step {
	next, newRound := cs.Step().Next()
	if newRound {
		cs.round.Add(1)
	}
	cs.step.Store(uint32(next))
	cs.proposed.Store(false)
	cs.stepStart.Store(time.Now().UnixNano())
	return next
}

// EnterCommit moves the state into the Commit waiting phase without touching
// the round. Commit is never reached through Transition; the collaborator
// that seals a block drives it, and the commit timeout then rolls into
// Propose of the next round.
func (cs *ConsensusState) EnterCommit() {
	cs.step.Store(uint32(StepCommit))
	cs.proposed.Store(false)
	cs.stepStart.Store(time.Now().UnixNano())
}

// RemainingStepDuration returns how long until the current step's deadline,
// measured from the step's base duration. Never negative.
func (cs *ConsensusState) RemainingStepDuration() time.Duration {
	elapsed := time.Duration(time.Now().UnixNano() - cs.stepStart.Load())
	remaining := cs.timeouts.Base(cs.Step()) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NextStepDuration returns the base duration of the step that a transition
// would enter. Any backoff scaling by round is the caller's policy, not
// embedded here.
func (cs *ConsensusState) NextStepDuration() time.Duration {
	next, _ := cs.Step().Next()
	return cs.timeouts.Base(next)
}
