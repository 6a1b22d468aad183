package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/paddymahoney/parity/types"
	"github.com/paddymahoney/parity/wal"
)

// WAL is an alias for the wal package's WAL interface
type WAL = wal.WAL

// Engine wires the consensus state machine, the vote store and the step
// clock to their collaborators: a timer service, a client message bus and
// an optional write-ahead log. Signature recovery happens before votes
// reach the engine; block validation, execution and validator-set
// management stay external.
type Engine struct {
	mu sync.Mutex

	config *Config
	logger *zap.Logger

	state *ConsensusState
	votes *VoteCollector
	clock *StepClock

	timers    TimerService
	ownTimers *WallTimers

	bus MessageBus
	wal WAL

	validatorSet *types.ValidatorSet

	height  atomic.Int64
	started atomic.Bool
}

// NewEngine creates a consensus engine. The validator set, WAL, bus and
// logger may each be nil: membership checks, persistence and notifications
// are then skipped.
func NewEngine(config *Config, valSet *types.ValidatorSet, w WAL, bus MessageBus, logger *zap.Logger) (*Engine, error) {
	if err := config.ValidateBasic(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:       config,
		logger:       logger,
		state:        NewConsensusState(config.Timeouts),
		votes:        NewVoteCollector(),
		bus:          bus,
		wal:          w,
		validatorSet: valSet,
	}
	e.clock = newStepClock(nil, logger)
	return e, nil
}

// UseTimerService replaces the default wall-clock timer service. Must be
// called before Start.
func (e *Engine) UseTimerService(ts TimerService) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started.Load() {
		return ErrAlreadyStarted
	}
	e.timers = ts
	return nil
}

// Start begins consensus at the given height: the WAL is opened and
// replayed into the vote store, and the first step timer is registered.
// Failure to register that first timer is fatal, since an engine with no
// timer from the outset has no path to liveness.
func (e *Engine) Start(height Height) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started.Load() {
		return ErrAlreadyStarted
	}

	if e.wal != nil {
		if err := e.wal.Start(); err != nil {
			return fmt.Errorf("failed to start WAL: %w", err)
		}
	}

	e.height.Store(height)
	if err := e.replayWAL(height); err != nil {
		return err
	}

	if e.timers == nil {
		e.ownTimers = NewWallTimers(e.clock)
		e.timers = e.ownTimers
	}
	e.clock.timers = e.timers
	e.clock.bind(e)

	if err := e.clock.Initialize(); err != nil {
		e.clock.detach()
		if e.wal != nil {
			if werr := e.wal.Stop(); werr != nil {
				e.logger.Warn("failed to stop WAL after aborted start", zap.Error(werr))
			}
		}
		return err
	}

	e.started.Store(true)
	e.logger.Info("consensus engine started",
		zap.Int64("height", height),
		zap.Int32("round", e.state.Round()),
		zap.Stringer("step", e.state.Step()))
	return nil
}

// Stop tears the engine down. The clock's engine reference is cleared
// first, so a step timer that fires afterwards resolves nothing and
// mutates nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started.Load() {
		return ErrNotStarted
	}
	e.started.Store(false)

	e.clock.detach()
	if e.ownTimers != nil {
		e.ownTimers.Stop()
	} else if err := e.timers.ClearTimer(StepTimerToken); err != nil {
		e.logger.Warn("failed to clear consensus step timer", zap.Error(err))
	}

	if e.wal != nil {
		if err := e.wal.Stop(); err != nil {
			return fmt.Errorf("failed to stop WAL: %w", err)
		}
	}
	return nil
}

// Vote records a signed consensus message from voter. The caller must
// already have recovered voter from the message's signature; the engine
// only checks set membership. A vote identical to one already recorded is
// a no-op.
func (e *Engine) Vote(msg ConsensusMessage, voter types.Address) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	if !msg.Step.Valid() {
		return fmt.Errorf("%w: step %d", ErrInvalidMessage, uint32(msg.Step))
	}
	if e.validatorSet != nil && !e.validatorSet.Contains(voter) {
		return fmt.Errorf("%w: %s", ErrUnknownVoter, types.AddressString(voter))
	}

	e.votes.Vote(msg, voter)
	e.walWriteVote(msg, voter)
	e.maybeAdvance(msg)
	return nil
}

// maybeAdvance triggers an early step advance when this vote completed a
// supermajority for the current height and round. Only the vote that
// crosses the threshold advances, so repeated votes past quorum cause no
// double-advance.
func (e *Engine) maybeAdvance(msg ConsensusMessage) {
	if e.validatorSet == nil {
		return
	}
	if msg.Height != e.Height() || msg.Round != e.state.Round() {
		return
	}
	if e.votes.CountSignatures(msg.Height, msg.Round) != e.validatorSet.Supermajority() {
		return
	}

	e.logger.Debug("supermajority reached, advancing step early",
		zap.Int64("height", msg.Height),
		zap.Int32("round", msg.Round),
		zap.Stringer("step", e.state.Step()))
	e.clock.Advance()
}

// AdvanceStep asks the clock for an immediate transition, used by
// collaborators that detect quorum through their own channels.
func (e *Engine) AdvanceStep() {
	e.clock.Advance()
}

// EnterCommit moves consensus into the Commit waiting phase and schedules
// its timeout. Called by the collaborator that sealed a block for the
// current round; if the block is not finalized before the commit timeout,
// the clock rolls into Propose of the next round.
func (e *Engine) EnterCommit() {
	e.state.EnterCommit()
	e.clock.Reset()
	e.logger.Debug("entered commit step",
		zap.Int64("height", e.Height()),
		zap.Int32("round", e.state.Round()))
}

// stepTimeout performs one step transition on behalf of the clock
func (e *Engine) stepTimeout() Step {
	step := e.state.Transition()

	e.logger.Debug("consensus step timeout",
		zap.Stringer("step", step),
		zap.Int32("round", e.state.Round()))

	if e.wal != nil {
		rec, err := wal.NewStepRecord(e.Height(), e.state.Round(), step)
		if err == nil {
			err = e.wal.Write(rec)
		}
		if err != nil {
			e.logger.Warn("failed to log step transition", zap.Error(err))
		}
	}
	return step
}

// notifyReconsiderSealing tells the client bus to re-check sealing.
// Best-effort: a failure is logged and never retried, because the next
// timeout re-triggers consideration.
func (e *Engine) notifyReconsiderSealing(step Step) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Send(ReconsiderSealing); err != nil {
		e.logger.Debug("could not send sealing message",
			zap.Stringer("step", step),
			zap.Error(err))
		return
	}
	e.logger.Debug("sealing message sent", zap.Stringer("step", step))
}

// walWriteVote appends a vote to the WAL; failures degrade recovery, not
// consensus, and are logged only.
func (e *Engine) walWriteVote(msg ConsensusMessage, voter types.Address) {
	if e.wal == nil {
		return
	}
	rec, err := wal.NewVoteRecord(msg, voter)
	if err == nil {
		if e.config.WALSync {
			err = e.wal.WriteSync(rec)
		} else {
			err = e.wal.Write(rec)
		}
	}
	if err != nil {
		e.logger.Warn("failed to log vote", zap.Error(err))
	}
}

// Step returns the current consensus step
func (e *Engine) Step() Step {
	return e.state.Step()
}

// Round returns the current round
func (e *Engine) Round() Round {
	return e.state.Round()
}

// Proposed reports whether a proposal was recorded for the current round
func (e *Engine) Proposed() bool {
	return e.state.Proposed()
}

// SetProposed records that a proposal arrived for the current round's
// Propose step; it reports whether the flag was set.
func (e *Engine) SetProposed() bool {
	return e.state.SetProposed()
}

// Height returns the height the engine currently votes at
func (e *Engine) Height() Height {
	return e.height.Load()
}

// SetHeight retargets the engine at a new height, driven by the
// collaborator that finalizes blocks. The round is deliberately not reset;
// round zero restarts are a collaborator decision layered above this core.
func (e *Engine) SetHeight(height Height) {
	old := e.height.Swap(height)
	if old == height {
		return
	}
	if e.wal != nil {
		if err := e.wal.WriteSync(wal.NewEndHeightRecord(old)); err != nil {
			e.logger.Warn("failed to log end of height", zap.Error(err))
		}
	}
	e.logger.Info("consensus height changed", zap.Int64("from", old), zap.Int64("to", height))
}

// SealSignatures returns the proposal and precommit signatures recorded
// for exactly this height, round and block hash, in deterministic key
// order.
func (e *Engine) SealSignatures(height Height, round Round, blockHash *types.Hash) []types.Signature {
	return e.votes.SealSignatures(height, round, blockHash)
}

// AlignedSignatures returns the seal signatures aligned with msg
func (e *Engine) AlignedSignatures(msg ConsensusMessage) []types.Signature {
	return e.votes.AlignedSignatures(msg)
}

// CountSignatures returns the number of proposal and precommit messages at
// (height, round) across all block hashes.
func (e *Engine) CountSignatures(height Height, round Round) int {
	return e.votes.CountSignatures(height, round)
}

// ChainID returns the chain ID
func (e *Engine) ChainID() string {
	return e.config.ChainID
}

// OpenWAL opens the file-backed WAL named by the config, or a no-op WAL
// when the path is empty.
func OpenWAL(cfg *Config) (WAL, error) {
	if cfg.WALPath == "" {
		return &wal.NopWAL{}, nil
	}
	return wal.NewFileWAL(cfg.WALPath)
}
