package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/paddymahoney/parity/types"
)

// Type aliases for the shared consensus types
type (
	Height = types.Height
	Round  = types.Round
	Step   = types.Step

	ConsensusMessage = types.ConsensusMessage
)

const (
	StepPropose   = types.StepPropose
	StepPrevote   = types.StepPrevote
	StepPrecommit = types.StepPrecommit
	StepCommit    = types.StepCommit
)

// TimerToken identifies one logical timer within a TimerService.
type TimerToken uint64

// StepTimerToken is the token of the consensus step timer.
const StepTimerToken TimerToken = 0

// TimerHandler receives timer expirations from a TimerService.
type TimerHandler interface {
	OnTimer(token TimerToken)
}

// TimerService schedules one-shot timers for a handler. Registering a token
// that already has a live timer replaces it, so at most one timer per token
// is pending at any time.
type TimerService interface {
	// RegisterTimerOnce schedules a one-shot timer for the token.
	RegisterTimerOnce(token TimerToken, d time.Duration) error

	// ClearTimer cancels any pending timer for the token.
	ClearTimer(token TimerToken) error
}

// WallTimers is the default TimerService, backed by the runtime timer heap.
type WallTimers struct {
	mu      sync.Mutex
	handler TimerHandler
	timers  map[TimerToken]*time.Timer
	stopped bool
}

// NewWallTimers creates a TimerService delivering expirations to handler.
func NewWallTimers(handler TimerHandler) *WallTimers {
	return &WallTimers{
		handler: handler,
		timers:  make(map[TimerToken]*time.Timer),
	}
}

// RegisterTimerOnce schedules a one-shot timer, replacing any pending timer
// for the same token.
func (wt *WallTimers) RegisterTimerOnce(token TimerToken, d time.Duration) error {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.stopped {
		return ErrTimerRegistration
	}

	if old, ok := wt.timers[token]; ok {
		old.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		wt.mu.Lock()
		// A replaced timer may still fire once; only the current
		// registration is delivered.
		current := wt.timers[token] == timer && !wt.stopped
		if current {
			delete(wt.timers, token)
		}
		wt.mu.Unlock()

		if current {
			wt.handler.OnTimer(token)
		}
	})
	wt.timers[token] = timer
	return nil
}

// ClearTimer cancels any pending timer for the token
func (wt *WallTimers) ClearTimer(token TimerToken) error {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if timer, ok := wt.timers[token]; ok {
		timer.Stop()
		delete(wt.timers, token)
	}
	return nil
}

// Stop cancels all pending timers; the service delivers nothing afterwards.
func (wt *WallTimers) Stop() {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	wt.stopped = true
	for token, timer := range wt.timers {
		timer.Stop()
		delete(wt.timers, token)
	}
}

var _ TimerService = (*WallTimers)(nil)

// StepClock drives the consensus step machine on wall-clock timeouts. It
// holds a non-owning reference to the engine: the engine clears it on Stop,
// and every callback re-resolves it, so a timer firing after teardown is a
// silent no-op rather than an error.
type StepClock struct {
	token  TimerToken
	timers TimerService
	logger *zap.Logger

	// Non-owning back-reference, nil once the engine is stopped.
	engine atomic.Pointer[Engine]
}

// newStepClock creates a StepClock using the given timer service
func newStepClock(timers TimerService, logger *zap.Logger) *StepClock {
	return &StepClock{
		token:  StepTimerToken,
		timers: timers,
		logger: logger,
	}
}

// bind attaches the clock to an engine
func (sc *StepClock) bind(e *Engine) {
	sc.engine.Store(e)
}

// detach clears the engine reference; timers firing afterwards resolve nil
// and do nothing.
func (sc *StepClock) detach() {
	sc.engine.Store(nil)
}

// Initialize schedules the first step timer for the remaining duration of
// the current step. Unlike later rescheduling failures, an error here is
// returned to the caller: an engine with no timer from the outset has no
// path to liveness.
func (sc *StepClock) Initialize() error {
	e := sc.engine.Load()
	if e == nil {
		return ErrNotStarted
	}
	remaining := e.state.RemainingStepDuration()
	if err := sc.timers.RegisterTimerOnce(sc.token, remaining); err != nil {
		return fmt.Errorf("%w: failed to start consensus step timer: %v", ErrTimerRegistration, err)
	}
	return nil
}

// OnTimer handles a step timer expiry: transition the state machine, notify
// the client bus that sealing should be reconsidered, and reschedule for
// the new step. Expiries for foreign tokens and fires after engine teardown
// are ignored.
func (sc *StepClock) OnTimer(token TimerToken) {
	if token != sc.token {
		return
	}
	e := sc.engine.Load()
	if e == nil {
		// Engine already torn down; expected during shutdown races.
		return
	}

	step := e.stepTimeout()
	e.notifyReconsiderSealing(step)
	sc.reschedule(e, step)
}

// Advance clears any pending step timer and reschedules an immediate fire,
// producing exactly one transition ahead of the default deadline. A stale
// timer that still fires afterwards is defused by the registration check in
// the timer service.
func (sc *StepClock) Advance() {
	e := sc.engine.Load()
	if e == nil {
		return
	}
	if err := sc.timers.ClearTimer(sc.token); err != nil {
		sc.logger.Warn("failed to clear consensus step timer", zap.Error(err))
	}
	if err := sc.timers.RegisterTimerOnce(sc.token, 0); err != nil {
		sc.logger.Warn("failed to restart consensus step timer", zap.Error(err))
	}
}

// Reset reschedules the step timer for the step the engine is currently in,
// used after a step change that bypassed the timeout path.
func (sc *StepClock) Reset() {
	e := sc.engine.Load()
	if e == nil {
		return
	}
	sc.reschedule(e, e.state.Step())
}

// reschedule registers a fresh one-shot timer for the step just entered,
// applying the per-round backoff delta. Failure degrades liveness until the
// next external advance, so it is logged and swallowed.
func (sc *StepClock) reschedule(e *Engine, step Step) {
	d := e.config.Timeouts.ForRound(step, e.state.Round())
	if err := sc.timers.RegisterTimerOnce(sc.token, d); err != nil {
		sc.logger.Warn("failed to restart consensus step timer",
			zap.Stringer("step", step),
			zap.Error(err))
	}
}
