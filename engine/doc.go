// Package engine implements the timeout-driven core of a Tendermint-style
// BFT consensus engine: the round/step state machine and the vote
// bookkeeping used to assemble block seals.
//
// The step cycle is:
//
//	Propose → Prevote → Precommit → Propose(round+1)
//
// with Commit as a waiting phase entered externally; its own timeout also
// rolls into Propose of the next round.
//
// # Core Components
//
// ConsensusState: atomic step, round and proposed-flag counters plus the
// per-step deadline arithmetic. Transitions are pure state mutation.
//
// VoteCollector: ordered store of signed consensus messages keyed by full
// message content. Answers seal and quorum queries in a deterministic key
// order.
//
// StepClock: schedules one-shot timers through a TimerService, advances the
// state machine on expiry, notifies the client bus to reconsider sealing
// and reschedules itself. It holds only a non-owning reference to the
// engine, so a timer that outlives the engine is a harmless no-op.
//
// Engine: the facade wiring configuration, the timer service, the message
// bus and the optional WAL to the two stateful components.
//
// # Collaborators
//
// Signature recovery happens before a vote reaches the engine (see package
// privval); block validation and execution, persistent chain storage, the
// peer protocol and validator-set management all live outside this core.
//
// # Thread Safety
//
// Timer expirations and inbound votes arrive on independent goroutines.
// Every operation is a short synchronous critical section: an atomic update
// or one bounded store operation. The three ConsensusState counters are
// updated independently, so readers tolerate observing a transition
// mid-flight; step transitions for one engine are strictly sequential.
package engine
