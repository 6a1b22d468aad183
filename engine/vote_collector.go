package engine

import (
	"sync"

	"github.com/google/btree"

	"github.com/paddymahoney/parity/types"
)

// btreeDegree is the branching factor of the vote store
const btreeDegree = 8

// voteEntry is one recorded message and the validator it recovered to
type voteEntry struct {
	msg   ConsensusMessage
	voter types.Address
}

// VoteCollector stores all proposals, prevotes and precommits seen by the
// engine, keyed by full message content in the pinned message order. The
// store favors many concurrent readers (quorum checks) against occasional
// writers (new votes); no operation spans more than one call.
//
// The collector grows for the engine's lifetime; pruning across heights is
// a collaborator policy.
type VoteCollector struct {
	mu    sync.RWMutex
	votes *btree.BTreeG[voteEntry]
}

// NewVoteCollector creates an empty VoteCollector
func NewVoteCollector() *VoteCollector {
	return &VoteCollector{
		votes: btree.NewG(btreeDegree, func(a, b voteEntry) bool {
			return a.msg.Compare(b.msg) < 0
		}),
	}
}

// Vote records message→voter. The caller must already have verified that
// the message's signature recovers to voter; the collector never checks
// signatures, height bounds or set membership itself. Re-inserting an
// identical message is a no-op in effect.
func (vc *VoteCollector) Vote(msg ConsensusMessage, voter types.Address) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.votes.ReplaceOrInsert(voteEntry{msg: msg, voter: voter})
}

// ascendRound visits every entry for (height, round) in key order
func (vc *VoteCollector) ascendRound(height Height, round Round, fn func(voteEntry) bool) {
	pivot := voteEntry{msg: ConsensusMessage{Height: height, Round: round}}
	vc.votes.AscendGreaterOrEqual(pivot, func(item voteEntry) bool {
		if !item.msg.IsRound(height, round) {
			return false
		}
		return fn(item)
	})
}

// SealSignatures returns the signatures of all recorded messages matching
// exactly this height, round and block hash whose step is Propose or
// Precommit. A seal is composed of the proposal signature plus precommit
// signatures, so prevotes are excluded. Results follow the deterministic
// key order, not arrival order; callers needing a canonical seal ordering
// rely on it as-is.
func (vc *VoteCollector) SealSignatures(height Height, round Round, blockHash *types.Hash) []types.Signature {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	var sigs []types.Signature
	vc.ascendRound(height, round, func(item voteEntry) bool {
		if item.msg.Step != StepPrevote && types.HashCompare(item.msg.BlockHash, blockHash) == 0 {
			sigs = append(sigs, item.msg.Signature)
		}
		return true
	})
	return sigs
}

// AlignedSignatures returns the seal signatures aligned with this specific
// message's height, round and block hash.
func (vc *VoteCollector) AlignedSignatures(msg ConsensusMessage) []types.Signature {
	return vc.SealSignatures(msg.Height, msg.Round, msg.BlockHash)
}

// CountSignatures returns the number of Propose and Precommit messages
// recorded for (height, round) across all block hashes. It does not by
// itself prove agreement on one hash; confirm a specific candidate with
// SealSignatures.
func (vc *VoteCollector) CountSignatures(height Height, round Round) int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	count := 0
	vc.ascendRound(height, round, func(item voteEntry) bool {
		if item.msg.Step != StepPrevote {
			count++
		}
		return true
	})
	return count
}

// Len returns the total number of recorded messages
func (vc *VoteCollector) Len() int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.votes.Len()
}
