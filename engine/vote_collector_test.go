package engine

import (
	"sync"
	"testing"

	"github.com/paddymahoney/parity/types"
)

func testHash(n byte) *types.Hash {
	var h types.Hash
	h[0] = n
	return &h
}

func testSig(n byte) types.Signature {
	var s types.Signature
	s[0] = n
	return s
}

func testAddr(n byte) types.Address {
	var a types.Address
	a[0] = n
	return a
}

func makeVote(height Height, round Round, step Step, hash *types.Hash, sig byte) ConsensusMessage {
	return ConsensusMessage{
		Height:    height,
		Round:     round,
		Step:      step,
		BlockHash: hash,
		Signature: testSig(sig),
	}
}

func TestVoteIdempotent(t *testing.T) {
	vc := NewVoteCollector()
	msg := makeVote(1, 0, StepPrecommit, testHash(1), 1)

	vc.Vote(msg, testAddr(1))
	vc.Vote(msg, testAddr(1))
	vc.Vote(msg, testAddr(1))

	if vc.Len() != 1 {
		t.Errorf("expected 1 entry after duplicate inserts, got %d", vc.Len())
	}
	if got := vc.CountSignatures(1, 0); got != 1 {
		t.Errorf("expected count 1, got %d", got)
	}
}

func TestDistinctSignaturesDistinctEntries(t *testing.T) {
	vc := NewVoteCollector()

	// Two validators voting identical coordinates differ only in signature
	// and must occupy distinct entries.
	vc.Vote(makeVote(1, 0, StepPrecommit, testHash(1), 1), testAddr(1))
	vc.Vote(makeVote(1, 0, StepPrecommit, testHash(1), 2), testAddr(2))

	if vc.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", vc.Len())
	}
}

func TestSealSignatures(t *testing.T) {
	vc := NewVoteCollector()
	hash := testHash(7)

	// A: proposal for the hash. B: precommit for the hash. C: prevote for
	// the hash (excluded from seals). D: precommit for a different hash.
	vc.Vote(makeVote(5, 2, StepPropose, hash, 1), testAddr(1))
	vc.Vote(makeVote(5, 2, StepPrecommit, hash, 2), testAddr(2))
	vc.Vote(makeVote(5, 2, StepPrevote, hash, 3), testAddr(3))
	vc.Vote(makeVote(5, 2, StepPrecommit, testHash(8), 4), testAddr(4))

	seal := vc.SealSignatures(5, 2, hash)
	if len(seal) != 2 {
		t.Fatalf("expected 2 seal signatures, got %d", len(seal))
	}
	if seal[0] != testSig(1) || seal[1] != testSig(2) {
		t.Errorf("seal signatures out of order: %v", seal)
	}

	// Aligned lookup through a message votes for the same coordinates.
	aligned := vc.AlignedSignatures(makeVote(5, 2, StepPrecommit, hash, 99))
	if len(aligned) != 2 {
		t.Errorf("expected 2 aligned signatures, got %d", len(aligned))
	}

	// Count aggregates across hashes but still excludes prevotes.
	if got := vc.CountSignatures(5, 2); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
}

func TestSealSignaturesNilHash(t *testing.T) {
	vc := NewVoteCollector()

	vc.Vote(makeVote(1, 0, StepPrecommit, nil, 1), testAddr(1))
	vc.Vote(makeVote(1, 0, StepPrecommit, testHash(1), 2), testAddr(2))

	seal := vc.SealSignatures(1, 0, nil)
	if len(seal) != 1 {
		t.Fatalf("expected 1 signature for the nil hash, got %d", len(seal))
	}
	if seal[0] != testSig(1) {
		t.Errorf("unexpected signature %v", seal[0])
	}
}

func TestRoundIsolation(t *testing.T) {
	vc := NewVoteCollector()
	hash := testHash(1)

	vc.Vote(makeVote(1, 0, StepPrecommit, hash, 1), testAddr(1))
	vc.Vote(makeVote(1, 1, StepPrecommit, hash, 2), testAddr(2))
	vc.Vote(makeVote(2, 0, StepPrecommit, hash, 3), testAddr(3))

	if got := vc.CountSignatures(1, 0); got != 1 {
		t.Errorf("round (1,0): expected 1, got %d", got)
	}
	if got := vc.CountSignatures(1, 1); got != 1 {
		t.Errorf("round (1,1): expected 1, got %d", got)
	}
	if got := vc.CountSignatures(3, 0); got != 0 {
		t.Errorf("round (3,0): expected 0, got %d", got)
	}
}

func TestSealOrderDeterministic(t *testing.T) {
	hash := testHash(1)
	votes := []ConsensusMessage{
		makeVote(1, 0, StepPrecommit, hash, 30),
		makeVote(1, 0, StepPropose, hash, 10),
		makeVote(1, 0, StepPrecommit, hash, 20),
	}

	// Insert in two different arrival orders; the seal must come out
	// identical.
	a := NewVoteCollector()
	for i, v := range votes {
		a.Vote(v, testAddr(byte(i)))
	}
	b := NewVoteCollector()
	for i := len(votes) - 1; i >= 0; i-- {
		b.Vote(votes[i], testAddr(byte(i)))
	}

	sealA := a.SealSignatures(1, 0, hash)
	sealB := b.SealSignatures(1, 0, hash)
	if len(sealA) != 3 || len(sealB) != 3 {
		t.Fatalf("expected 3 signatures, got %d and %d", len(sealA), len(sealB))
	}
	for i := range sealA {
		if sealA[i] != sealB[i] {
			t.Fatalf("seal order differs at %d: %v vs %v", i, sealA[i], sealB[i])
		}
	}
	// Propose sorts before Precommit, then signature bytes break ties.
	if sealA[0] != testSig(10) || sealA[1] != testSig(20) || sealA[2] != testSig(30) {
		t.Errorf("unexpected seal order: %v", sealA)
	}
}

func TestVoteConcurrent(t *testing.T) {
	vc := NewVoteCollector()
	hash := testHash(1)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n byte) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				vc.Vote(makeVote(1, 0, StepPrecommit, hash, n), testAddr(n))
				vc.CountSignatures(1, 0)
				vc.SealSignatures(1, 0, hash)
			}
		}(byte(i))
	}
	wg.Wait()

	if vc.Len() != 16 {
		t.Errorf("expected 16 distinct entries, got %d", vc.Len())
	}
	if got := vc.CountSignatures(1, 0); got != 16 {
		t.Errorf("expected count 16, got %d", got)
	}
}
