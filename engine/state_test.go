package engine

import (
	"testing"
	"time"
)

func testTimeouts() StepTimeouts {
	return StepTimeouts{
		Propose:        30 * time.Millisecond,
		Prevote:        10 * time.Millisecond,
		Precommit:      10 * time.Millisecond,
		Commit:         10 * time.Millisecond,
		ProposeDelta:   5 * time.Millisecond,
		PrevoteDelta:   5 * time.Millisecond,
		PrecommitDelta: 5 * time.Millisecond,
	}
}

func TestNewConsensusState(t *testing.T) {
	cs := NewConsensusState(testTimeouts())

	if cs.Step() != StepPropose {
		t.Errorf("expected initial step Propose, got %s", cs.Step())
	}
	if cs.Round() != 0 {
		t.Errorf("expected initial round 0, got %d", cs.Round())
	}
	if cs.Proposed() {
		t.Error("expected proposed flag clear initially")
	}
}

func TestTransitionCycle(t *testing.T) {
	cs := NewConsensusState(testTimeouts())

	expected := []struct {
		step  Step
		round Round
	}{
		{StepPrevote, 0},
		{StepPrecommit, 0},
		{StepPropose, 1},
		{StepPrevote, 1},
		{StepPrecommit, 1},
		{StepPropose, 2},
	}

	for i, exp := range expected {
		got := cs.Transition()
		if got != exp.step {
			t.Fatalf("transition %d: expected step %s, got %s", i, exp.step, got)
		}
		if cs.Round() != exp.round {
			t.Fatalf("transition %d: expected round %d, got %d", i, exp.round, cs.Round())
		}
	}
}

func TestProposedFlag(t *testing.T) {
	cs := NewConsensusState(testTimeouts())

	if !cs.SetProposed() {
		t.Fatal("SetProposed should succeed during Propose step")
	}
	if !cs.Proposed() {
		t.Fatal("proposed flag should be set")
	}

	cs.Transition()
	if cs.Proposed() {
		t.Error("proposed flag should be cleared on transition")
	}
	if cs.SetProposed() {
		t.Error("SetProposed should fail outside the Propose step")
	}

	// Back in Propose after a full cycle.
	cs.Transition()
	cs.Transition()
	if cs.Step() != StepPropose {
		t.Fatalf("expected Propose, got %s", cs.Step())
	}
	if !cs.SetProposed() {
		t.Error("SetProposed should succeed again in the next round's Propose")
	}
}

func TestEnterCommit(t *testing.T) {
	cs := NewConsensusState(testTimeouts())
	cs.SetProposed()

	cs.EnterCommit()
	if cs.Step() != StepCommit {
		t.Fatalf("expected Commit, got %s", cs.Step())
	}
	if cs.Round() != 0 {
		t.Errorf("EnterCommit must not change the round, got %d", cs.Round())
	}
	if cs.Proposed() {
		t.Error("EnterCommit should clear the proposed flag")
	}

	// The commit timeout rolls into Propose of the next round.
	got := cs.Transition()
	if got != StepPropose {
		t.Fatalf("expected Propose after Commit, got %s", got)
	}
	if cs.Round() != 1 {
		t.Errorf("expected round 1 after Commit expiry, got %d", cs.Round())
	}
}

func TestRemainingStepDuration(t *testing.T) {
	timeouts := testTimeouts()
	cs := NewConsensusState(timeouts)

	remaining := cs.RemainingStepDuration()
	if remaining <= 0 || remaining > timeouts.Propose {
		t.Errorf("expected remaining in (0, %v], got %v", timeouts.Propose, remaining)
	}

	time.Sleep(timeouts.Propose + 5*time.Millisecond)
	if got := cs.RemainingStepDuration(); got != 0 {
		t.Errorf("expected 0 remaining after deadline, got %v", got)
	}
}

func TestNextStepDuration(t *testing.T) {
	timeouts := testTimeouts()
	cs := NewConsensusState(timeouts)

	if got := cs.NextStepDuration(); got != timeouts.Prevote {
		t.Errorf("expected %v, got %v", timeouts.Prevote, got)
	}

	cs.Transition() // Prevote
	cs.Transition() // Precommit
	if got := cs.NextStepDuration(); got != timeouts.Propose {
		t.Errorf("expected %v for the wrap to Propose, got %v", timeouts.Propose, got)
	}
}
