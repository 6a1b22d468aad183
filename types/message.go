package types

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Height is the block number under consensus
type Height = int64

// Round is the sub-attempt counter within a height
type Round = int32

// Step is one phase of a consensus round
type Step uint32

const (
	// StepPropose waits for the round's proposal
	StepPropose Step = iota
	// StepPrevote collects prevotes for the proposal
	StepPrevote
	// StepPrecommit collects precommits for the prevoted block
	StepPrecommit
	// StepCommit waits for the committed block to be finalized externally
	StepCommit
)

// numSteps is the number of enumerated steps
const numSteps = 4

// Valid reports whether s is one of the four enumerated steps
func (s Step) Valid() bool {
	return s < numSteps
}

// Next returns the cyclic successor of s and whether the transition wraps
// the round: Propose→Prevote→Precommit→Propose, with Commit also falling
// back to Propose. Both Precommit→Propose and Commit→Propose wrap.
func (s Step) Next() (next Step, newRound bool) {
	switch s {
	case StepPropose:
		return StepPrevote, false
	case StepPrevote:
		return StepPrecommit, false
	case StepPrecommit:
		return StepPropose, true
	case StepCommit:
		return StepPropose, true
	default:
		panic(fmt.Sprintf("invalid consensus step %d", s))
	}
}

// String returns the step name
func (s Step) String() string {
	switch s {
	case StepPropose:
		return "Propose"
	case StepPrevote:
		return "Prevote"
	case StepPrecommit:
		return "Precommit"
	case StepCommit:
		return "Commit"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(s))
	}
}

// Canonical CBOR for wire, WAL and sign-bytes encoding. Canonical form is
// required so that sign bytes are reproducible across nodes.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to build CBOR encode mode: %v", err))
	}
	cborDec, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to build CBOR decode mode: %v", err))
	}
}

// MarshalCanonical encodes v with the canonical CBOR mode
func MarshalCanonical(v interface{}) ([]byte, error) {
	return cborEnc.Marshal(v)
}

// UnmarshalCanonical decodes data with the strict CBOR mode
func UnmarshalCanonical(data []byte, v interface{}) error {
	return cborDec.Unmarshal(data, v)
}

// ConsensusMessage is a signed vote or proposal. The same structure serves
// as the network payload and, as a whole, as the key into the vote store:
// two validators voting for identical coordinates still occupy distinct
// entries because their signatures differ.
type ConsensusMessage struct {
	Height    Height    `cbor:"1,keyasint"`
	Round     Round     `cbor:"2,keyasint"`
	Step      Step      `cbor:"3,keyasint"`
	BlockHash *Hash     `cbor:"4,keyasint,omitempty"`
	Signature Signature `cbor:"5,keyasint"`
}

// Compare defines the total order of consensus messages: height, round,
// numeric step rank, block hash (absent before present, then raw bytes) and
// finally signature bytes. Seal queries rely on this order being stable, so
// it is pinned here rather than derived from field layout.
func (m ConsensusMessage) Compare(other ConsensusMessage) int {
	switch {
	case m.Height != other.Height:
		if m.Height < other.Height {
			return -1
		}
		return 1
	case m.Round != other.Round:
		if m.Round < other.Round {
			return -1
		}
		return 1
	case m.Step != other.Step:
		if m.Step < other.Step {
			return -1
		}
		return 1
	}
	if c := HashCompare(m.BlockHash, other.BlockHash); c != 0 {
		return c
	}
	return SignatureCompare(m.Signature, other.Signature)
}

// IsAligned reports whether the message votes for exactly this height,
// round and block hash.
func (m ConsensusMessage) IsAligned(height Height, round Round, blockHash *Hash) bool {
	return m.Height == height && m.Round == round && HashCompare(m.BlockHash, blockHash) == 0
}

// IsRound reports whether the message belongs to this height and round,
// regardless of block hash.
func (m ConsensusMessage) IsRound(height Height, round Round) bool {
	return m.Height == height && m.Round == round
}

// Marshal encodes the message with canonical CBOR
func (m *ConsensusMessage) Marshal() ([]byte, error) {
	return cborEnc.Marshal(m)
}

// Unmarshal decodes the message from canonical CBOR
func (m *ConsensusMessage) Unmarshal(data []byte) error {
	return cborDec.Unmarshal(data, m)
}

// SignDigest returns the digest a validator signs for this message: the
// SHA-256 of the chain ID and the canonical encoding of the message without
// its signature.
func (m ConsensusMessage) SignDigest(chainID string) (Hash, error) {
	unsigned := ConsensusMessage{
		Height:    m.Height,
		Round:     m.Round,
		Step:      m.Step,
		BlockHash: m.BlockHash,
	}
	data, err := cborEnc.Marshal(&unsigned)
	if err != nil {
		return Hash{}, fmt.Errorf("failed to marshal message for signing: %w", err)
	}
	return HashBytes(append([]byte(chainID), data...)), nil
}

// String returns a short description for logging
func (m ConsensusMessage) String() string {
	hash := "nil"
	if m.BlockHash != nil {
		hash = HashString(*m.BlockHash)[:8]
	}
	return fmt.Sprintf("%s(h=%d r=%d hash=%s)", m.Step, m.Height, m.Round, hash)
}
