package privval

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/paddymahoney/parity/types"
)

// Errors
var (
	ErrDoubleSign       = errors.New("double sign attempt")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrHeightRegression = errors.New("height regression")
	ErrRoundRegression  = errors.New("round regression")
	ErrStepRegression   = errors.New("step regression")
)

// Signer signs consensus messages for one validator identity. The engine
// core never signs or verifies anything itself; a Signer is wired in by the
// surrounding node.
type Signer interface {
	// Address returns the validator address derived from the public key
	Address() types.Address

	// PublicKey returns the compressed public key
	PublicKey() types.PublicKey

	// SignMessage fills in the message's recoverable signature, refusing
	// conflicting re-signing of the same (height, round, step).
	SignMessage(chainID string, msg *types.ConsensusMessage) error
}

// Recover returns the address of the validator whose key produced sig over
// digest. This is the recovery precondition of VoteCollector.Vote: callers
// recover the voter first and hand both to the engine.
func Recover(sig types.Signature, digest types.Hash) (types.Address, error) {
	pub, _, err := ecdsa.RecoverCompact(sig[:], digest[:])
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	pubKey, err := types.NewPublicKey(pub.SerializeCompressed())
	if err != nil {
		return types.Address{}, err
	}
	return types.AddressFromPublicKey(pubKey), nil
}

// RecoverMessage recovers the voter of a signed consensus message
func RecoverMessage(chainID string, msg types.ConsensusMessage) (types.Address, error) {
	digest, err := msg.SignDigest(chainID)
	if err != nil {
		return types.Address{}, err
	}
	return Recover(msg.Signature, digest)
}
