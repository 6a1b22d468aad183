package privval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/paddymahoney/parity/types"
)

const (
	keyFilePerm   = 0600
	stateFilePerm = 0600
)

// FilePV is a file-based private validator: the key lives in one JSON file
// and the last-signed state in another, so a restarted node cannot sign a
// conflicting message for a step it already signed.
type FilePV struct {
	mu sync.Mutex

	keyFilePath   string
	stateFilePath string

	privKey *secp256k1.PrivateKey
	pubKey  types.PublicKey
	address types.Address

	lastSignState lastSignState
}

// filePVKey is the key file structure
type filePVKey struct {
	PubKey  []byte `json:"pub_key"`
	PrivKey []byte `json:"priv_key"`
}

// lastSignState tracks the last signed message for double-sign prevention
type lastSignState struct {
	Height    types.Height `json:"height"`
	Round     types.Round  `json:"round"`
	Step      types.Step   `json:"step"`
	BlockHash []byte       `json:"block_hash,omitempty"`
	Signature []byte       `json:"signature,omitempty"`
}

// NewFilePV loads a file-based private validator, generating a fresh key
// if the key file does not exist yet.
func NewFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	pv := &FilePV{
		keyFilePath:   keyFilePath,
		stateFilePath: stateFilePath,
	}
	if err := pv.loadKey(); err != nil {
		return nil, err
	}
	if err := pv.loadState(); err != nil {
		return nil, err
	}
	return pv, nil
}

// loadKey loads the key from file, generating one if it doesn't exist
func (pv *FilePV) loadKey() error {
	data, err := os.ReadFile(pv.keyFilePath)
	if os.IsNotExist(err) {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		pv.setKey(priv)
		return pv.saveKey()
	}
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}

	var key filePVKey
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("failed to parse key file: %w", err)
	}
	if len(key.PrivKey) != 32 {
		return fmt.Errorf("invalid private key length %d", len(key.PrivKey))
	}
	pv.setKey(secp256k1.PrivKeyFromBytes(key.PrivKey))
	return nil
}

func (pv *FilePV) setKey(priv *secp256k1.PrivateKey) {
	pv.privKey = priv
	pv.pubKey, _ = types.NewPublicKey(priv.PubKey().SerializeCompressed())
	pv.address = types.AddressFromPublicKey(pv.pubKey)
}

// saveKey writes the key file
func (pv *FilePV) saveKey() error {
	key := filePVKey{
		PubKey:  pv.pubKey[:],
		PrivKey: pv.privKey.Serialize(),
	}
	data, err := json.MarshalIndent(&key, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pv.keyFilePath), 0700); err != nil {
		return err
	}
	return os.WriteFile(pv.keyFilePath, data, keyFilePerm)
}

// loadState loads the last-sign state, starting empty if absent
func (pv *FilePV) loadState() error {
	data, err := os.ReadFile(pv.stateFilePath)
	if os.IsNotExist(err) {
		return pv.saveState()
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if err := json.Unmarshal(data, &pv.lastSignState); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	return nil
}

// saveState writes the last-sign state file
func (pv *FilePV) saveState() error {
	data, err := json.MarshalIndent(&pv.lastSignState, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pv.stateFilePath), 0700); err != nil {
		return err
	}
	return os.WriteFile(pv.stateFilePath, data, stateFilePerm)
}

// Address returns the validator address
func (pv *FilePV) Address() types.Address {
	return pv.address
}

// PublicKey returns the compressed public key
func (pv *FilePV) PublicKey() types.PublicKey {
	return pv.pubKey
}

// SignMessage signs a consensus message, filling in its Signature. Signing
// a message whose (height, round, step) regresses behind the last signed
// one is refused; re-signing the identical coordinates returns the cached
// signature so retries stay idempotent.
func (pv *FilePV) SignMessage(chainID string, msg *types.ConsensusMessage) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	cached, err := pv.checkRegression(msg)
	if err != nil {
		return err
	}
	if cached != nil {
		msg.Signature = *cached
		return nil
	}

	digest, err := msg.SignDigest(chainID)
	if err != nil {
		return err
	}

	sig := ecdsa.SignCompact(pv.privKey, digest[:], true)
	msg.Signature, err = types.NewSignature(sig)
	if err != nil {
		return err
	}

	pv.lastSignState = lastSignState{
		Height:    msg.Height,
		Round:     msg.Round,
		Step:      msg.Step,
		Signature: sig,
	}
	if msg.BlockHash != nil {
		pv.lastSignState.BlockHash = msg.BlockHash[:]
	}
	return pv.saveState()
}

// checkRegression enforces the monotonic signing order. It returns the
// cached signature when the request repeats the last signed message exactly.
// Caller holds the lock.
func (pv *FilePV) checkRegression(msg *types.ConsensusMessage) (*types.Signature, error) {
	last := &pv.lastSignState
	if len(last.Signature) == 0 {
		return nil, nil
	}

	switch {
	case msg.Height < last.Height:
		return nil, fmt.Errorf("%w: %d < %d", ErrHeightRegression, msg.Height, last.Height)
	case msg.Height > last.Height:
		return nil, nil
	}
	switch {
	case msg.Round < last.Round:
		return nil, fmt.Errorf("%w: %d < %d", ErrRoundRegression, msg.Round, last.Round)
	case msg.Round > last.Round:
		return nil, nil
	}
	switch {
	case msg.Step < last.Step:
		return nil, fmt.Errorf("%w: %s < %s", ErrStepRegression, msg.Step, last.Step)
	case msg.Step > last.Step:
		return nil, nil
	}

	// Same (height, round, step): only the identical block hash may be
	// re-signed, and it gets the recorded signature back.
	var lastHash *types.Hash
	if len(last.BlockHash) == types.HashSize {
		h := types.MustNewHash(last.BlockHash)
		lastHash = &h
	}
	if types.HashCompare(msg.BlockHash, lastHash) != 0 {
		return nil, fmt.Errorf("%w: height %d round %d step %s", ErrDoubleSign, msg.Height, msg.Round, msg.Step)
	}
	sig := types.MustNewSignature(last.Signature)
	return &sig, nil
}

// Ensure FilePV implements Signer
var _ Signer = (*FilePV)(nil)
