package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the expected size of a hash in bytes
const HashSize = 32

// SignatureSize is the size of a compact recoverable signature in bytes
// (1-byte recovery code followed by the 64-byte R||S pair).
const SignatureSize = 65

// PublicKeySize is the size of a compressed secp256k1 public key in bytes
const PublicKeySize = 33

// AddressSize is the size of a validator address in bytes
const AddressSize = 20

// Hash is a 32-byte block or message hash
type Hash [HashSize]byte

// Signature is a 65-byte compact recoverable signature
type Signature [SignatureSize]byte

// PublicKey is a 33-byte compressed secp256k1 public key
type PublicKey [PublicKeySize]byte

// Address identifies a validator, derived from its public key
type Address [AddressSize]byte

// NewHash creates a Hash from bytes, returning error if invalid.
// Use for untrusted input (network, files).
func NewHash(data []byte) (Hash, error) {
	var h Hash
	if len(data) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(data))
	}
	copy(h[:], data)
	return h, nil
}

// MustNewHash creates a Hash, panicking if invalid.
// Use only for trusted internal data.
func MustNewHash(data []byte) Hash {
	h, err := NewHash(data)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBytes computes the SHA-256 hash of data
func HashBytes(data []byte) Hash {
	return sha256.Sum256(data)
}

// HashEqual compares two hashes
func HashEqual(a, b Hash) bool {
	return a == b
}

// HashCompare orders two optional hashes. An absent hash sorts before any
// present hash; present hashes order by raw bytes. The rule is pinned here
// because consensus messages are keyed on it.
func HashCompare(a, b *Hash) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return bytes.Compare(a[:], b[:])
	}
}

// CopyHash returns a copy of an optional hash
func CopyHash(h *Hash) *Hash {
	if h == nil {
		return nil
	}
	c := *h
	return &c
}

// HashString returns the hex-encoded hash
func HashString(h Hash) string {
	return hex.EncodeToString(h[:])
}

// NewSignature creates a Signature from bytes, returning error if invalid.
// Use for untrusted input (network, files).
func NewSignature(data []byte) (Signature, error) {
	var s Signature
	if len(data) != SignatureSize {
		return s, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	copy(s[:], data)
	return s, nil
}

// MustNewSignature creates a Signature, panicking if invalid.
// Use only for trusted internal data (e.g., crypto library output).
func MustNewSignature(data []byte) Signature {
	s, err := NewSignature(data)
	if err != nil {
		panic(err)
	}
	return s
}

// SignatureCompare orders two signatures by raw bytes
func SignatureCompare(a, b Signature) int {
	return bytes.Compare(a[:], b[:])
}

// NewPublicKey creates a PublicKey from bytes, returning error if invalid.
// Use for untrusted input (network, files).
func NewPublicKey(data []byte) (PublicKey, error) {
	var p PublicKey
	if len(data) != PublicKeySize {
		return p, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	copy(p[:], data)
	return p, nil
}

// PublicKeyEqual compares two public keys
func PublicKeyEqual(a, b PublicKey) bool {
	return a == b
}

// AddressFromPublicKey derives a validator address from a compressed public
// key: the last 20 bytes of its SHA-256 hash.
func AddressFromPublicKey(pub PublicKey) Address {
	h := sha256.Sum256(pub[:])
	var a Address
	copy(a[:], h[HashSize-AddressSize:])
	return a
}

// AddressString returns the hex-encoded address
func AddressString(a Address) string {
	return hex.EncodeToString(a[:])
}
