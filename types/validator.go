package types

import (
	"bytes"
	"errors"
	"sort"
)

// Errors
var (
	ErrEmptyValidatorSet = errors.New("empty validator set")
	ErrDuplicateAddress  = errors.New("duplicate validator address")
)

// ValidatorSet is the set of addresses entitled to vote at the current
// height. Membership management (joins, leaves, reweighting) is handled by a
// collaborator; the consensus core only needs membership checks and the
// supermajority threshold.
type ValidatorSet struct {
	addresses []Address
}

// NewValidatorSet creates a validator set from the given addresses.
// Addresses are kept in sorted order for deterministic iteration.
func NewValidatorSet(addresses []Address) (*ValidatorSet, error) {
	if len(addresses) == 0 {
		return nil, ErrEmptyValidatorSet
	}

	sorted := make([]Address, len(addresses))
	copy(sorted, addresses)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, ErrDuplicateAddress
		}
	}

	return &ValidatorSet{addresses: sorted}, nil
}

// Size returns the number of validators
func (vs *ValidatorSet) Size() int {
	return len(vs.addresses)
}

// Contains reports whether addr is a member of the set
func (vs *ValidatorSet) Contains(addr Address) bool {
	i := sort.Search(len(vs.addresses), func(i int) bool {
		return bytes.Compare(vs.addresses[i][:], addr[:]) >= 0
	})
	return i < len(vs.addresses) && vs.addresses[i] == addr
}

// Addresses returns a copy of the member addresses in sorted order
func (vs *ValidatorSet) Addresses() []Address {
	out := make([]Address, len(vs.addresses))
	copy(out, vs.addresses)
	return out
}

// Supermajority returns the minimum number of distinct signatures that
// constitutes a supermajority: strictly more than two thirds of the set.
func (vs *ValidatorSet) Supermajority() int {
	return 2*len(vs.addresses)/3 + 1
}
