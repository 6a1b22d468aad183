package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrN(n byte) Address {
	var a Address
	a[0] = n
	return a
}

func TestNewValidatorSet(t *testing.T) {
	_, err := NewValidatorSet(nil)
	assert.ErrorIs(t, err, ErrEmptyValidatorSet)

	_, err = NewValidatorSet([]Address{addrN(1), addrN(2), addrN(1)})
	assert.ErrorIs(t, err, ErrDuplicateAddress)

	vs, err := NewValidatorSet([]Address{addrN(3), addrN(1), addrN(2)})
	require.NoError(t, err)
	assert.Equal(t, 3, vs.Size())
	assert.Equal(t, []Address{addrN(1), addrN(2), addrN(3)}, vs.Addresses())
}

func TestValidatorSetContains(t *testing.T) {
	vs, err := NewValidatorSet([]Address{addrN(5), addrN(10), addrN(20)})
	require.NoError(t, err)

	assert.True(t, vs.Contains(addrN(5)))
	assert.True(t, vs.Contains(addrN(20)))
	assert.False(t, vs.Contains(addrN(6)))
	assert.False(t, vs.Contains(Address{}))
}

func TestSupermajority(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{
		{1, 1},
		{2, 2},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
		{100, 67},
	}
	for _, tc := range cases {
		addrs := make([]Address, tc.size)
		for i := range addrs {
			addrs[i] = Address{byte(i >> 8), byte(i)}
		}
		vs, err := NewValidatorSet(addrs)
		require.NoError(t, err)
		assert.Equal(t, tc.want, vs.Supermajority(), "size %d", tc.size)
	}
}

func TestAddressesCopy(t *testing.T) {
	vs, err := NewValidatorSet([]Address{addrN(1), addrN(2)})
	require.NoError(t, err)

	out := vs.Addresses()
	out[0] = addrN(99)
	assert.True(t, vs.Contains(addrN(1)), "mutating the returned slice must not affect the set")
}
