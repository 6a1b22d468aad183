package types

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sigN(n byte) Signature {
	var s Signature
	s[0] = n
	return s
}

func hashN(n byte) *Hash {
	var h Hash
	h[0] = n
	return &h
}

func TestStepNext(t *testing.T) {
	next, newRound := StepPropose.Next()
	assert.Equal(t, StepPrevote, next)
	assert.False(t, newRound)

	next, newRound = StepPrevote.Next()
	assert.Equal(t, StepPrecommit, next)
	assert.False(t, newRound)

	next, newRound = StepPrecommit.Next()
	assert.Equal(t, StepPropose, next)
	assert.True(t, newRound)

	next, newRound = StepCommit.Next()
	assert.Equal(t, StepPropose, next)
	assert.True(t, newRound)
}

func TestStepValid(t *testing.T) {
	for _, s := range []Step{StepPropose, StepPrevote, StepPrecommit, StepCommit} {
		assert.True(t, s.Valid(), s.String())
	}
	assert.False(t, Step(4).Valid())
	assert.False(t, Step(255).Valid())
}

func TestMessageCompareOrder(t *testing.T) {
	// Messages listed in their expected total order: height first, then
	// round, then step rank, then block hash with absent sorting first,
	// then signature bytes.
	ordered := []ConsensusMessage{
		{Height: 1, Round: 0, Step: StepPrecommit, BlockHash: hashN(9), Signature: sigN(9)},
		{Height: 2, Round: 0, Step: StepPropose, Signature: sigN(1)},
		{Height: 2, Round: 0, Step: StepPropose, BlockHash: hashN(1), Signature: sigN(1)},
		{Height: 2, Round: 0, Step: StepPropose, BlockHash: hashN(2), Signature: sigN(1)},
		{Height: 2, Round: 0, Step: StepPropose, BlockHash: hashN(2), Signature: sigN(2)},
		{Height: 2, Round: 0, Step: StepPrevote, BlockHash: hashN(1), Signature: sigN(1)},
		{Height: 2, Round: 0, Step: StepPrecommit, Signature: sigN(1)},
		{Height: 2, Round: 1, Step: StepPropose, Signature: sigN(1)},
		{Height: 3, Round: 0, Step: StepPropose, Signature: sigN(1)},
	}

	for i := range ordered {
		for j := range ordered {
			c := ordered[i].Compare(ordered[j])
			switch {
			case i < j:
				assert.Equal(t, -1, c, "expected %v < %v", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, c, "expected %v > %v", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, c)
			}
		}
	}
}

func TestMessageCompareSortStable(t *testing.T) {
	msgs := []ConsensusMessage{
		{Height: 5, Round: 1, Step: StepPrecommit, BlockHash: hashN(3), Signature: sigN(3)},
		{Height: 5, Round: 0, Step: StepPropose, BlockHash: hashN(1), Signature: sigN(1)},
		{Height: 4, Round: 2, Step: StepPrevote, Signature: sigN(2)},
		{Height: 5, Round: 0, Step: StepPropose, Signature: sigN(4)},
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Compare(msgs[j]) < 0 })

	assert.Equal(t, Height(4), msgs[0].Height)
	assert.Equal(t, Height(5), msgs[1].Height)
	assert.Nil(t, msgs[1].BlockHash, "absent hash sorts before present")
	assert.NotNil(t, msgs[2].BlockHash)
	assert.Equal(t, Round(1), msgs[3].Round)
}

func TestMessageRoundTrip(t *testing.T) {
	msg := ConsensusMessage{
		Height:    42,
		Round:     3,
		Step:      StepPrecommit,
		BlockHash: hashN(7),
		Signature: sigN(5),
	}

	data, err := msg.Marshal()
	require.NoError(t, err)

	var got ConsensusMessage
	require.NoError(t, got.Unmarshal(data))
	assert.Equal(t, msg, got)

	// Nil block hash survives the trip as nil.
	msg.BlockHash = nil
	data, err = msg.Marshal()
	require.NoError(t, err)
	got = ConsensusMessage{}
	require.NoError(t, got.Unmarshal(data))
	assert.Nil(t, got.BlockHash)
}

func TestSignDigest(t *testing.T) {
	msg := ConsensusMessage{Height: 7, Round: 1, Step: StepPrevote, BlockHash: hashN(9)}

	d1, err := msg.SignDigest("chain-a")
	require.NoError(t, err)

	// The digest ignores the signature field.
	signed := msg
	signed.Signature = sigN(200)
	d2, err := signed.SignDigest("chain-a")
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	// Different chain IDs produce different digests.
	d3, err := msg.SignDigest("chain-b")
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)

	// So does any coordinate change.
	other := msg
	other.Round = 2
	d4, err := other.SignDigest("chain-a")
	require.NoError(t, err)
	assert.NotEqual(t, d1, d4)
}

func TestMessageAlignment(t *testing.T) {
	msg := ConsensusMessage{Height: 10, Round: 2, Step: StepPrecommit, BlockHash: hashN(1)}

	assert.True(t, msg.IsAligned(10, 2, hashN(1)))
	assert.False(t, msg.IsAligned(10, 2, hashN(2)))
	assert.False(t, msg.IsAligned(10, 2, nil))
	assert.False(t, msg.IsAligned(10, 3, hashN(1)))

	assert.True(t, msg.IsRound(10, 2))
	assert.False(t, msg.IsRound(10, 1))
	assert.False(t, msg.IsRound(11, 2))
}
