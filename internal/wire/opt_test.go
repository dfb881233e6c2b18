package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptThreeWayEncoding(t *testing.T) {
	// Unset omitted, null explicit, value literal.
	d := ScoreDelta{Bid: Some(3), Made: Null[int]()}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bid":3,"made":null}`, string(data))
}

func TestOptThreeWayDecoding(t *testing.T) {
	var d ScoreDelta
	require.NoError(t, json.Unmarshal([]byte(`{"bid":3,"made":null}`), &d))

	bid, ok := d.Bid.Get()
	assert.True(t, ok)
	assert.Equal(t, 3, bid)

	assert.True(t, d.Made.IsNull())
	assert.False(t, d.Made.IsZero())
	_, ok = d.Made.Get()
	assert.False(t, ok)

	assert.True(t, d.Twos.IsZero(), "absent field must decode as unset")
	assert.False(t, d.Twos.IsNull())
}

func TestOptOr(t *testing.T) {
	assert.Equal(t, 5, Some(5).Or(9))
	assert.Equal(t, 9, Null[int]().Or(9))
	assert.Equal(t, 9, (Opt[int]{}).Or(9))
}

func TestOptRoundTripPreservesDistinction(t *testing.T) {
	orig := ScoreDelta{Bid: Some(0), Twos: Null[int]()}
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back ScoreDelta
	require.NoError(t, json.Unmarshal(data, &back))
	bid, ok := back.Bid.Get()
	assert.True(t, ok, "a zero value is still a value, not unset")
	assert.Equal(t, 0, bid)
	assert.True(t, back.Twos.IsNull())
	assert.True(t, back.Made.IsZero())
}
