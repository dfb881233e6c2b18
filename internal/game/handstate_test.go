package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleTrickDeal() [][]int {
	return [][]int{
		{int(MakeCard(Diamonds, RankTwo))},
		{int(MakeCard(Diamonds, 11))},
		{int(MakeCard(Spades, 1))},
		{int(MakeCard(Diamonds, RankAce))},
	}
}

func TestHandStatePlaysOneTrick(t *testing.T) {
	h := NewHandState(1, Spades, true, singleTrickDeal(), 0)
	assert.Equal(t, 0, h.ToPlay())

	for seat := 0; seat < 4; seat++ {
		require.NoError(t, h.PlayCard(singleTrickDeal()[seat][0]))
	}

	// Seat 2 trumped the diamond lead.
	assert.Equal(t, []int{0, 0, 1, 0}, h.Made)
	assert.Equal(t, []int{0, 0, 1, 0}, h.Twos, "the two led earns the winner a bonus")
	assert.Equal(t, 2, h.ToLead, "the winner leads the next trick")
	assert.Equal(t, 0, h.LastToLead)
	assert.Len(t, h.LastCards, 4)
	assert.True(t, h.Complete())
}

func TestHandStateMultipleTricks(t *testing.T) {
	deal := [][]int{
		{int(MakeCard(Clubs, 3)), int(MakeCard(Hearts, 5))},
		{int(MakeCard(Clubs, 9)), int(MakeCard(Hearts, 2))},
	}
	h := NewHandState(2, NoTrump, false, deal, 1)

	// Seat 1 leads 9-of-clubs equivalent and holds the trick.
	require.NoError(t, h.PlayCard(deal[1][0]))
	require.NoError(t, h.PlayCard(deal[0][0]))
	assert.Equal(t, []int{0, 1}, h.Made)
	assert.Equal(t, 1, h.ToLead)
	assert.Equal(t, 2, h.Trick)
	assert.False(t, h.Complete())

	require.NoError(t, h.PlayCard(deal[1][1]))
	require.NoError(t, h.PlayCard(deal[0][1]))
	assert.Equal(t, []int{1, 1}, h.Made)
	assert.True(t, h.Complete())
}

func TestHandStateRejectsCardNotHeld(t *testing.T) {
	h := NewHandState(1, NoTrump, false, singleTrickDeal(), 0)
	err := h.PlayCard(int(MakeCard(Clubs, 5)))
	assert.Error(t, err)
	assert.Empty(t, h.TrickCards)
}

func TestHandStateMessageRoundTrip(t *testing.T) {
	h := NewHandState(3, Hearts, true, singleTrickDeal(), 1)
	require.NoError(t, h.PlayCard(singleTrickDeal()[1][0]))

	rebuilt := HandStateFromMsg(h.Message(), Hearts, true)
	assert.Equal(t, h.Round, rebuilt.Round)
	assert.Equal(t, h.Trick, rebuilt.Trick)
	assert.Equal(t, h.TrickCards, rebuilt.TrickCards)
	assert.Equal(t, h.ToPlay(), rebuilt.ToPlay())
	assert.Equal(t, -1, rebuilt.LastToLead, "no trick completed yet")
}
