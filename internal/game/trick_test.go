package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWinnerOffsetTrumpOvertakes(t *testing.T) {
	// Diamonds led, spades trump: the low trump beats both diamond
	// honours played after it.
	cards := []Card{
		MakeCard(Diamonds, RankTwo), // 2♦ led
		MakeCard(Diamonds, 11),      // K♦
		MakeCard(Spades, 1),         // 3♠
		MakeCard(Diamonds, RankAce), // A♦
	}
	assert.Equal(t, 2, WinnerOffset(cards, Spades))
}

func TestWinnerOffsetHigherTrumpWins(t *testing.T) {
	cards := []Card{
		MakeCard(Hearts, 5),
		MakeCard(Clubs, 1),  // 3♣ trump
		MakeCard(Clubs, 10), // Q♣ trump, higher
		MakeCard(Hearts, 12),
	}
	assert.Equal(t, 2, WinnerOffset(cards, Clubs))
}

func TestWinnerOffsetNoTrumpFollowsSuitLed(t *testing.T) {
	cards := []Card{
		MakeCard(Clubs, 3),
		MakeCard(Clubs, 9),
		MakeCard(Spades, 12), // off-suit ace is worthless
		MakeCard(Clubs, 7),
	}
	assert.Equal(t, 1, WinnerOffset(cards, NoTrump))
}

func TestWinnerOffsetLeadHoldsWhenUnbeaten(t *testing.T) {
	cards := []Card{
		MakeCard(Hearts, 12),
		MakeCard(Clubs, 12),
		MakeCard(Diamonds, 12),
	}
	assert.Equal(t, 0, WinnerOffset(cards, NoTrump))
}

func TestWinnerOffsetTrumpLed(t *testing.T) {
	cards := []Card{
		MakeCard(Spades, 8),
		MakeCard(Spades, 2),
		MakeCard(Hearts, 12),
		MakeCard(Spades, 10),
	}
	assert.Equal(t, 3, WinnerOffset(cards, Spades))
}

func TestTwosInTrick(t *testing.T) {
	cards := []Card{
		MakeCard(Clubs, RankTwo),
		MakeCard(Hearts, RankTwo),
		MakeCard(Spades, 5),
	}
	assert.Equal(t, 2, TwosInTrick(cards))
	assert.Equal(t, 0, TwosInTrick([]Card{MakeCard(Clubs, 3)}))
}
