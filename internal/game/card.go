package game

import "fmt"

// Card is a compact card identifier in 0..51: suit = id/13, rank = id%13
// with two low and ace high. Ranks are unique per suit within a deal, so
// trick comparison never ties.
type Card int

// Suit of a card, or the trump designation for a round. NoTrump is only
// valid as a round's trump.
type Suit int

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
	NoTrump
)

const (
	// RankTwo is the rank that earns the bonus when won in a trick.
	RankTwo = 0
	// RankAce is the highest rank.
	RankAce = 12

	// DeckSize is the number of cards in the pack.
	DeckSize = 52
)

var suitSymbols = [...]string{"♣", "♦", "♥", "♠", "NT"}
var rankNames = [...]string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// MakeCard builds a card id from suit and rank.
func MakeCard(s Suit, rank int) Card { return Card(int(s)*13 + rank) }

func (c Card) Suit() Suit { return Suit(int(c) / 13) }
func (c Card) Rank() int  { return int(c) % 13 }

// Valid reports whether the id is in the pack.
func (c Card) Valid() bool { return c >= 0 && c < DeckSize }

func (c Card) String() string {
	if !c.Valid() {
		return fmt.Sprintf("card(%d)", int(c))
	}
	return rankNames[c.Rank()] + suitSymbols[c.Suit()]
}

func (s Suit) String() string {
	if s < Clubs || s > NoTrump {
		return fmt.Sprintf("suit(%d)", int(s))
	}
	return suitSymbols[s]
}
