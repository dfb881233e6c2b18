package game

import "math/rand"

// NewDeal shuffles a full pack and deals handSize cards to each of seats
// hands. Hands are returned as compact card identifiers in the wire
// encoding (seat → card ids), sorted within each hand for stable display.
func NewDeal(r *rand.Rand, seats, handSize int) [][]int {
	pack := make([]int, DeckSize)
	for i := range pack {
		pack[i] = i
	}
	r.Shuffle(len(pack), func(i, j int) {
		pack[i], pack[j] = pack[j], pack[i]
	})

	deal := make([][]int, seats)
	next := 0
	for seat := range deal {
		hand := make([]int, handSize)
		copy(hand, pack[next:next+handSize])
		sortHand(hand)
		deal[seat] = hand
		next += handSize
	}
	return deal
}

// sortHand orders a hand by suit then descending rank.
func sortHand(hand []int) {
	for i := 1; i < len(hand); i++ {
		for j := i; j > 0 && handLess(hand[j], hand[j-1]); j-- {
			hand[j], hand[j-1] = hand[j-1], hand[j]
		}
	}
}

func handLess(a, b int) bool {
	ca, cb := Card(a), Card(b)
	if ca.Suit() != cb.Suit() {
		return ca.Suit() < cb.Suit()
	}
	return ca.Rank() > cb.Rank()
}
