package game

// Settings is the deck/round configuration and scoring rule toggles for
// one game. Authored by the host, applied verbatim by followers.
type Settings struct {
	CardsInRound []int `json:"cards"`  // cards dealt per round, in round order
	BonusTwos    bool  `json:"bonus2"` // bonus for winning a trick containing a two
}

// trump rotation: clubs, diamonds, hearts, spades, no-trump, repeating.
var trumpRotation = [...]Suit{Clubs, Diamonds, Hearts, Spades, NoTrump}

// DefaultSettings is the classic contract plan: 13 cards down to 1 and
// back up to 13, with the twos bonus on.
func DefaultSettings() Settings {
	return Settings{CardsInRound: RoundPlan(13, 1, true), BonusTwos: true}
}

// RoundPlan builds a cards-per-round plan running from 'from' to 'to';
// with bounce it then runs back to 'from' without repeating the turn
// round.
func RoundPlan(from, to int, bounce bool) []int {
	step := -1
	if to > from {
		step = 1
	}
	var plan []int
	for n := from; n != to+step; n += step {
		plan = append(plan, n)
	}
	if bounce {
		for n := to - step; n != from-step; n -= step {
			plan = append(plan, n)
		}
	}
	return plan
}

// Rounds is the number of rounds in the game.
func (s Settings) Rounds() int { return len(s.CardsInRound) }

// CardsInRoundN returns the hand size for a 1-based round number.
func (s Settings) CardsInRoundN(round int) int {
	return s.CardsInRound[round-1]
}

// Trump returns the designated trump suit for a 1-based round number.
// The rotation is fixed so every device derives the same suit.
func (s Settings) Trump(round int) Suit {
	return trumpRotation[(round-1)%len(trumpRotation)]
}
