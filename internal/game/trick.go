package game

// WinnerOffset returns the offset from the lead of the card that wins
// the trick. cards[0] is the card led.
//
// The rule must be identical on the host and on any client that locally
// previews outcomes: iterate the cards in play order from the lead;
// track the highest rank of the suit led (absent trump) and the highest
// trump rank. A later card overtakes only if it is a strictly higher
// trump, or (no trump yet played) a strictly higher card of the suit
// led. Ranks are unique per suit within a deal, so a tie is
// structurally impossible.
func WinnerOffset(cards []Card, trump Suit) int {
	if len(cards) == 0 {
		return 0
	}
	led := cards[0].Suit()
	best := 0
	trumped := trump != NoTrump && cards[0].Suit() == trump
	for i, c := range cards[1:] {
		switch {
		case trump != NoTrump && c.Suit() == trump:
			if !trumped || c.Rank() > cards[best].Rank() {
				best = i + 1
				trumped = true
			}
		case !trumped && c.Suit() == led:
			if c.Rank() > cards[best].Rank() {
				best = i + 1
			}
		}
	}
	return best
}

// TwosInTrick counts the twos contained in a trick; the winner's bonus
// tally grows by this count when the bonus setting is on.
func TwosInTrick(cards []Card) int {
	n := 0
	for _, c := range cards {
		if c.Rank() == RankTwo {
			n++
		}
	}
	return n
}
