package game

import (
	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/wire"
)

// ScoreCell is one seat/round entry on the scorepad. A field left unset
// has never been entered; clearing a field returns it to unset.
type ScoreCell struct {
	Bid  wire.Opt[int]
	Made wire.Opt[int]
	Twos wire.Opt[int]
}

// Scorepad is the score ledger: bid/made/twos per round per seat.
// Authored only by the host; followers apply host deltas.
type Scorepad struct {
	Rounds    int
	BonusTwos bool
	cells     [][]ScoreCell // [seat][round-1]
}

// NewScorepad creates an empty ledger for seats players over rounds
// rounds.
func NewScorepad(seats, rounds int, bonusTwos bool) *Scorepad {
	cells := make([][]ScoreCell, seats)
	for i := range cells {
		cells[i] = make([]ScoreCell, rounds)
	}
	return &Scorepad{Rounds: rounds, BonusTwos: bonusTwos, cells: cells}
}

// Seats is the number of players on the pad.
func (p *Scorepad) Seats() int { return len(p.cells) }

// Cell returns the entry for a seat and 1-based round.
func (p *Scorepad) Cell(seat, round int) ScoreCell {
	return p.cells[seat][round-1]
}

// Apply merges one delta into a cell. An unset field leaves the entry
// untouched; a null field clears it.
func (p *Scorepad) Apply(seat, round int, d wire.ScoreDelta) {
	cell := &p.cells[seat][round-1]
	applyField(&cell.Bid, d.Bid)
	applyField(&cell.Made, d.Made)
	applyField(&cell.Twos, d.Twos)
}

func applyField(dst *wire.Opt[int], src wire.Opt[int]) {
	if src.IsZero() {
		return
	}
	if src.IsNull() {
		*dst = wire.Opt[int]{}
		return
	}
	*dst = src
}

// Delta builds the wire delta reproducing a cell exactly, with absent
// fields for values that were never entered.
func (p *Scorepad) Delta(seat, round int) wire.ScoreDelta {
	cell := p.cells[seat][round-1]
	return wire.ScoreDelta{Bid: cell.Bid, Made: cell.Made, Twos: cell.Twos}
}

// MaxEnteredRound is the highest 1-based round with any entry, or 0.
func (p *Scorepad) MaxEnteredRound() int {
	max := 0
	for seat := range p.cells {
		for r := p.Rounds; r > max; r-- {
			cell := p.cells[seat][r-1]
			if !cell.Bid.IsZero() || !cell.Made.IsZero() || !cell.Twos.IsZero() {
				max = r
				break
			}
		}
	}
	return max
}

// Score totals a seat: one point per trick made, ten for making the
// contract exactly, ten per bonus two when the bonus rule is on.
func (p *Scorepad) Score(seat int) int {
	total := 0
	for r := 1; r <= p.Rounds; r++ {
		cell := p.cells[seat][r-1]
		made, ok := cell.Made.Get()
		if !ok {
			continue
		}
		total += made
		if bid, ok := cell.Bid.Get(); ok && bid == made {
			total += 10
		}
		if p.BonusTwos {
			total += 10 * cell.Twos.Or(0)
		}
	}
	return total
}

// AllScores builds the full-ledger message for rounds 1..MaxEnteredRound.
func (p *Scorepad) AllScores() *wire.ScoresMsg {
	msg := &wire.ScoresMsg{Scores: make(map[int]map[int]wire.ScoreDelta)}
	maxRound := p.MaxEnteredRound()
	for seat := range p.cells {
		for r := 1; r <= maxRound; r++ {
			d := p.Delta(seat, r)
			if d.Bid.IsZero() && d.Made.IsZero() && d.Twos.IsZero() {
				continue
			}
			if msg.Scores[seat] == nil {
				msg.Scores[seat] = make(map[int]wire.ScoreDelta)
			}
			msg.Scores[seat][r] = d
		}
	}
	return msg
}
