// Package betting implements the staking state machine: it captures a
// color pattern from the recent outcome window and walks it with an
// escalating stake per level, one outstanding bet at a time.
package betting

import (
	"errors"
	"fmt"
	"time"

	"roulette-pilot/internal/history"
	"roulette-pilot/internal/roulette"
)

// PatternLength is the number of outcomes captured per pattern cycle and
// the number of stake levels walked through it.
const PatternLength = 5

// State of the operation. Transitions happen only on protocol events.
type State int

const (
	// Idle: no pattern armed, nothing outstanding.
	Idle State = iota
	// Armed: pattern captured, next open window places pattern[level].
	Armed
	// AwaitingResult: a bet is out for the current round.
	AwaitingResult
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case AwaitingResult:
		return "awaiting_result"
	default:
		return "unknown"
	}
}

var (
	ErrStakeCount     = fmt.Errorf("stake sequence must have %d amounts", PatternLength)
	ErrHistoryShort   = errors.New("history_not_full")
	ErrGreenInWindow  = errors.New("green_in_window")
	ErrBetOutstanding = errors.New("bet_outstanding")
)

// Stats are running totals for the session report. TotalBets always
// equals Wins+Losses: a bet is only counted once its result is evaluated.
type Stats struct {
	TotalBets int       `json:"total_bets"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Profit    float64   `json:"profit"`
	StartedAt time.Time `json:"started_at"`
}

// BetIntent is a bet the operation wants placed for an open window.
type BetIntent struct {
	RoundID string
	Color   roulette.Color
	Amount  float64
	Level   int
}

// Evaluation is the settled outcome of one placed bet.
type Evaluation struct {
	RoundID         string
	Expected        roulette.Color
	Got             roulette.Color
	Win             bool
	Amount          float64
	Level           int
	PatternComplete bool
}

// Operation is the per-session staking state machine. Not safe for
// concurrent use; the owning session loop serializes all calls.
type Operation struct {
	stakes   []float64
	state    State
	pattern  []roulette.Color
	level    int
	expected roulette.Color
	roundID  string
	stake    float64
	stats    Stats
}

func NewOperation(stakes []float64) (*Operation, error) {
	if len(stakes) != PatternLength {
		return nil, ErrStakeCount
	}
	for _, s := range stakes {
		if s <= 0 {
			return nil, fmt.Errorf("stake amounts must be positive, got %v", s)
		}
	}
	op := &Operation{stakes: make([]float64, PatternLength)}
	copy(op.stakes, stakes)
	return op, nil
}

func (o *Operation) State() State { return o.state }

// Active reports whether a pattern is armed or a bet is outstanding.
func (o *Operation) Active() bool { return o.state != Idle }

// Waiting reports whether a bet has been sent and not yet evaluated.
func (o *Operation) Waiting() bool { return o.state == AwaitingResult }

// OutstandingRound returns the round id of the pending bet, if any.
func (o *Operation) OutstandingRound() string { return o.roundID }

// Arm captures a fresh pattern from the outcome window, oldest to newest,
// and resets the level walk. Green never counts as a pattern-matching
// color, so a window containing a zero cannot arm. Arming while a bet is
// outstanding is refused: the pending round must settle first.
func (o *Operation) Arm(snapshot []history.Outcome) error {
	if o.state == AwaitingResult {
		return ErrBetOutstanding
	}
	if len(snapshot) < PatternLength {
		return ErrHistoryShort
	}
	window := snapshot[len(snapshot)-PatternLength:]
	pattern := make([]roulette.Color, PatternLength)
	for i, out := range window {
		if out.Color == roulette.Green {
			return ErrGreenInWindow
		}
		pattern[i] = out.Color
	}
	o.pattern = pattern
	o.level = 0
	o.state = Armed
	if o.stats.StartedAt.IsZero() {
		o.stats.StartedAt = time.Now()
	}
	return nil
}

// WindowOpened returns the bet to place for a newly opened window. It
// returns false while idle or while a bet is already outstanding, which
// is what enforces the no-double-bet invariant.
func (o *Operation) WindowOpened(roundID string) (BetIntent, bool) {
	if o.state != Armed {
		return BetIntent{}, false
	}
	return BetIntent{
		RoundID: roundID,
		Color:   o.pattern[o.level],
		Amount:  o.stakes[o.level],
		Level:   o.level,
	}, true
}

// MarkPlaced records that the intent was actually sent. Until the result
// is evaluated no further bet can be produced.
func (o *Operation) MarkPlaced(intent BetIntent) {
	o.state = AwaitingResult
	o.roundID = intent.RoundID
	o.expected = intent.Color
	o.stake = intent.Amount
}

// Evaluate settles the outstanding bet against the drawn color. Zero is
// always a loss, even though zero can never be the expected color. The
// second return is false when no bet is outstanding; the caller logs that
// as an invariant violation and ignores the result.
func (o *Operation) Evaluate(got roulette.Color) (Evaluation, bool) {
	if o.state != AwaitingResult {
		return Evaluation{}, false
	}
	win := got == o.expected && got != roulette.Green
	ev := Evaluation{
		RoundID:  o.roundID,
		Expected: o.expected,
		Got:      got,
		Win:      win,
		Amount:   o.stake,
		Level:    o.level,
	}
	o.stats.TotalBets++
	o.roundID = ""
	o.stake = 0
	o.expected = ""
	if win {
		o.stats.Wins++
		o.stats.Profit += ev.Amount
		o.level++
		if o.level == PatternLength {
			ev.PatternComplete = true
			o.reset()
			return ev, true
		}
		o.state = Armed
		return ev, true
	}
	o.stats.Losses++
	o.stats.Profit -= ev.Amount
	o.reset()
	return ev, true
}

// Deactivate forces the operation idle, dropping any armed pattern and
// any outstanding-bet bookkeeping. Stats are kept.
func (o *Operation) Deactivate() {
	o.roundID = ""
	o.stake = 0
	o.expected = ""
	o.reset()
}

func (o *Operation) reset() {
	o.pattern = nil
	o.level = 0
	o.state = Idle
}

func (o *Operation) Stats() Stats { return o.stats }

func (o *Operation) ResetStats() {
	o.stats = Stats{}
	if o.state != Idle {
		o.stats.StartedAt = time.Now()
	}
}

// Snapshot is a read-only view for the status surface.
type Snapshot struct {
	State   string           `json:"state"`
	Active  bool             `json:"active"`
	Waiting bool             `json:"waiting_for_result"`
	Pattern []roulette.Color `json:"pattern,omitempty"`
	Level   int              `json:"level"`
	RoundID string           `json:"round_id,omitempty"`
	Stats   Stats            `json:"stats"`
}

func (o *Operation) Snapshot() Snapshot {
	pattern := make([]roulette.Color, len(o.pattern))
	copy(pattern, o.pattern)
	return Snapshot{
		State:   o.state.String(),
		Active:  o.Active(),
		Waiting: o.Waiting(),
		Pattern: pattern,
		Level:   o.level,
		RoundID: o.roundID,
		Stats:   o.stats,
	}
}
