package roulette

// Color of a roulette pocket. Zero is green; every other pocket is red or
// black according to the standard European wheel layout.
type Color string

const (
	Red   Color = "red"
	Black Color = "black"
	Green Color = "green"
)

// Wire bet codes the game server expects for the two even-money color bets.
const (
	betCodeRed   = "48"
	betCodeBlack = "49"
)

var redNumbers = map[int]struct{}{
	1: {}, 3: {}, 5: {}, 7: {}, 9: {}, 12: {}, 14: {}, 16: {}, 18: {},
	19: {}, 21: {}, 23: {}, 25: {}, 27: {}, 30: {}, 32: {}, 34: {}, 36: {},
}

// ColorOf maps a drawn number to its pocket color.
func ColorOf(number int) Color {
	if number == 0 {
		return Green
	}
	if _, ok := redNumbers[number]; ok {
		return Red
	}
	return Black
}

// BetCode returns the wire code for a color bet. Green is not a placeable
// color, so it has no code.
func BetCode(c Color) (string, bool) {
	switch c {
	case Red:
		return betCodeRed, true
	case Black:
		return betCodeBlack, true
	default:
		return "", false
	}
}
