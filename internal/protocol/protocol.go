// Package protocol translates the game server's tag-based text frames to
// and from typed events. It holds no state; classification and encoding
// are pure functions, and anything the classifier does not recognize is
// returned as Unrecognized for the caller to log and drop.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Event is one decoded incoming frame.
type Event interface{ event() }

// Pong answers an outgoing ping.
type Pong struct {
	Time string
	Seq  string
}

// ServerSwitch tells the client to reconnect to a different game server.
type ServerSwitch struct {
	GameServer string
	WSAddress  string
}

// BetsOpen opens the betting window for a round.
type BetsOpen struct {
	RoundID string
	Table   string
	Seq     string
}

// BetsClosed closes the betting window. The server emits it under two
// different tag names; both map here.
type BetsClosed struct{}

// CommandAck acknowledges a previously sent command.
type CommandAck struct {
	Status  string
	Channel string
}

// Result carries the drawn number for the round that just ended.
type Result struct {
	Number int
}

// Unrecognized wraps a frame the classifier could not place.
type Unrecognized struct {
	Frame string
}

func (Pong) event()         {}
func (ServerSwitch) event() {}
func (BetsOpen) event()     {}
func (BetsClosed) event()   {}
func (CommandAck) event()   {}
func (Result) event()       {}
func (Unrecognized) event() {}

// Failed reports whether an ack status means the server refused the command.
func (a CommandAck) Failed() bool {
	switch strings.ToLower(a.Status) {
	case "error", "fail", "denied":
		return true
	}
	return false
}

// Parse classifies a raw frame. The switch notice is checked before every
// other frame type: it requires transport replacement, not in-place
// handling, so it must never be shadowed by a lookalike tag.
func Parse(frame string) Event {
	switch {
	case strings.Contains(frame, "<switch"):
		return ServerSwitch{
			GameServer: attr(frame, "gameServer"),
			WSAddress:  attr(frame, "wsAddress"),
		}
	case strings.Contains(frame, "<pong"):
		return Pong{Time: attr(frame, "time"), Seq: attr(frame, "seq")}
	case strings.Contains(frame, "<betsopen"):
		return BetsOpen{
			RoundID: attr(frame, "game"),
			Table:   attr(frame, "table"),
			Seq:     attr(frame, "seq"),
		}
	case strings.Contains(frame, "<betsclose"):
		// Matches both <betsclosed/> and <betsclose/>.
		return BetsClosed{}
	case strings.Contains(frame, "<command"):
		return CommandAck{Status: attr(frame, "status"), Channel: attr(frame, "channel")}
	case strings.Contains(frame, "result"):
		// Matches both <result .../> and <gameresult .../>.
		n, err := strconv.Atoi(strings.TrimSpace(attr(frame, "score")))
		if err != nil {
			return Unrecognized{Frame: frame}
		}
		return Result{Number: n}
	default:
		return Unrecognized{Frame: frame}
	}
}

// attr extracts a quoted attribute value by substring scan. Frames are not
// well-formed XML, so an XML decoder is not an option here.
func attr(frame, name string) string {
	for _, quote := range []string{`="`, `='`} {
		key := name + quote
		i := strings.Index(frame, key)
		if i < 0 {
			continue
		}
		rest := frame[i+len(key):]
		if j := strings.Index(rest, quote[1:]); j >= 0 {
			return rest[:j]
		}
	}
	return ""
}

// PlaceBet is an outgoing color bet for one round.
type PlaceBet struct {
	RoundID        string
	Table          string
	RemoteUserID   string
	Amount         float64
	BetCode        string
	IdempotencyKey string
}

// EncodePing serializes a liveness ping carrying a millisecond timestamp.
func EncodePing(unixMilli int64) string {
	return fmt.Sprintf("<ping time='%d'/>", unixMilli)
}

// EncodePlaceBet serializes a bet command in the exact tag structure the
// game server expects.
func EncodePlaceBet(b PlaceBet) string {
	return fmt.Sprintf(
		`<command channel="table-%s"><lpbet gm="roulette_desktop" gId="%s" uId="%s" ck="%s"><bet amt="%s" bc="%s" ck="%s"/></lpbet></command>`,
		b.Table, b.RoundID, b.RemoteUserID, b.IdempotencyKey,
		strconv.FormatFloat(b.Amount, 'f', -1, 64), b.BetCode, b.IdempotencyKey,
	)
}
