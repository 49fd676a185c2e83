// Package gameconn owns the game-server transport lifecycle for one
// session: connect, heartbeat, server migration, credential swap,
// reconnect with backoff, and clean shutdown. Decoded frames and state
// changes are delivered in arrival order on a single events channel, so
// the consuming session loop sees a strictly ordered stream.
package gameconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"roulette-pilot/internal/protocol"
)

var ErrNotConnected = errors.New("not_connected")

// State of the supervised connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Migrating
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Migrating:
		return "migrating"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	KindFrame EventKind = iota
	KindState
)

// Event is one entry on the session's ordered event stream: either a
// decoded protocol frame or a connection state change.
type Event struct {
	Kind  EventKind
	Frame protocol.Event
	State State
	Err   string
}

type Config struct {
	URL                  string
	DialTimeout          time.Duration
	HeartbeatInterval    time.Duration
	PongSoftLimit        time.Duration
	PongHardLimit        time.Duration
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	MaxReconnectAttempts int
	SendRate             rate.Limit
	SendBurst            int
}

func (c *Config) withDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.PongSoftLimit <= 0 {
		c.PongSoftLimit = 60 * time.Second
	}
	if c.PongHardLimit <= 0 {
		c.PongHardLimit = 120 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.SendRate <= 0 {
		c.SendRate = 10
	}
	if c.SendBurst <= 0 {
		c.SendBurst = 20
	}
}

// Supervisor drives one session's transport. Run owns all state
// transitions; Send, Swap and Stop may be called from other goroutines.
type Supervisor struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	state    State
	url      string
	conn     *conn
	attempts int
	lastPong time.Time
	lastErr  string

	stopOnce sync.Once
	stopCh   chan struct{}
	swapCh   chan string
	events   chan<- Event
}

func NewSupervisor(cfg Config, logger zerolog.Logger) *Supervisor {
	cfg.withDefaults()
	return &Supervisor{
		cfg:    cfg,
		log:    logger,
		url:    cfg.URL,
		stopCh: make(chan struct{}),
		swapCh: make(chan string, 1),
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Supervisor) lastPongAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong
}

// Send delivers one frame over the current transport. Refused unless the
// connection is open.
func (s *Supervisor) Send(ctx context.Context, frame string) error {
	s.mu.Lock()
	c, st := s.conn, s.state
	s.mu.Unlock()
	if st != Open || c == nil {
		return ErrNotConnected
	}
	return c.send(ctx, frame)
}

// Swap replaces the transport with a connection to the given address,
// closing the old one with an intentional code. Used by credential
// renewal; betting state is untouched because it lives in the session.
func (s *Supervisor) Swap(url string) error {
	if s.State() != Open {
		return ErrNotConnected
	}
	select {
	case s.swapCh <- url:
		return nil
	default:
		return errors.New("swap_in_progress")
	}
}

// Stop shuts the connection down with an intentional close code. Run
// returns shortly after; no reconnect is attempted.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type outcomeKind int

const (
	outcomeStop outcomeKind = iota
	outcomeSwap
	outcomeMigrate
	outcomeError
)

type serveOutcome struct {
	kind outcomeKind
	url  string
	err  error
}

// Run drives the connection until Stop is called, the context ends, or
// the reconnect budget is exhausted. State changes and decoded frames go
// to events.
func (s *Supervisor) Run(ctx context.Context, events chan<- Event) {
	s.mu.Lock()
	s.events = events
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			s.setState(Disconnected, "")
			return
		case <-s.stopCh:
			s.setState(Disconnected, "")
			return
		default:
		}

		if s.State() != Migrating {
			s.setState(Connecting, "")
		}
		url := s.currentURL()
		c, err := dialConn(ctx, url, s.cfg.DialTimeout, rate.NewLimiter(s.cfg.SendRate, s.cfg.SendBurst))
		if err != nil {
			s.log.Warn().Err(err).Str("url", url).Msg("dial failed")
			if !s.backoffOrFail(ctx, err) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = c
		s.attempts = 0
		s.lastPong = time.Now()
		s.mu.Unlock()
		s.setState(Open, "")
		s.log.Info().Str("conn_id", c.id).Str("url", url).Msg("connection open")

		out := s.serve(ctx, c)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		switch out.kind {
		case outcomeStop:
			s.setState(Disconnected, "")
			return
		case outcomeMigrate:
			s.log.Info().Str("new_url", out.url).Msg("server migration")
			s.setURL(out.url)
			s.setState(Migrating, "")
		case outcomeSwap:
			s.setURL(out.url)
			s.setState(Migrating, "")
		case outcomeError:
			s.log.Warn().Err(out.err).Msg("connection lost")
			if !s.backoffOrFail(ctx, out.err) {
				return
			}
		}
	}
}

// serve pumps one open connection: heartbeats out, frames in. It returns
// when the connection must be replaced or the supervisor stops.
func (s *Supervisor) serve(ctx context.Context, c *conn) serveOutcome {
	hb := time.NewTicker(s.cfg.HeartbeatInterval)
	defer hb.Stop()

	// First ping goes out as soon as the connection opens.
	s.sendPing(ctx, c)
	degraded := false

	for {
		select {
		case <-ctx.Done():
			c.close(CloseIntentional, "shutdown")
			return serveOutcome{kind: outcomeStop}
		case <-s.stopCh:
			c.close(CloseIntentional, "stop")
			return serveOutcome{kind: outcomeStop}
		case url := <-s.swapCh:
			c.close(CloseIntentional, "credential renewal")
			return serveOutcome{kind: outcomeSwap, url: url}
		case <-hb.C:
			since := time.Since(s.lastPongAt())
			if since > s.cfg.PongHardLimit {
				s.log.Error().Dur("since_pong", since).Msg("pong hard limit exceeded, forcing reconnect")
				c.close(CloseForced, "heartbeat timeout")
				return serveOutcome{kind: outcomeError, err: errors.New("heartbeat_timeout")}
			}
			if since > s.cfg.PongSoftLimit {
				if !degraded {
					degraded = true
					s.log.Warn().Dur("since_pong", since).Msg("connection degraded")
				}
			} else {
				degraded = false
			}
			s.sendPing(ctx, c)
		case err := <-c.errCh:
			c.close(CloseForced, "read error")
			return serveOutcome{kind: outcomeError, err: err}
		case frame := <-c.readCh:
			switch ev := protocol.Parse(frame).(type) {
			case protocol.ServerSwitch:
				c.close(CloseIntentional, "server switch")
				return serveOutcome{kind: outcomeMigrate, url: ev.WSAddress}
			case protocol.Pong:
				s.mu.Lock()
				s.lastPong = time.Now()
				s.mu.Unlock()
				s.deliver(Event{Kind: KindFrame, Frame: ev})
			case protocol.Unrecognized:
				s.log.Debug().Str("frame", ev.Frame).Msg("unrecognized frame dropped")
			default:
				s.deliver(Event{Kind: KindFrame, Frame: ev})
			}
		}
	}
}

// backoffOrFail waits out the reconnect delay. It returns false once the
// attempt budget is exhausted or the supervisor is stopping.
func (s *Supervisor) backoffOrFail(ctx context.Context, cause error) bool {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if attempt > s.cfg.MaxReconnectAttempts {
		s.setState(Failed, cause.Error())
		s.log.Error().Err(cause).Int("attempts", attempt-1).Msg("reconnect attempts exhausted")
		return false
	}
	delay := BackoffDelay(s.cfg.BackoffInitial, s.cfg.BackoffMax, attempt)
	s.setState(Reconnecting, cause.Error())
	s.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		s.setState(Disconnected, "")
		return false
	case <-ctx.Done():
		s.setState(Disconnected, "")
		return false
	}
}

// BackoffDelay is the doubling, capped reconnect delay for the given
// attempt (1-based).
func BackoffDelay(initial, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (s *Supervisor) sendPing(ctx context.Context, c *conn) {
	if err := c.send(ctx, protocol.EncodePing(time.Now().UnixMilli())); err != nil {
		s.log.Warn().Err(err).Msg("ping send failed")
	}
}

func (s *Supervisor) setState(st State, errText string) {
	s.mu.Lock()
	s.state = st
	if errText != "" {
		s.lastErr = errText
	}
	events := s.events
	s.mu.Unlock()
	if events == nil {
		return
	}
	ev := Event{Kind: KindState, State: st, Err: errText}
	select {
	case events <- ev:
	case <-s.stopCh:
	}
}

func (s *Supervisor) deliver(ev Event) {
	s.mu.Lock()
	events := s.events
	s.mu.Unlock()
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-s.stopCh:
	}
}

func (s *Supervisor) currentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Supervisor) setURL(url string) {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
}
