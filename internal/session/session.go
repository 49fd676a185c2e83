// Package session owns all per-user state of the automated operation:
// credentials, the supervised game connection, the outcome history, the
// staking state machine, and the renewal schedule. One event-loop
// goroutine per session applies connection events in arrival order;
// the exposed read surface takes consistent snapshots under the session
// lock the loop holds while applying an event.
package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"roulette-pilot/internal/auth"
	"roulette-pilot/internal/betting"
	"roulette-pilot/internal/config"
	"roulette-pilot/internal/gameconn"
	"roulette-pilot/internal/history"
	"roulette-pilot/internal/protocol"
	"roulette-pilot/internal/roulette"
)

// AuthFunc issues a fresh credential set for a subject. Satisfied by
// (*auth.Client).Authenticate.
type AuthFunc func(ctx context.Context, subject string) (auth.Credentials, error)

// transport is the slice of the connection supervisor the session loop
// needs. Kept as an interface so the betting flow is testable without a
// live game server.
type transport interface {
	Send(ctx context.Context, frame string) error
	Swap(url string) error
	Stop()
	State() gameconn.State
	LastError() string
}

type windowState struct {
	open      bool
	roundID   string
	table     string
	updatedAt time.Time
}

type ctrlKind int

const (
	ctrlStart ctrlKind = iota
	ctrlStop
	ctrlReset
)

type ctrlReq struct {
	kind  ctrlKind
	reply chan error
}

// Session is all state belonging to one user's automated operation.
type Session struct {
	userID string
	cfg    config.EngineConfig
	log    zerolog.Logger
	logs   *LogBuffer
	authFn AuthFunc
	sup    transport

	events chan gameconn.Event
	ctrl   chan ctrlReq
	renew  chan struct{}
	closed chan struct{}
	cancel context.CancelFunc

	mu            sync.RWMutex
	creds         auth.Credentials
	createdAt     time.Time
	hist          *history.History
	op            *betting.Operation
	window        windowState
	started       bool
	connState     gameconn.State
	lastErr       string
	renewAttempts int
	lastRenewal   time.Time
	renewTimer    *time.Timer
	terminalSince time.Time
}

func newSession(userID string, cfg config.EngineConfig, creds auth.Credentials, sup transport, authFn AuthFunc, logger zerolog.Logger) (*Session, error) {
	op, err := betting.NewOperation(cfg.Stakes)
	if err != nil {
		return nil, err
	}
	return &Session{
		userID:    userID,
		cfg:       cfg,
		log:       logger.With().Str("user_id", userID).Logger(),
		logs:      NewLogBuffer(cfg.LogBufferSize),
		authFn:    authFn,
		sup:       sup,
		events:    make(chan gameconn.Event, 64),
		ctrl:      make(chan ctrlReq),
		renew:     make(chan struct{}, 1),
		closed:    make(chan struct{}),
		creds:     creds,
		createdAt: time.Now(),
		hist:      history.New(betting.PatternLength),
		op:        op,
	}, nil
}

// run is the single-owner event loop. All mutation of the history, the
// betting operation and the window state happens here, in arrival order.
func (s *Session) run(ctx context.Context) {
	defer close(s.closed)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		case req := <-s.ctrl:
			req.reply <- s.handleCtrl(req.kind)
		case <-s.renew:
			s.renewCredentials(ctx)
		}
	}
}

func (s *Session) post(ctx context.Context, kind ctrlKind) error {
	req := ctrlReq{kind: kind, reply: make(chan error, 1)}
	select {
	case s.ctrl <- req:
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.closed:
		return ErrSessionClosed
	}
}

func (s *Session) handleCtrl(kind ctrlKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case ctrlStart:
		if s.started {
			return ErrOperationActive
		}
		s.started = true
		s.logf("operation start requested")
		if s.hist.Full() {
			s.armLocked()
		}
		return nil
	case ctrlStop:
		if !s.started && !s.op.Active() {
			return ErrOperationInactive
		}
		s.started = false
		s.op.Deactivate()
		s.cancelRenewalLocked()
		s.logf("operation stopped")
		return nil
	case ctrlReset:
		s.op.ResetStats()
		s.logf("report reset")
		return nil
	default:
		return nil
	}
}

func (s *Session) handleEvent(ctx context.Context, ev gameconn.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case gameconn.KindState:
		s.applyStateLocked(ev)
	case gameconn.KindFrame:
		s.applyFrameLocked(ctx, ev.Frame)
	}
}

func (s *Session) applyStateLocked(ev gameconn.Event) {
	s.connState = ev.State
	if ev.Err != "" {
		s.lastErr = ev.Err
	}
	switch ev.State {
	case gameconn.Open:
		s.terminalSince = time.Time{}
		s.logf("connection open")
	case gameconn.Migrating:
		s.window.open = false
		s.logf("switching game server")
	case gameconn.Reconnecting:
		s.window.open = false
		s.logf("connection lost, reconnecting: %s", ev.Err)
	case gameconn.Failed:
		s.window.open = false
		s.started = false
		s.op.Deactivate()
		s.cancelRenewalLocked()
		s.terminalSince = time.Now()
		s.logf("connection failed permanently: %s", ev.Err)
	case gameconn.Disconnected:
		s.window.open = false
		s.op.Deactivate()
		s.cancelRenewalLocked()
		s.terminalSince = time.Now()
	}
}

func (s *Session) applyFrameLocked(ctx context.Context, frame protocol.Event) {
	now := time.Now()
	switch f := frame.(type) {
	case protocol.BetsOpen:
		table := f.Table
		if table == "" {
			table = s.cfg.TableID
		}
		s.window = windowState{open: true, roundID: f.RoundID, table: table, updatedAt: now}
		if s.started && !s.op.Active() && s.hist.Full() {
			s.armLocked()
		}
		if intent, ok := s.op.WindowOpened(f.RoundID); ok {
			s.placeBetLocked(ctx, intent)
		}
	case protocol.BetsClosed:
		s.window.open = false
		s.window.updatedAt = now
		if !s.hist.Enabled() {
			s.hist.Enable()
			s.logf("round boundary observed, history collection enabled")
		}
	case protocol.Result:
		color := roulette.ColorOf(f.Number)
		if s.hist.RecordIfEnabled(history.Outcome{
			RoundID: s.window.roundID,
			Number:  f.Number,
			Color:   color,
			SeenAt:  now,
		}) {
			s.logf("result: %d (%s)", f.Number, color)
		}
		if ev, ok := s.op.Evaluate(color); ok {
			s.logEvaluationLocked(ev)
		} else if s.op.Active() {
			// Armed but nothing outstanding; nothing to settle.
			s.log.Debug().Int("number", f.Number).Msg("result with no outstanding bet")
		}
		if s.started && !s.op.Active() && s.hist.Full() {
			s.armLocked()
		}
	case protocol.CommandAck:
		if f.Failed() {
			s.lastErr = "bet_rejected:" + f.Status
			s.logf("bet command rejected (%s), scheduling credential renewal", f.Status)
			s.scheduleRenewalLocked(s.cfg.AckRenewDelay)
		}
	case protocol.Pong:
		// Liveness bookkeeping lives in the connection supervisor.
	}
}

func (s *Session) logEvaluationLocked(ev betting.Evaluation) {
	stats := s.op.Stats()
	if ev.Win {
		if ev.PatternComplete {
			s.logf("win: round=%s level=%d +%.2f, pattern complete (profit %.2f)", ev.RoundID, ev.Level, ev.Amount, stats.Profit)
		} else {
			s.logf("win: round=%s level=%d +%.2f (profit %.2f)", ev.RoundID, ev.Level, ev.Amount, stats.Profit)
		}
		return
	}
	if ev.Got == roulette.Green {
		s.logf("loss on zero: round=%s level=%d -%.2f (profit %.2f)", ev.RoundID, ev.Level, ev.Amount, stats.Profit)
		return
	}
	s.logf("loss: round=%s level=%d expected=%s got=%s -%.2f (profit %.2f)", ev.RoundID, ev.Level, ev.Expected, ev.Got, ev.Amount, stats.Profit)
}

func (s *Session) armLocked() {
	if err := s.op.Arm(s.hist.Snapshot()); err != nil {
		s.logf("pattern not armed: %v", err)
		return
	}
	pattern := s.op.Snapshot().Pattern
	parts := make([]string, len(pattern))
	for i, c := range pattern {
		parts[i] = string(c)
	}
	s.logf("pattern armed: %s", strings.Join(parts, ","))
	if s.renewTimer == nil {
		s.scheduleRenewalLocked(s.cfg.RenewInterval)
	}
}

func (s *Session) placeBetLocked(ctx context.Context, intent betting.BetIntent) {
	code, ok := roulette.BetCode(intent.Color)
	if !ok {
		return
	}
	frame := protocol.EncodePlaceBet(protocol.PlaceBet{
		RoundID:        intent.RoundID,
		Table:          s.window.table,
		RemoteUserID:   s.creds.PragmaticUserID,
		Amount:         intent.Amount,
		BetCode:        code,
		IdempotencyKey: newID(),
	})
	if err := s.sup.Send(ctx, frame); err != nil {
		s.lastErr = err.Error()
		s.logf("bet send failed: %v", err)
		return
	}
	s.op.MarkPlaced(intent)
	s.logf("bet placed: round=%s color=%s amount=%.2f level=%d", intent.RoundID, intent.Color, intent.Amount, intent.Level)
}

// scheduleRenewalLocked arms (or re-arms) the renewal timer. The pending
// signal is dropped if one is already queued; renewal itself reschedules.
func (s *Session) scheduleRenewalLocked(d time.Duration) {
	if s.renewTimer != nil {
		s.renewTimer.Stop()
	}
	s.renewTimer = time.AfterFunc(d, func() {
		select {
		case s.renew <- struct{}{}:
		default:
		}
	})
}

func (s *Session) cancelRenewalLocked() {
	if s.renewTimer != nil {
		s.renewTimer.Stop()
		s.renewTimer = nil
	}
}

// renewCredentials re-authenticates and hot-swaps the transport. Betting
// state is deliberately untouched: a pending round's id and stake live in
// the operation, so an in-flight bet survives the swap.
func (s *Session) renewCredentials(ctx context.Context) {
	creds, err := s.authFn(ctx, s.userID)
	if err != nil {
		s.mu.Lock()
		s.renewAttempts++
		attempts := s.renewAttempts
		s.lastErr = err.Error()
		if attempts >= s.cfg.RenewMaxAttempts {
			s.started = false
			s.op.Deactivate()
			s.cancelRenewalLocked()
			s.logf("credential renewal failed permanently after %d attempts: %v", attempts, err)
			s.mu.Unlock()
			return
		}
		s.logf("credential renewal failed (attempt %d/%d): %v", attempts, s.cfg.RenewMaxAttempts, err)
		s.scheduleRenewalLocked(s.cfg.RenewRetryDelay)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.creds = creds
	s.renewAttempts = 0
	s.lastRenewal = time.Now()
	target := gameURL(s.cfg.GameWSURL, s.cfg.TableID, creds)
	s.logf("credentials renewed, swapping connection")
	s.scheduleRenewalLocked(s.cfg.RenewInterval)
	s.mu.Unlock()

	if err := s.sup.Swap(target); err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.logf("connection swap failed: %v", err)
		s.mu.Unlock()
	}
}

func (s *Session) close() {
	s.cancel()
	s.sup.Stop()
	s.mu.Lock()
	s.cancelRenewalLocked()
	s.mu.Unlock()
}

func (s *Session) logf(format string, args ...any) {
	s.logs.Append(format, args...)
	s.log.Info().Msgf(format, args...)
}

// gameURL appends session affinity parameters to the game server address.
func gameURL(base, table string, creds auth.Credentials) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "JSESSIONID=" + url.QueryEscape(creds.JSessionID) + "&tableId=" + url.QueryEscape(table)
}

// Status is the read-only view the presentation layer polls.
type Status struct {
	UserID      string           `json:"user_id"`
	Connection  string           `json:"connection"`
	LastError   string           `json:"last_error,omitempty"`
	WindowOpen  bool             `json:"window_open"`
	RoundID     string           `json:"round_id,omitempty"`
	HistoryLen  int              `json:"history_len"`
	HistoryFull bool             `json:"history_full"`
	Requested   bool             `json:"operation_requested"`
	Operation   betting.Snapshot `json:"operation"`
	CanStart    bool             `json:"can_start"`
	CreatedAt   time.Time        `json:"created_at"`
	LastRenewal time.Time        `json:"last_renewal"`
	Logs        []string         `json:"logs"`
}

func (s *Session) status() Status {
	lines := s.logs.Lines()
	s.mu.RLock()
	defer s.mu.RUnlock()
	op := s.op.Snapshot()
	return Status{
		UserID:      s.userID,
		Connection:  s.connState.String(),
		LastError:   s.lastErr,
		WindowOpen:  s.window.open,
		RoundID:     s.window.roundID,
		HistoryLen:  s.hist.Len(),
		HistoryFull: s.hist.Full(),
		Requested:   s.started,
		Operation:   op,
		CanStart:    s.hist.Full() && s.window.open && !op.Active,
		CreatedAt:   s.createdAt,
		LastRenewal: s.lastRenewal,
		Logs:        lines,
	}
}

// Report is the statistics surface of one session.
type Report struct {
	UserID string        `json:"user_id"`
	Stats  betting.Stats `json:"stats"`
}

func (s *Session) report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Report{UserID: s.userID, Stats: s.op.Stats()}
}
