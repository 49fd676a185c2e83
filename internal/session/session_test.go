package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"roulette-pilot/internal/auth"
	"roulette-pilot/internal/config"
	"roulette-pilot/internal/gameconn"
	"roulette-pilot/internal/protocol"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	swapped []string
	sendErr error
	stopped bool
	state   gameconn.State
}

func (f *fakeTransport) Send(ctx context.Context, frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) Swap(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swapped = append(f.swapped, url)
	return nil
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTransport) State() gameconn.State { return f.state }
func (f *fakeTransport) LastError() string     { return "" }

func (f *fakeTransport) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		AuthURL:          "http://auth.test",
		GameWSURL:        "wss://game.test/socket",
		TableID:          "rt01",
		Stakes:           []float64{0.5, 2, 5, 11, 23},
		RenewInterval:    time.Hour,
		RenewRetryDelay:  time.Millisecond,
		RenewMaxAttempts: 2,
		AckRenewDelay:    time.Millisecond,
		LogBufferSize:    50,
	}
}

func testSession(t *testing.T, tr transport, authFn AuthFunc) *Session {
	t.Helper()
	if authFn == nil {
		authFn = func(ctx context.Context, subject string) (auth.Credentials, error) {
			return auth.Credentials{PPToken: "tok", JSessionID: "js-renewed", PragmaticUserID: "pu1"}, nil
		}
	}
	creds := auth.Credentials{PPToken: "tok", JSessionID: "js1", PragmaticUserID: "pu1"}
	s, err := newSession("user-1", testConfig(), creds, tr, authFn, zerolog.Nop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.cancel = func() {}
	return s
}

func frame(s *Session, ev protocol.Event) {
	s.handleEvent(context.Background(), gameconn.Event{Kind: gameconn.KindFrame, Frame: ev})
}

func connState(s *Session, st gameconn.State, errText string) {
	s.handleEvent(context.Background(), gameconn.Event{Kind: gameconn.KindState, State: st, Err: errText})
}

// feedHistory enables collection and records results for the given
// numbers, each bounded by an open/close pair like the live stream.
func feedHistory(s *Session, numbers ...int) {
	frame(s, protocol.BetsClosed{})
	for i, n := range numbers {
		frame(s, protocol.BetsOpen{RoundID: "warmup-" + string(rune('a'+i)), Table: "rt01"})
		frame(s, protocol.BetsClosed{})
		frame(s, protocol.Result{Number: n})
	}
}

func TestPartialFirstRoundDiscarded(t *testing.T) {
	s := testSession(t, &fakeTransport{}, nil)
	// Result before any round boundary must not be recorded.
	frame(s, protocol.Result{Number: 5})
	if s.status().HistoryLen != 0 {
		t.Fatalf("partial first round was recorded")
	}
	frame(s, protocol.BetsClosed{})
	frame(s, protocol.Result{Number: 5})
	if s.status().HistoryLen != 1 {
		t.Fatalf("result after boundary not recorded")
	}
}

func TestBettingFlowWinAndLoss(t *testing.T) {
	tr := &fakeTransport{}
	s := testSession(t, tr, nil)
	// History becomes [R,R,B,R,B]: 1=red, 2=black.
	feedHistory(s, 1, 1, 2, 1, 2)
	if !s.status().HistoryFull {
		t.Fatalf("history should be full")
	}

	if err := s.handleCtrl(ctrlStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := s.status()
	if st.Operation.State != "armed" {
		t.Fatalf("expected armed after start, got %s", st.Operation.State)
	}

	frame(s, protocol.BetsOpen{RoundID: "rnd-1", Table: "rt01"})
	sent := tr.sentFrames()
	if len(sent) != 1 {
		t.Fatalf("expected 1 bet frame, got %d", len(sent))
	}
	for _, want := range []string{`gId="rnd-1"`, `uId="pu1"`, `amt="0.5"`, `bc="48"`} {
		if !strings.Contains(sent[0], want) {
			t.Fatalf("bet frame missing %s: %s", want, sent[0])
		}
	}
	if !s.status().Operation.Waiting {
		t.Fatalf("expected waiting after placed bet")
	}

	// Duplicate window open must not double-bet.
	frame(s, protocol.BetsOpen{RoundID: "rnd-1b", Table: "rt01"})
	if len(tr.sentFrames()) != 1 {
		t.Fatalf("double bet placed")
	}

	frame(s, protocol.BetsClosed{})
	frame(s, protocol.Result{Number: 1}) // red: win at level 0
	st = s.status()
	if st.Operation.Stats.Wins != 1 || st.Operation.Stats.Profit != 0.5 {
		t.Fatalf("after win: %+v", st.Operation.Stats)
	}
	if st.Operation.Level != 1 {
		t.Fatalf("expected level 1, got %d", st.Operation.Level)
	}

	frame(s, protocol.BetsOpen{RoundID: "rnd-2", Table: "rt01"})
	frame(s, protocol.BetsClosed{})
	frame(s, protocol.Result{Number: 2}) // black while expecting red: loss
	st = s.status()
	if st.Operation.Stats.Losses != 1 || st.Operation.Stats.Profit != -1.5 {
		t.Fatalf("after loss: %+v", st.Operation.Stats)
	}
	// History still full and requested, so the pattern re-arms at once.
	if st.Operation.State != "armed" {
		t.Fatalf("expected immediate re-arm, got %s", st.Operation.State)
	}
	if st.Operation.Stats.TotalBets != st.Operation.Stats.Wins+st.Operation.Stats.Losses {
		t.Fatalf("stats identity broken: %+v", st.Operation.Stats)
	}
}

func TestZeroBlocksReArm(t *testing.T) {
	tr := &fakeTransport{}
	s := testSession(t, tr, nil)
	feedHistory(s, 1, 1, 1, 1, 1)
	if err := s.handleCtrl(ctrlStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	frame(s, protocol.BetsOpen{RoundID: "rnd-1", Table: "rt01"})
	frame(s, protocol.BetsClosed{})
	frame(s, protocol.Result{Number: 0}) // zero: always a loss

	st := s.status()
	if st.Operation.Stats.Losses != 1 {
		t.Fatalf("zero must count as loss: %+v", st.Operation.Stats)
	}
	// The green outcome is in the window now, so re-arming is blocked.
	if st.Operation.Active {
		t.Fatalf("operation must stay idle with green in window")
	}
	// Five more red rounds push the green out; the next window re-arms.
	feedHistory(s, 1, 1, 1, 1, 1)
	frame(s, protocol.BetsOpen{RoundID: "rnd-2", Table: "rt01"})
	if !s.status().Operation.Active {
		t.Fatalf("operation should re-arm once green left the window")
	}
}

func TestMigrationPreservesOutstandingBet(t *testing.T) {
	tr := &fakeTransport{}
	s := testSession(t, tr, nil)
	feedHistory(s, 1, 1, 1, 1, 1)
	s.handleCtrl(ctrlStart)
	frame(s, protocol.BetsOpen{RoundID: "rnd-1", Table: "rt01"})
	if !s.status().Operation.Waiting {
		t.Fatalf("bet not outstanding")
	}

	connState(s, gameconn.Migrating, "")
	connState(s, gameconn.Open, "")

	st := s.status()
	if !st.Operation.Waiting || st.Operation.RoundID != "rnd-1" {
		t.Fatalf("migration dropped pending round context: %+v", st.Operation)
	}
	// The result from the new connection settles the original bet.
	frame(s, protocol.Result{Number: 1})
	st = s.status()
	if st.Operation.Stats.Wins != 1 {
		t.Fatalf("result after migration not evaluated: %+v", st.Operation.Stats)
	}
}

func TestFailedConnectionDeactivatesOperation(t *testing.T) {
	tr := &fakeTransport{}
	s := testSession(t, tr, nil)
	feedHistory(s, 1, 1, 1, 1, 1)
	s.handleCtrl(ctrlStart)
	frame(s, protocol.BetsOpen{RoundID: "rnd-1", Table: "rt01"})

	connState(s, gameconn.Failed, "reconnect attempts exhausted")
	st := s.status()
	if st.Operation.Active || st.Requested {
		t.Fatalf("failed connection must deactivate operation: %+v", st)
	}
	if st.LastError == "" {
		t.Fatalf("failed state must surface an error")
	}
	// Session stays queryable.
	if rep := s.report(); rep.UserID != "user-1" {
		t.Fatalf("report after failure: %+v", rep)
	}
}

func TestSendFailureLeavesOperationArmed(t *testing.T) {
	tr := &fakeTransport{sendErr: gameconn.ErrNotConnected}
	s := testSession(t, tr, nil)
	feedHistory(s, 1, 1, 1, 1, 1)
	s.handleCtrl(ctrlStart)
	frame(s, protocol.BetsOpen{RoundID: "rnd-1", Table: "rt01"})

	st := s.status()
	if st.Operation.Waiting {
		t.Fatalf("failed send must not mark a bet outstanding")
	}
	if st.Operation.State != "armed" {
		t.Fatalf("operation should stay armed for the next window, got %s", st.Operation.State)
	}
}

func TestFailedAckSchedulesRenewalAndSwap(t *testing.T) {
	tr := &fakeTransport{}
	var authCalls int
	authFn := func(ctx context.Context, subject string) (auth.Credentials, error) {
		authCalls++
		return auth.Credentials{PPToken: "tok2", JSessionID: "js-renewed", PragmaticUserID: "pu1"}, nil
	}
	s := testSession(t, tr, authFn)
	feedHistory(s, 1, 1, 1, 1, 1)
	s.handleCtrl(ctrlStart)

	frame(s, protocol.CommandAck{Status: "denied", Channel: "table-rt01"})
	s.mu.RLock()
	timerSet := s.renewTimer != nil
	s.mu.RUnlock()
	if !timerSet {
		t.Fatalf("failed ack must schedule a renewal")
	}
	// A rejected command is not a round loss.
	if st := s.status(); st.Operation.Stats.Losses != 0 {
		t.Fatalf("ack counted as loss: %+v", st.Operation.Stats)
	}

	s.renewCredentials(context.Background())
	if authCalls != 1 {
		t.Fatalf("expected one authenticate call, got %d", authCalls)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.swapped) != 1 || !strings.Contains(tr.swapped[0], "JSESSIONID=js-renewed") {
		t.Fatalf("expected swap to renewed url, got %v", tr.swapped)
	}
}

func TestRenewalFailureCapDeactivates(t *testing.T) {
	tr := &fakeTransport{}
	authFn := func(ctx context.Context, subject string) (auth.Credentials, error) {
		return auth.Credentials{}, errors.New("issuer down")
	}
	s := testSession(t, tr, authFn)
	feedHistory(s, 1, 1, 1, 1, 1)
	s.handleCtrl(ctrlStart)

	s.renewCredentials(context.Background())
	if st := s.status(); !st.Requested {
		t.Fatalf("first renewal failure must not deactivate")
	}
	s.renewCredentials(context.Background())
	st := s.status()
	if st.Requested || st.Operation.Active {
		t.Fatalf("renewal cap must deactivate the operation: %+v", st)
	}
	if st.LastError == "" {
		t.Fatalf("fatal renewal failure must surface an error")
	}
}

func TestStartStopAndReset(t *testing.T) {
	s := testSession(t, &fakeTransport{}, nil)
	feedHistory(s, 1, 1, 1, 1, 1)

	if err := s.handleCtrl(ctrlStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.handleCtrl(ctrlStart); err != ErrOperationActive {
		t.Fatalf("double start: %v", err)
	}
	if err := s.handleCtrl(ctrlStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.handleCtrl(ctrlStop); err != ErrOperationInactive {
		t.Fatalf("double stop: %v", err)
	}
	if err := s.handleCtrl(ctrlReset); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if st := s.status(); st.Operation.Stats.TotalBets != 0 {
		t.Fatalf("stats not reset: %+v", st.Operation.Stats)
	}
}

func TestEventLoopProcessesInOrder(t *testing.T) {
	tr := &fakeTransport{}
	s := testSession(t, tr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
	defer cancel()

	s.events <- gameconn.Event{Kind: gameconn.KindFrame, Frame: protocol.BetsClosed{}}
	for i := 0; i < 5; i++ {
		s.events <- gameconn.Event{Kind: gameconn.KindFrame, Frame: protocol.BetsOpen{RoundID: "w", Table: "rt01"}}
		s.events <- gameconn.Event{Kind: gameconn.KindFrame, Frame: protocol.BetsClosed{}}
		s.events <- gameconn.Event{Kind: gameconn.KindFrame, Frame: protocol.Result{Number: 1}}
	}
	if err := s.post(ctx, ctrlStart); err != nil {
		t.Fatalf("start through loop: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := s.status()
		if st.HistoryFull && st.Operation.State == "armed" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("loop did not apply events in order: %+v", st)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLogBufferBounded(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 0; i < 10; i++ {
		b.Append("line %d", i)
	}
	lines := b.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[2], "line 9") {
		t.Fatalf("expected newest line last, got %q", lines[2])
	}
}
