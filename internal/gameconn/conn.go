package gameconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var ErrConnClosed = errors.New("connection_closed")

// Close codes. An intentional close (stop, migration, renewal swap) must
// never trigger the reconnect path; a forced close always does.
const (
	CloseIntentional = websocket.CloseNormalClosure
	CloseForced      = websocket.CloseGoingAway
)

const writeDeadline = 10 * time.Second

// conn wraps one websocket transport. A conn is never reused: migration,
// renewal and reconnection all replace it wholesale.
type conn struct {
	id      string
	ws      *websocket.Conn
	sendCh  chan string
	readCh  chan string
	errCh   chan error
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

func dialConn(ctx context.Context, url string, timeout time.Duration, limiter *rate.Limiter) (*conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	c := &conn{
		id:      uuid.New().String(),
		ws:      ws,
		sendCh:  make(chan string, 32),
		readCh:  make(chan string, 64),
		errCh:   make(chan error, 1),
		limiter: limiter,
		done:    make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// send queues an outgoing text frame, honoring the per-connection rate
// limiter first so a betting burst cannot flood the game server.
func (c *conn) send(ctx context.Context, frame string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	select {
	case c.sendCh <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close sends a close control frame with the given code and tears the
// transport down. Safe to call more than once.
func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) readPump() {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case c.errCh <- err:
			default:
			}
			return
		}
		select {
		case c.readCh <- string(msg):
		case <-c.done:
			return
		}
	}
}

func (c *conn) writePump() {
	for {
		select {
		case frame := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
		case <-c.done:
			return
		}
	}
}
