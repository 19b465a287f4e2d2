package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
	maxFrameSize  = 64 * 1024
)

var _ domain.Conn = (*Conn)(nil)

// Conn is a client connection. Send and Close may be called from any goroutine;
// Receive must only be called by the session loop.
type Conn struct {
	ws    *websocket.Conn
	clock clockwork.Clock

	// writeSlot serializes data frames. A channel rather than a mutex so that
	// waiting for the slot honours ctx.
	writeSlot chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewConn(ws *websocket.Conn, clock clockwork.Clock) *Conn {
	c := &Conn{
		ws:        ws,
		clock:     clock,
		writeSlot: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	ws.SetReadLimit(maxFrameSize)
	c.extendReadDeadline()
	ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	c.wg.Add(1)
	go c.keepalive()
	return c
}

// Send writes one text frame. The write is bounded by ctx and by the write deadline.
// A write that fails or is cut short leaves a partial frame on the wire, so the
// connection is dropped and the session loop sees domain.ErrConnectionClosed.
func (c *Conn) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}
	select {
	case c.writeSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return domain.ErrConnectionClosed
	}
	defer func() { <-c.writeSlot }()

	deadline := c.clock.Now().Add(writeDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)

	// the gorilla deadline is only read before each frame; the socket deadline
	// interrupts a write that is already blocked
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.NetConn().SetWriteDeadline(time.Now())
	})
	err := c.ws.WriteMessage(websocket.TextMessage, []byte(text))
	stop()

	if err != nil {
		c.abort()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return c.mapError(err)
	}
	return nil
}

// Receive blocks until the next text or binary frame arrives.
func (c *Conn) Receive(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", c.mapError(err)
	}
	c.extendReadDeadline()
	return string(data), nil
}

// Close sends a normal closure frame and releases the connection.
func (c *Conn) Close() error {
	return c.CloseWithReason(websocket.CloseNormalClosure, "")
}

// CloseWithReason sends a close frame with code and reason, then closes the socket.
// Only the first call has any effect.
func (c *Conn) CloseWithReason(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()

		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, c.clock.Now().Add(writeDeadline))
		err = c.ws.Close()
	})
	return err
}

// abort drops a connection whose write side is broken. No close frame is sent
// because nothing more can be written.
func (c *Conn) abort() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		c.wg.Wait()
	})
}

func (c *Conn) keepalive() {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.clock.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (c *Conn) extendReadDeadline() {
	_ = c.ws.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}

// mapError reports a gone peer as domain.ErrConnectionClosed.
func (c *Conn) mapError(err error) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: %w", domain.ErrConnectionClosed, err)
	default:
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("%w: %w", domain.ErrConnectionClosed, err)
	}
	return err
}
