package network

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cavedrone/errs"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 25 * time.Second
	defaultCloseGrace = time.Second
	readLimit         = 1 << 20 // 1MB
	eventBuffer       = 64
)

type EventKind uint8

const (
	EventOpened EventKind = iota
	EventMessage
	EventFailed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventFailed:
		return "failed"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// Event is one thing that happened on a channel. Text is set for
// EventMessage, Err for EventFailed.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Channel is a persistent bidirectional text channel. Events are delivered
// one at a time in arrival order, starting with EventOpened; the events
// channel is closed after the last one.
type Channel interface {
	Events() <-chan Event
	Send(text string) error
	// Close ends the channel with a normal-closure frame. Safe to call twice.
	Close() error
}

// Dialer opens websocket channels.
type Dialer struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	CloseGrace       time.Duration
	Header           http.Header
	Logger           *slog.Logger
}

func (d *Dialer) Dial(ctx context.Context, url string) (Channel, error) {
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := wd.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &wsChannel{
		conn:       conn,
		events:     make(chan Event, eventBuffer),
		done:       make(chan struct{}),
		readDone:   make(chan struct{}),
		writeWait:  orDefault(d.WriteWait, defaultWriteWait),
		pongWait:   orDefault(d.PongWait, defaultPongWait),
		pingPeriod: orDefault(d.PingPeriod, defaultPingPeriod),
		closeGrace: orDefault(d.CloseGrace, defaultCloseGrace),
		logger:     d.logger().With("url", url),
	}
	c.events <- Event{Kind: EventOpened}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

type wsChannel struct {
	conn   *websocket.Conn
	events chan Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{} // closed by Close
	readDone  chan struct{} // closed when readLoop exits

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	closeGrace time.Duration
	logger     *slog.Logger
}

func (c *wsChannel) Events() <-chan Event { return c.events }

func (c *wsChannel) Send(text string) error {
	select {
	case <-c.done:
		return errs.Stream(errs.OpClose, websocket.ErrCloseSent)
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		if err != nil && err != websocket.ErrCloseSent {
			c.logger.Debug("write close frame", "error", err)
		}
		// Give the peer a moment to answer the close frame.
		select {
		case <-c.readDone:
		case <-time.After(c.closeGrace):
		}
		if cerr := c.conn.Close(); err == nil || err == websocket.ErrCloseSent {
			err = cerr
		}
	})
	return err
}

func (c *wsChannel) readLoop() {
	defer close(c.readDone)
	defer close(c.events)

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("channel closed", "error", err)
				c.emit(Event{Kind: EventClosed})
				return
			}
			c.logger.Warn("channel read failed", "error", err)
			c.emit(Event{Kind: EventFailed, Err: errs.Stream(errs.OpRead, err)})
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		c.emit(Event{Kind: EventMessage, Text: string(msg)})
	}
}

func (c *wsChannel) pingLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		case <-c.readDone:
			return
		}
	}
}

// emit drops events once the channel has been closed locally; nobody is
// listening for them by then.
func (c *wsChannel) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *wsChannel) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
