package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/gorilla/websocket"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/wire"
)

const (
	inboundBuffer  = 16
	maxMessageSize = 1 << 12 // 4 KB
)

// WSChannel is the websocket client for the physical installation. It dials
// the hardware controller, reconnects with capped backoff and keeps a small
// bounded queue of outbound messages while the link is down.
type WSChannel struct {
	cfg config.HardwareConfig

	mu    sync.Mutex
	conn  *websocket.Conn
	queue deque.Deque[wire.Envelope]

	inbound  chan wire.Envelope
	stopchan chan struct{}
	wg       sync.WaitGroup
}

func NewWSChannel(cfg config.HardwareConfig) *WSChannel {
	return &WSChannel{
		cfg:      cfg,
		inbound:  make(chan wire.Envelope, inboundBuffer),
		stopchan: make(chan struct{}),
	}
}

// Start launches the dial loop and returns immediately. Connectivity is
// reported by Connected.
func (c *WSChannel) Start() error {
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop tears the link down and waits for all pumps to finish. The inbound
// channel stays open but quiet, so a consumer selecting on it does not race
// the shutdown.
func (c *WSChannel) Stop() {
	close(c.stopchan)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Send wraps data in an envelope and writes it to the hardware controller.
// While the link is down the envelope is queued, dropping the oldest entry
// beyond QueueSize, and ErrNotConnected comes back.
func (c *WSChannel) Send(msgType string, data any) error {
	env, err := wire.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.enqueueLocked(env)
		return ErrNotConnected
	}
	if err := c.writeLocked(env); err != nil {
		// The reader pump will notice the dead connection and trigger a
		// reconnect; requeue so the message survives it.
		c.conn.Close()
		c.conn = nil
		c.enqueueLocked(env)
		return err
	}
	return nil
}

func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Inbound delivers decoded envelopes from the hardware.
func (c *WSChannel) Inbound() <-chan wire.Envelope {
	return c.inbound
}

func (c *WSChannel) enqueueLocked(env wire.Envelope) {
	c.queue.PushBack(env)
	if c.queue.Len() > c.cfg.QueueSize {
		dropped := c.queue.PopFront()
		slog.Debug("Outbound queue full, dropping oldest message", "type", dropped.Type)
	}
}

func (c *WSChannel) writeLocked(env wire.Envelope) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(env)
}

func (c *WSChannel) run() {
	defer c.wg.Done()

	backoff := c.cfg.ReconnectMin
	for {
		select {
		case <-c.stopchan:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, nil)
		if err != nil {
			slog.Warn("Hardware link dial failed", "url", c.cfg.URL, "retry", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-c.stopchan:
				return
			}
			backoff *= 2
			if backoff > c.cfg.ReconnectMax {
				backoff = c.cfg.ReconnectMax
			}
			continue
		}

		backoff = c.cfg.ReconnectMin
		slog.Info("Hardware link established", "url", c.cfg.URL)
		c.attach(conn)

		readerDone := make(chan struct{})
		c.wg.Add(2)
		go c.readPump(conn, readerDone)
		go c.pingPump(conn, readerDone)

		select {
		case <-readerDone:
			c.detach(conn)
			slog.Warn("Hardware link lost, reconnecting", "url", c.cfg.URL)
		case <-c.stopchan:
			c.detach(conn)
			return
		}
	}
}

// attach publishes the fresh connection and flushes whatever queued up while
// the link was down.
func (c *WSChannel) attach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	for c.queue.Len() > 0 {
		env := c.queue.PopFront()
		if err := c.writeLocked(env); err != nil {
			c.queue.PushFront(env)
			slog.Warn("Flushing queued message failed", "type", env.Type, "error", err)
			return
		}
	}
}

func (c *WSChannel) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *WSChannel) readPump(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	pongWait := c.cfg.PingInterval * 10 / 9
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("Dropping malformed hardware message", "error", err)
			continue
		}
		select {
		case c.inbound <- env:
		case <-c.stopchan:
			return
		}
	}
}

func (c *WSChannel) pingPump(conn *websocket.Conn, readerDone <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-c.stopchan:
			return
		}
	}
}
