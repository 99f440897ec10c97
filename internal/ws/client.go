package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dexparty/trivia-backend/internal/apperr"
	"github.com/dexparty/trivia-backend/internal/game"
	"github.com/dexparty/trivia-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

type handlerEntry struct {
	id int
	h  game.FrameHandler
}

// Client wraps one websocket connection with a writer goroutine draining a
// buffered outbox, an ordered pipeline of frame listeners, and close hooks.
// It implements game.Conn.
type Client struct {
	id   string
	log  *zap.Logger
	conn *websocket.Conn

	out  chan types.ServerFrame
	done chan struct{}

	mu        sync.Mutex
	handlers  []handlerEntry
	nextID    int
	closers   map[int]func()
	nextClose int
	closed    bool

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, log *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		log:     log.With(zap.String("conn", id)),
		conn:    conn,
		out:     make(chan types.ServerFrame, outboxSize),
		done:    make(chan struct{}),
		closers: make(map[int]func()),
	}
}

func (c *Client) ID() string { return c.id }

// Send enqueues f for the writer goroutine; a full outbox drops the frame
// rather than blocking game logic.
func (c *Client) Send(f types.ServerFrame) {
	select {
	case c.out <- f:
	default:
		c.log.Warn("outbox full, dropping frame", zap.String("action", string(f.Action)))
	}
}

func (c *Client) Attach(h game.FrameHandler) (detach func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers = append(c.handlers, handlerEntry{id: id, h: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.handlers {
			if e.id == id {
				c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

// DetachAll clears the listener pipeline; used when a connection is handed
// back to the gateway as fresh and unassociated.
func (c *Client) DetachAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = nil
}

func (c *Client) OnClose(h func()) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		// Already terminated; fire immediately from a fresh goroutine so
		// the registrant never misses it.
		go h()
		return func() {}
	}

	id := c.nextClose
	c.nextClose++
	c.closers[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.closers, id)
	}
}

func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case f := <-c.out:
			payload, err := json.Marshal(f)
			if err != nil {
				c.log.Error("marshal outbound frame", zap.Error(err))
				continue
			}

			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump delivers inbound frames to the listener pipeline until the
// connection errors out, then fires the close hooks exactly once.
func (c *Client) readPump(ctx context.Context) {
	defer c.shutdown()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.log.Debug("read loop ended", zap.Error(err))
			}
			return
		}

		var f types.ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.Send(errorFrame(apperr.New(apperr.CodeMalformed,
				apperr.WithMessagef("malformed frame"))))
			continue
		}
		if f.Action == "" {
			c.Send(errorFrame(apperr.New(apperr.CodeMalformed,
				apperr.WithMessagef("missing action"))))
			continue
		}

		c.dispatch(f)
	}
}

// dispatch calls the attached listeners in attachment order. The snapshot
// lets a listener detach itself (or attach others) mid-delivery.
func (c *Client) dispatch(f types.ClientFrame) {
	c.mu.Lock()
	snapshot := make([]handlerEntry, len(c.handlers))
	copy(snapshot, c.handlers)
	c.mu.Unlock()

	for _, e := range snapshot {
		e.h(f)
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		closers := make([]func(), 0, len(c.closers))
		for _, h := range c.closers {
			closers = append(closers, h)
		}
		c.closers = make(map[int]func())
		c.mu.Unlock()

		close(c.done)
		for _, h := range closers {
			h()
		}
	})
}
