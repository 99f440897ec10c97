package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/dexparty/trivia-backend/internal/apperr"
	"github.com/dexparty/trivia-backend/pkg/types"
)

// fakeConn is an in-memory game.Conn for driving sessions and rounds from
// tests: outbound frames land on a buffered channel, inbound frames are
// pushed through the listener pipeline with deliver.
type fakeConn struct {
	frames chan types.ServerFrame

	mu        sync.Mutex
	alive     bool
	handlers  []fakeHandler
	nextID    int
	closers   map[int]func()
	nextClose int
}

type fakeHandler struct {
	id int
	h  FrameHandler
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:  make(chan types.ServerFrame, 64),
		alive:   true,
		closers: make(map[int]func()),
	}
}

func (c *fakeConn) Send(f types.ServerFrame) {
	select {
	case c.frames <- f:
	default:
	}
}

func (c *fakeConn) Attach(h FrameHandler) (detach func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers = append(c.handlers, fakeHandler{id: id, h: h})
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

func (c *fakeConn) OnClose(h func()) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextClose
	c.nextClose++
	c.closers[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.closers, id)
	}
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// deliver pushes one inbound frame through the listener pipeline, like the
// websocket read loop would.
func (c *fakeConn) deliver(f types.ClientFrame) {
	c.mu.Lock()
	snapshot := make([]fakeHandler, len(c.handlers))
	copy(snapshot, c.handlers)
	c.mu.Unlock()

	for _, e := range snapshot {
		e.h(f)
	}
}

// close simulates the underlying connection terminating.
func (c *fakeConn) close() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = false
	closers := make([]func(), 0, len(c.closers))
	for _, h := range c.closers {
		closers = append(closers, h)
	}
	c.closers = make(map[int]func())
	c.mu.Unlock()

	for _, h := range closers {
		h()
	}
}

func (c *fakeConn) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// recvFrame receives one frame with a timeout so tests never hang.
func recvFrame(t *testing.T, c *fakeConn, within time.Duration) types.ServerFrame {
	t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return types.ServerFrame{} // unreachable
	}
}

// recvAction receives frames until one with the wanted action arrives.
func recvAction(t *testing.T, c *fakeConn, want types.Action, within time.Duration) types.ServerFrame {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case f := <-c.frames:
			if f.Action == want {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", want)
			return types.ServerFrame{} // unreachable
		}
	}
}

func recvNoFrame(t *testing.T, c *fakeConn, within time.Duration) {
	t.Helper()
	select {
	case f := <-c.frames:
		t.Fatalf("expected no frame within %v, but got: %+v", within, f)
	case <-time.After(within):
	}
}

// countActions drains everything currently buffered and tallies by action.
func countActions(c *fakeConn) map[types.Action]int {
	counts := make(map[types.Action]int)
	for {
		select {
		case f := <-c.frames:
			counts[f.Action]++
		default:
			return counts
		}
	}
}

// stubSource returns a fixed choice set and correct index.
type stubSource struct {
	choices []string
	answer  int
	err     error
}

func (s stubSource) Select(context.Context, int) ([]string, int, error) {
	return s.choices, s.answer, s.err
}

// stubLocator derives a predictable locator from the label.
type stubLocator struct{}

func (stubLocator) Locate(_ context.Context, label string) (string, error) {
	return "sprites/" + label + ".png", nil
}

// failingLocator always errors.
type failingLocator struct{}

func (failingLocator) Locate(context.Context, string) (string, error) {
	return "", apperr.New(apperr.CodeNotFound, apperr.WithMessagef("no sprite"))
}

func newTestDirectory(t *testing.T, set Settings, ids IDPolicy, src ContentSource, loc MediaLocator) *Directory {
	t.Helper()
	if src == nil {
		src = stubSource{choices: []string{"Pidgey", "Rattata", "Spearow", "Zubat"}, answer: 1}
	}
	if loc == nil {
		loc = stubLocator{}
	}

	return NewDirectory(DirectoryConfig{
		Log:      zaptest.NewLogger(t),
		Settings: set,
		IDs:      ids,
		Source:   src,
		Locator:  loc,
	})
}
