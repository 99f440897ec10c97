package game

import (
	"github.com/dexparty/trivia-backend/internal/apperr"
	"github.com/dexparty/trivia-backend/pkg/types"
)

// FrameHandler observes one inbound protocol frame. Handlers attached to a
// connection form an ordered pipeline; each is free to react or ignore.
type FrameHandler func(f types.ClientFrame)

// Conn is the game-side view of a participant's persistent connection.
// The websocket layer implements it; tests use an in-memory fake.
type Conn interface {
	// Send enqueues an outbound frame. It must never block game logic.
	Send(f types.ServerFrame)

	// Attach appends h to the connection's listener pipeline and returns a
	// detach func. Detaching twice is a no-op.
	Attach(h FrameHandler) (detach func())

	// OnClose registers a hook fired exactly once when the underlying
	// connection terminates. Returns a cancel func.
	OnClose(h func()) (cancel func())

	// Alive reports whether the underlying connection is still open.
	Alive() bool
}

// errorFrame turns a rejection into the single ERROR reply sent back to the
// offending connection.
func errorFrame(err error) types.ServerFrame {
	e := apperr.Convert(err)
	return types.ServerFrame{Action: types.ActionError, Message: e.Message}
}
