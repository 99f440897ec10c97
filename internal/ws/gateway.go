package ws

import (
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/dexparty/trivia-backend/internal/apperr"
	"github.com/dexparty/trivia-backend/internal/game"
	"github.com/dexparty/trivia-backend/pkg/types"
)

// Gateway accepts websocket connections and owns them while they are not
// associated with a session: it understands HOST and JOIN, rejects
// everything else, and re-adopts connections the session layer hands back.
type Gateway struct {
	log *zap.Logger
	dir *game.Directory
}

func NewGateway(dir *game.Directory, log *zap.Logger) *Gateway {
	g := &Gateway{
		log: log.Named("ws"),
		dir: dir,
	}
	dir.SetRelease(g.release)
	return g
}

// Handler upgrades the request and runs the connection's read loop until it
// terminates.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			g.log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := newClient(conn, g.log)
		g.adopt(c)

		go c.writePump(r.Context())
		c.readPump(r.Context())
	}
}

// adopt attaches the unassociated-connection listener. On a successful HOST
// or JOIN the listener removes itself, leaving the session-level listener
// (attached during association) alone on the pipeline.
func (g *Gateway) adopt(c *Client) {
	var detach func()
	detach = c.Attach(func(f types.ClientFrame) {
		switch f.Action {
		case types.ActionHost:
			if _, err := g.dir.Host(c, f.Name); err != nil {
				c.Send(errorFrame(err))
				return
			}
			detach()

		case types.ActionJoin:
			if _, err := g.dir.Join(c, f.Session, f.Name); err != nil {
				c.Send(errorFrame(err))
				return
			}
			detach()

		case types.ActionStart, types.ActionCancel, types.ActionLeave,
			types.ActionReady, types.ActionRespond:
			c.Send(errorFrame(apperr.New(apperr.CodeOutOfPhase,
				apperr.WithMessagef("host or join a session first"))))

		default:
			c.Send(errorFrame(apperr.New(apperr.CodeUnknownAction,
				apperr.WithMessagef("unknown action %q", f.Action))))
		}
	})
}

// release re-adopts a connection that left its session while still open,
// restoring it to the fresh, unassociated state.
func (g *Gateway) release(conn game.Conn) {
	c, ok := conn.(*Client)
	if !ok {
		return
	}

	c.DetachAll()
	g.adopt(c)
	g.log.Debug("connection handed back", zap.String("conn", c.ID()))
}

func errorFrame(err error) types.ServerFrame {
	e := apperr.Convert(err)
	return types.ServerFrame{Action: types.ActionError, Message: e.Message}
}
