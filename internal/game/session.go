package game

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dexparty/trivia-backend/internal/apperr"
	"github.com/dexparty/trivia-backend/internal/telemetry"
	"github.com/dexparty/trivia-backend/pkg/types"
)

// Settings are the per-session game parameters, fixed at hosting time.
type Settings struct {
	Rounds       int
	Choices      int
	Pixelation   int
	ReadyTimeout time.Duration // zero means no deadline
	RunTimeout   time.Duration // zero means no deadline
}

func (s Settings) withDefaults() Settings {
	if s.Rounds <= 0 {
		s.Rounds = 5
	}
	if s.Choices <= 0 {
		s.Choices = 4
	}
	if s.Pixelation < 1 {
		s.Pixelation = 1
	}
	return s
}

type connHooks struct {
	detachFrame func()
	cancelClose func()
}

// Session is one hosted game from creation to end or cancellation. It owns
// the roster, dispatches session-level commands, enforces host privileges and
// drives the sequential round loop once started.
type Session struct {
	id  string
	log *zap.Logger
	dir *Directory
	set Settings
	src ContentSource
	loc MediaLocator

	roster *Roster

	mu      sync.Mutex
	started bool
	ended   bool
	host    string
	hooks   map[string]connHooks
}

func newSession(dir *Directory, id string, set Settings) *Session {
	return &Session{
		id:     id,
		log:    dir.log.With(zap.String("session", id)),
		dir:    dir,
		set:    set,
		src:    dir.src,
		loc:    dir.loc,
		roster: NewRoster(),
		hooks:  make(map[string]connHooks),
	}
}

func (s *Session) ID() string { return s.id }

// Started reports whether the session has left the lobby state.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// addHost seats the hosting participant and acknowledges with HOSTED.
func (s *Session) addHost(conn Conn, name string) {
	s.mu.Lock()
	s.host = name
	p := &Participant{Name: name, Conn: conn}
	_ = s.roster.Add(p) // roster is empty, cannot conflict
	s.attachLocked(p)
	s.mu.Unlock()

	conn.Send(types.ServerFrame{
		Action:  types.ActionHosted,
		ID:      s.id,
		Players: s.roster.Names(),
	})
}

// Join seats a new participant. Joining is only accepted in the lobby state
// and with a name not already present; rejections leave the session
// untouched.
func (s *Session) Join(conn Conn, name string) error {
	s.mu.Lock()
	if s.started || s.ended {
		s.mu.Unlock()
		return apperr.New(apperr.CodeConflict,
			apperr.WithMessagef("session %s has already started", s.id))
	}

	p := &Participant{Name: name, Conn: conn}
	if err := s.roster.Add(p); err != nil {
		s.mu.Unlock()
		return err
	}
	s.attachLocked(p)
	s.mu.Unlock()

	players := s.roster.Names()
	s.broadcast(types.ServerFrame{Action: types.ActionJoined, ID: s.id, Players: players})

	s.log.Info("participant joined", zap.String("player", name))
	return nil
}

func (s *Session) attachLocked(p *Participant) {
	name := p.Name
	detachFrame := p.Conn.Attach(func(f types.ClientFrame) { s.handleFrame(name, f) })
	cancelClose := p.Conn.OnClose(func() { s.handleClose(name) })
	s.hooks[name] = connHooks{detachFrame: detachFrame, cancelClose: cancelClose}
}

// handleFrame is the session-level listener. For READY and RESPOND it only
// performs the coarse precondition check; once started, the active round's
// own listener consumes them.
func (s *Session) handleFrame(name string, f types.ClientFrame) {
	p, ok := s.roster.Get(name)
	if !ok {
		return
	}
	conn := p.Conn

	switch f.Action {
	case types.ActionStart:
		s.start(name, conn)

	case types.ActionCancel:
		s.cancel(name, conn)

	case types.ActionLeave:
		s.remove(name)

	case types.ActionReady, types.ActionRespond:
		if !s.Started() {
			conn.Send(errorFrame(apperr.New(apperr.CodeOutOfPhase,
				apperr.WithMessagef("session has not started yet"))))
		}

	case types.ActionHost, types.ActionJoin:
		conn.Send(errorFrame(apperr.New(apperr.CodeConflict,
			apperr.WithMessagef("already in a session"))))

	default:
		conn.Send(errorFrame(apperr.New(apperr.CodeUnknownAction,
			apperr.WithMessagef("unknown action %q", f.Action))))
	}
}

// handleClose selects between the two terminal paths a disconnect can take:
// host-in-lobby cancels the whole session, everything else is an ordinary
// removal.
func (s *Session) handleClose(name string) {
	s.mu.Lock()
	ended := s.ended
	hostInLobby := !s.started && name == s.host
	s.mu.Unlock()

	if ended {
		return
	}

	if hostInLobby {
		s.log.Info("host disconnected in lobby", zap.String("host", name))
		s.teardown("host_disconnected", types.ServerFrame{Action: types.ActionCancelled})
		return
	}

	s.remove(name)
}

func (s *Session) start(name string, conn Conn) {
	s.mu.Lock()
	if name != s.host {
		s.mu.Unlock()
		conn.Send(errorFrame(apperr.New(apperr.CodeForbidden,
			apperr.WithMessagef("only the host may start the session"))))
		return
	}
	if s.started {
		s.mu.Unlock()
		conn.Send(errorFrame(apperr.New(apperr.CodeOutOfPhase,
			apperr.WithMessagef("session has already started"))))
		return
	}
	s.started = true
	s.mu.Unlock()

	// No longer discoverable from this instant, whether or not the run
	// later fails.
	s.dir.delist(s.id)

	s.log.Info("session started", zap.Int("players", s.roster.Len()))
	go s.runLoop()
}

func (s *Session) cancel(name string, conn Conn) {
	s.mu.Lock()
	if name != s.host {
		s.mu.Unlock()
		conn.Send(errorFrame(apperr.New(apperr.CodeForbidden,
			apperr.WithMessagef("only the host may cancel the session"))))
		return
	}
	if s.started {
		s.mu.Unlock()
		conn.Send(errorFrame(apperr.New(apperr.CodeOutOfPhase,
			apperr.WithMessagef("session has already started"))))
		return
	}
	s.mu.Unlock()

	s.teardown("cancelled", types.ServerFrame{Action: types.ActionCancelled})
}

// runLoop drives the configured number of rounds strictly sequentially, then
// ends the session with a final leaderboard.
func (s *Session) runLoop() {
	ctx := context.Background()

	for i := 1; i <= s.set.Rounds; i++ {
		if s.roster.Len() == 0 {
			break
		}

		labels, answer, err := s.src.Select(ctx, s.set.Choices)
		if err != nil {
			s.log.Error("content selection failed", zap.Error(err))
			break
		}

		media, err := s.loc.Locate(ctx, labels[answer])
		if err != nil {
			s.log.Error("media lookup failed", zap.String("label", labels[answer]), zap.Error(err))
			break
		}

		round := NewRound(s.log.With(zap.Int("round", i)), s.roster, labels, answer, media, s.set.Pixelation)

		ready := round.AwaitReady(ctx, s.set.ReadyTimeout)
		s.log.Debug("readiness barrier resolved", zap.Strings("ready", ready))

		round.Run(ctx, s.set.RunTimeout)
		telemetry.RoundPlayed()
	}

	s.teardown("completed", types.ServerFrame{
		Action:      types.ActionEnded,
		Leaderboard: Leaderboard(s.roster),
	})
}

// remove deletes one participant: broadcast the shrunken player list to the
// remaining, tell the leaver it has left (with no session reference), detach
// the session's listeners from its connection and hand the connection back
// to the gateway if it is still open.
func (s *Session) remove(name string) {
	s.mu.Lock()
	h, tracked := s.hooks[name]
	delete(s.hooks, name)
	s.mu.Unlock()

	p, ok := s.roster.Remove(name)
	if !ok {
		return
	}
	if tracked {
		h.cancelClose()
	}

	// Host privilege follows the participant out. Rebinding it to whoever
	// joins under the same name later would hand host commands to a
	// stranger, so promote the next participant instead.
	s.mu.Lock()
	if name == s.host {
		s.host = ""
		if names := s.roster.Names(); len(names) > 0 {
			s.host = names[0]
		}
		if s.host != "" {
			s.log.Info("host transferred", zap.String("host", s.host))
		}
	}
	s.mu.Unlock()

	players := s.roster.Names()
	s.broadcast(types.ServerFrame{Action: types.ActionLeft, ID: s.id, Players: players})

	if p.Conn.Alive() {
		p.Conn.Send(types.ServerFrame{Action: types.ActionLeft})
		if tracked {
			h.detachFrame()
		}
		s.dir.handBack(p.Conn)
	}

	s.log.Info("participant removed", zap.String("player", name))

	if s.roster.Len() == 0 {
		s.dir.delist(s.id)
		s.mu.Lock()
		alreadyEnded := s.ended
		s.ended = true
		s.mu.Unlock()
		if !alreadyEnded {
			telemetry.SessionEnded("abandoned")
			s.log.Info("session abandoned")
		}
	}
}

// teardown is the single terminal path: broadcast the final frame, clear the
// roster, detach everything and hand surviving connections back. It runs at
// most once.
func (s *Session) teardown(reason string, final types.ServerFrame) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	hooks := s.hooks
	s.hooks = make(map[string]connHooks)
	s.mu.Unlock()

	s.broadcast(final)

	for _, p := range s.roster.Clear() {
		if h, ok := hooks[p.Name]; ok {
			h.cancelClose()
			h.detachFrame()
		}
		if p.Conn.Alive() {
			s.dir.handBack(p.Conn)
		}
	}

	s.dir.delist(s.id)
	telemetry.SessionEnded(reason)
	s.log.Info("session ended", zap.String("reason", reason))
}

func (s *Session) broadcast(f types.ServerFrame) {
	s.roster.Each(func(p *Participant) {
		p.Conn.Send(f)
	})
}
