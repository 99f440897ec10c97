package game

import (
	"crypto/rand"
	"math/big"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dexparty/trivia-backend/internal/apperr"
	"github.com/dexparty/trivia-backend/internal/telemetry"
)

const maxNameLength = 24

// IDPolicy controls session identifier generation: a fixed character set, a
// fixed length, and a bounded number of collision retries before hosting
// fails outright.
type IDPolicy struct {
	Charset  string
	Length   int
	Attempts int
}

func (p IDPolicy) withDefaults() IDPolicy {
	if p.Charset == "" {
		p.Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	}
	if p.Length <= 0 {
		p.Length = 6
	}
	if p.Attempts <= 0 {
		p.Attempts = 100
	}
	return p
}

type DirectoryConfig struct {
	Log      *zap.Logger
	Settings Settings
	IDs      IDPolicy
	Source   ContentSource
	Locator  MediaLocator
}

// Directory is the process-wide registry of discoverable sessions: those
// created but not yet started. A session leaves the registry the instant it
// starts, is cancelled, or empties out.
type Directory struct {
	log *zap.Logger
	set Settings
	ids IDPolicy
	src ContentSource
	loc MediaLocator

	mu       sync.Mutex
	sessions map[string]*Session
	release  func(Conn)
}

func NewDirectory(c DirectoryConfig) *Directory {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Directory{
		log:      log,
		set:      c.Settings.withDefaults(),
		ids:      c.IDs.withDefaults(),
		src:      c.Source,
		loc:      c.Locator,
		sessions: make(map[string]*Session),
	}
}

// SetRelease installs the hand-back target for connections that leave a
// session while still open; the websocket gateway re-adopts them as fresh,
// unassociated connections.
func (d *Directory) SetRelease(f func(Conn)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release = f
}

// Host allocates a fresh identifier, creates a session in the lobby state
// and seats conn as its host. Identifier exhaustion fails the hosting
// attempt; no session is created.
func (d *Directory) Host(conn Conn, name string) (*Session, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	d.mu.Lock()
	id, err := d.generateIDLocked()
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	s := newSession(d, id, d.set)
	d.sessions[id] = s
	d.mu.Unlock()

	s.addHost(conn, name)

	telemetry.SessionHosted()
	d.log.Info("session hosted", zap.String("session", id), zap.String("host", name))
	return s, nil
}

// Join seats conn in the identified session. Unknown identifiers cover
// started sessions too, since those are no longer discoverable.
func (d *Directory) Join(conn Conn, id, name string) (*Session, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	d.mu.Lock()
	s, ok := d.sessions[id]
	d.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound,
			apperr.WithMessagef("session %s not found", id))
	}

	if err := s.Join(conn, name); err != nil {
		return nil, err
	}
	return s, nil
}

// SessionSummary describes one joinable session for discovery listings.
type SessionSummary struct {
	ID      string   `json:"id"`
	Players []string `json:"players"`
}

// List returns the currently discoverable (not yet started) sessions.
func (d *Directory) List() []SessionSummary {
	d.mu.Lock()
	sessions := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{ID: s.ID(), Players: s.roster.Names()})
	}
	return out
}

// Lookup returns a discoverable session by identifier.
func (d *Directory) Lookup(id string) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	return s, ok
}

func (d *Directory) delist(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, id)
}

func (d *Directory) handBack(conn Conn) {
	d.mu.Lock()
	release := d.release
	d.mu.Unlock()

	if release != nil {
		release(conn)
	}
}

// generateIDLocked draws identifiers from the configured charset until one
// is unused among the currently discoverable sessions, giving up after the
// configured number of attempts.
func (d *Directory) generateIDLocked() (string, error) {
	for attempt := 0; attempt < d.ids.Attempts; attempt++ {
		code := make([]byte, d.ids.Length)
		for i := range code {
			num, err := rand.Int(rand.Reader, big.NewInt(int64(len(d.ids.Charset))))
			if err != nil {
				return "", apperr.Internal(err)
			}
			code[i] = d.ids.Charset[num.Int64()]
		}

		id := string(code)
		if _, taken := d.sessions[id]; !taken {
			return id, nil
		}
	}

	return "", apperr.New(apperr.CodeExhausted,
		apperr.WithMessagef("could not allocate a session id after %d attempts", d.ids.Attempts))
}

func validateName(name string) error {
	if name == "" {
		return apperr.New(apperr.CodeInvalid, apperr.WithMessagef("display name is required"))
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return apperr.New(apperr.CodeInvalid,
			apperr.WithMessagef("display name longer than %d characters", maxNameLength))
	}
	return nil
}
