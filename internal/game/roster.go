package game

import (
	"sync"

	"github.com/dexparty/trivia-backend/internal/apperr"
	"github.com/dexparty/trivia-backend/pkg/types"
)

// Roster is the session's ordered participant collection. It is the single
// shared mutable resource of a session: the session owns it, and every round
// holds the same Roster (not a snapshot) so membership changes propagate into
// in-flight round logic.
//
// Removal subscribers are notified outside the roster lock.
type Roster struct {
	mu      sync.Mutex
	order   []string
	byName  map[string]*Participant
	subs    map[int]func(name string)
	nextSub int
}

func NewRoster() *Roster {
	return &Roster{
		byName: make(map[string]*Participant),
		subs:   make(map[int]func(string)),
	}
}

// Add inserts p, keyed by display name. Duplicate names are rejected.
func (r *Roster) Add(p *Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[p.Name]; taken {
		return apperr.New(apperr.CodeConflict, apperr.WithMessagef("name %q is already taken", p.Name))
	}

	r.byName[p.Name] = p
	r.order = append(r.order, p.Name)
	return nil
}

// Remove deletes the named participant and notifies removal subscribers.
func (r *Roster) Remove(name string) (*Participant, bool) {
	r.mu.Lock()
	p, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}

	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	subs := r.snapshotSubsLocked()
	r.mu.Unlock()

	for _, sub := range subs {
		sub(name)
	}
	return p, true
}

// Clear empties the roster without notifying subscribers; used on session
// end and cancellation, where no round is in flight anymore.
func (r *Roster) Clear() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := make([]*Participant, 0, len(r.order))
	for _, name := range r.order {
		ps = append(ps, r.byName[name])
	}
	r.order = nil
	r.byName = make(map[string]*Participant)
	return ps
}

func (r *Roster) Get(name string) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	return p, ok
}

func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.order)
}

// Names returns display names in join order.
func (r *Roster) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Each calls f for every participant in join order, outside the roster lock.
func (r *Roster) Each(f func(p *Participant)) {
	r.mu.Lock()
	ps := make([]*Participant, 0, len(r.order))
	for _, name := range r.order {
		ps = append(ps, r.byName[name])
	}
	r.mu.Unlock()

	for _, p := range ps {
		f(p)
	}
}

// Grade applies one answer submission to the named participant's counters
// and returns the updated values.
func (r *Roster) Grade(name string, correct bool) (score, streak int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	if !ok {
		return 0, 0, false
	}

	p.grade(correct)
	return p.Score, p.Streak, true
}

// Standings snapshots every participant's counters, in join order, under
// the roster lock.
func (r *Roster) Standings() []types.LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]types.LeaderboardEntry, 0, len(r.order))
	for _, name := range r.order {
		p := r.byName[name]
		entries = append(entries, types.LeaderboardEntry{
			Name:   p.Name,
			Score:  p.Score,
			Streak: p.Streak,
		})
	}
	return entries
}

// Subscribe registers f to be called with the name of every removed
// participant. Returns a cancel func.
func (r *Roster) Subscribe(f func(name string)) (cancel func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = f
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Roster) snapshotSubsLocked() []func(string) {
	subs := make([]func(string), 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}
