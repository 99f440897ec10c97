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

// Round is the ephemeral state machine for a single question: a readiness
// barrier followed by an answer-collection barrier. It holds the session's
// live Roster, so a disconnect mid-round immediately shrinks the completion
// threshold of whichever barrier is in flight.
//
// Each barrier resolves exactly once: natural completion, disconnect-driven
// completion and deadline expiry all race toward a one-shot latch.
type Round struct {
	log        *zap.Logger
	roster     *Roster
	choices    []string
	answer     int
	media      string
	pixelation int
}

func NewRound(log *zap.Logger, roster *Roster, choices []string, answer int, media string, pixelation int) *Round {
	if pixelation < 1 {
		pixelation = 1
	}

	return &Round{
		log:        log,
		roster:     roster,
		choices:    choices,
		answer:     answer,
		media:      media,
		pixelation: pixelation,
	}
}

// AwaitReady broadcasts STARTED and blocks until every remaining participant
// has signalled READY, the deadline elapses (zero means no deadline), or ctx
// is cancelled. It returns the names that signalled ready. Phase listeners
// are detached from every connection before returning.
//
// An answer submitted during this phase is rejected back to its sender and
// never touches barrier state.
func (rd *Round) AwaitReady(ctx context.Context, deadline time.Duration) []string {
	var (
		mu    sync.Mutex
		ready = make(map[string]bool)

		once sync.Once
		done = make(chan struct{})
	)
	resolve := func() { once.Do(func() { close(done) }) }

	// The threshold is read from the live roster each time, never from a
	// count captured at round creation.
	reevaluate := func() {
		mu.Lock()
		n := len(ready)
		mu.Unlock()
		if n >= rd.roster.Len() {
			resolve()
		}
	}

	var detach []func()
	rd.roster.Each(func(p *Participant) {
		name := p.Name
		conn := p.Conn
		d := conn.Attach(func(f types.ClientFrame) {
			switch f.Action {
			case types.ActionReady:
				mu.Lock()
				ready[name] = true
				mu.Unlock()
				reevaluate()
			case types.ActionRespond:
				conn.Send(errorFrame(apperr.New(apperr.CodeOutOfPhase,
					apperr.WithMessagef("round has not started yet"))))
			}
		})
		detach = append(detach, d)
	})

	unsubscribe := rd.roster.Subscribe(func(name string) {
		mu.Lock()
		delete(ready, name)
		mu.Unlock()
		reevaluate()
	})

	rd.broadcast(types.ServerFrame{Action: types.ActionStarted})

	// Already satisfied, e.g. the roster emptied before the phase began.
	reevaluate()

	var expired <-chan time.Time
	if deadline > 0 {
		t := time.NewTimer(deadline)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-done:
	case <-expired:
		rd.log.Debug("readiness barrier timed out")
	case <-ctx.Done():
	}

	unsubscribe()
	for _, d := range detach {
		d()
	}

	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(ready))
	for name := range ready {
		names = append(names, name)
	}
	return names
}

// submissions is the answer phase's shared state. resolved flips under mu at
// finalize time; a submission racing the flip is either applied in full
// (graded and counted) or rejected in full, never half of each.
type submissions struct {
	mu       sync.Mutex
	picks    map[string]int
	resolved bool
}

// Run broadcasts the question and collects at most one answer submission per
// participant, updating scores and streaks as submissions arrive. It resolves
// when every remaining participant has answered, the deadline elapses (zero
// means none), or ctx is cancelled, then sends each remaining participant
// their individual result exactly once.
func (rd *Round) Run(ctx context.Context, deadline time.Duration) {
	subs := &submissions{picks: make(map[string]int)}

	var (
		once sync.Once
		done = make(chan struct{})
	)
	resolve := func() { once.Do(func() { close(done) }) }

	reevaluate := func() {
		subs.mu.Lock()
		n := len(subs.picks)
		subs.mu.Unlock()
		if n >= rd.roster.Len() {
			resolve()
		}
	}

	var detach []func()
	rd.roster.Each(func(p *Participant) {
		name := p.Name
		conn := p.Conn
		d := conn.Attach(func(f types.ClientFrame) {
			switch f.Action {
			case types.ActionRespond:
				rd.handleAnswer(subs, name, conn, f.Choice, reevaluate)
			case types.ActionReady:
				conn.Send(errorFrame(apperr.New(apperr.CodeOutOfPhase,
					apperr.WithMessagef("round already started"))))
			}
		})
		detach = append(detach, d)
	})

	unsubscribe := rd.roster.Subscribe(func(name string) {
		subs.mu.Lock()
		delete(subs.picks, name)
		subs.mu.Unlock()
		reevaluate()
	})

	rd.broadcast(types.ServerFrame{
		Action:       types.ActionQuestion,
		Choices:      rd.choices,
		MediaLocator: rd.media,
		Pixelation:   rd.pixelation,
	})

	reevaluate()

	var expired <-chan time.Time
	if deadline > 0 {
		t := time.NewTimer(deadline)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-done:
	case <-expired:
		rd.log.Debug("answer collection timed out")
	case <-ctx.Done():
	}

	unsubscribe()
	for _, d := range detach {
		d()
	}

	// A submission dispatched just before its detach may still be mid-flight;
	// flipping resolved under the lock turns any such straggler away before
	// it can grade.
	subs.mu.Lock()
	subs.resolved = true
	final := make(map[string]int, len(subs.picks))
	for name, pick := range subs.picks {
		final[name] = pick
	}
	subs.mu.Unlock()

	leaderboard := Leaderboard(rd.roster)
	answer := rd.answer
	rd.roster.Each(func(p *Participant) {
		pick, answered := final[p.Name]
		correct := answered && pick == answer
		p.Conn.Send(types.ServerFrame{
			Action:      types.ActionAnswer,
			Answer:      &answer,
			Correct:     &correct,
			Leaderboard: leaderboard,
		})
	})
}

// handleAnswer validates and records one submission. Checked in order:
// the index must reference an existing choice, the round must not have
// finalized, then the sender must not have already answered this round.
// Recording and grading happen under the one lock, so finalize sees either
// both or neither.
func (rd *Round) handleAnswer(subs *submissions, name string, conn Conn, choice *int, reevaluate func()) {
	if choice == nil || *choice < 0 || *choice >= len(rd.choices) {
		conn.Send(errorFrame(apperr.New(apperr.CodeInvalid,
			apperr.WithMessagef("choice does not exist"))))
		return
	}

	subs.mu.Lock()
	if subs.resolved {
		subs.mu.Unlock()
		conn.Send(errorFrame(apperr.New(apperr.CodeOutOfPhase,
			apperr.WithMessagef("round is over"))))
		return
	}
	if _, dup := subs.picks[name]; dup {
		subs.mu.Unlock()
		conn.Send(errorFrame(apperr.New(apperr.CodeInvalid,
			apperr.WithMessagef("already answered this round"))))
		return
	}
	subs.picks[name] = *choice
	count := len(subs.picks)
	correct := *choice == rd.answer
	score, streak, graded := rd.roster.Grade(name, correct)
	subs.mu.Unlock()

	if graded {
		rd.log.Debug("answer graded",
			zap.String("player", name),
			zap.Bool("correct", correct),
			zap.Int("score", score),
			zap.Int("streak", streak),
		)
	}
	telemetry.AnswersGraded(correct)

	rd.broadcast(types.ServerFrame{Action: types.ActionResponded, Count: count})

	reevaluate()
}

func (rd *Round) broadcast(f types.ServerFrame) {
	rd.roster.Each(func(p *Participant) {
		p.Conn.Send(f)
	})
}
