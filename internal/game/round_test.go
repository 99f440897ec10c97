package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dexparty/trivia-backend/pkg/types"
)

var testChoices = []string{"Pidgey", "Rattata", "Spearow", "Zubat"}

func newTestRound(t *testing.T, names ...string) (*Round, *Roster, map[string]*fakeConn) {
	t.Helper()

	roster := NewRoster()
	conns := make(map[string]*fakeConn, len(names))
	for _, name := range names {
		c := newFakeConn()
		conns[name] = c
		require.NoError(t, roster.Add(&Participant{Name: name, Conn: c}))
	}

	rd := NewRound(zaptest.NewLogger(t), roster, testChoices, 1, "sprites/rattata.png", 8)
	return rd, roster, conns
}

func choice(i int) types.ClientFrame {
	return types.ClientFrame{Action: types.ActionRespond, Choice: &i}
}

func TestRound_ReadyBarrier_ResolvesWhenAllReady(t *testing.T) {
	rd, _, conns := newTestRound(t, "ash", "misty")

	done := make(chan []string, 1)
	go func() { done <- rd.AwaitReady(context.Background(), 0) }()

	for _, c := range conns {
		f := recvFrame(t, c, time.Second)
		require.Equal(t, types.ActionStarted, f.Action)
	}

	conns["ash"].deliver(types.ClientFrame{Action: types.ActionReady})

	select {
	case <-done:
		t.Fatalf("barrier resolved before all participants were ready")
	case <-time.After(50 * time.Millisecond):
	}

	conns["misty"].deliver(types.ClientFrame{Action: types.ActionReady})

	select {
	case ready := <-done:
		require.ElementsMatch(t, []string{"ash", "misty"}, ready)
	case <-time.After(time.Second):
		t.Fatalf("barrier did not resolve")
	}

	for name, c := range conns {
		require.Zero(t, c.handlerCount(), "phase listeners must be detached from %s", name)
	}
}

func TestRound_ReadyBarrier_EarlyResolveOnDisconnect(t *testing.T) {
	rd, roster, conns := newTestRound(t, "ash", "misty", "brock")

	done := make(chan []string, 1)
	go func() { done <- rd.AwaitReady(context.Background(), 0) }()

	recvAction(t, conns["ash"], types.ActionStarted, time.Second)
	conns["ash"].deliver(types.ClientFrame{Action: types.ActionReady})
	conns["misty"].deliver(types.ClientFrame{Action: types.ActionReady})

	select {
	case <-done:
		t.Fatalf("barrier resolved with a participant still pending")
	case <-time.After(50 * time.Millisecond):
	}

	// brock never readies up; losing his connection satisfies the barrier.
	roster.Remove("brock")

	select {
	case ready := <-done:
		require.ElementsMatch(t, []string{"ash", "misty"}, ready)
	case <-time.After(time.Second):
		t.Fatalf("barrier did not resolve after disconnect")
	}
}

func TestRound_ReadyBarrier_RejectsAnswerSubmission(t *testing.T) {
	rd, _, conns := newTestRound(t, "ash", "misty")

	done := make(chan []string, 1)
	go func() { done <- rd.AwaitReady(context.Background(), 0) }()

	recvAction(t, conns["ash"], types.ActionStarted, time.Second)
	conns["ash"].deliver(choice(1))

	f := recvFrame(t, conns["ash"], time.Second)
	require.Equal(t, types.ActionError, f.Action)
	require.Contains(t, f.Message, "not started")

	recvAction(t, conns["misty"], types.ActionStarted, time.Second)
	recvNoFrame(t, conns["misty"], 50*time.Millisecond)

	conns["ash"].deliver(types.ClientFrame{Action: types.ActionReady})
	conns["misty"].deliver(types.ClientFrame{Action: types.ActionReady})

	select {
	case ready := <-done:
		require.ElementsMatch(t, []string{"ash", "misty"}, ready,
			"a rejected submission must not affect barrier state")
	case <-time.After(time.Second):
		t.Fatalf("barrier did not resolve")
	}
}

func TestRound_ReadyBarrier_DeadlineForcesResolution(t *testing.T) {
	rd, _, conns := newTestRound(t, "ash", "misty")

	done := make(chan []string, 1)
	go func() { done <- rd.AwaitReady(context.Background(), 50*time.Millisecond) }()

	recvAction(t, conns["ash"], types.ActionStarted, time.Second)
	conns["ash"].deliver(types.ClientFrame{Action: types.ActionReady})

	select {
	case ready := <-done:
		require.Equal(t, []string{"ash"}, ready)
	case <-time.After(time.Second):
		t.Fatalf("barrier did not resolve at the deadline")
	}
}

func TestRound_Run_GradesAndBroadcastsResults(t *testing.T) {
	rd, roster, conns := newTestRound(t, "ash", "misty")

	done := make(chan struct{})
	go func() { rd.Run(context.Background(), 0); close(done) }()

	for _, c := range conns {
		f := recvAction(t, c, types.ActionQuestion, time.Second)
		require.Equal(t, testChoices, f.Choices)
		require.Equal(t, "sprites/rattata.png", f.MediaLocator)
		require.Equal(t, 8, f.Pixelation)
	}

	conns["misty"].deliver(choice(1)) // correct
	for _, c := range conns {
		f := recvAction(t, c, types.ActionResponded, time.Second)
		require.Equal(t, 1, f.Count)
	}

	conns["ash"].deliver(choice(0)) // wrong
	for _, c := range conns {
		f := recvAction(t, c, types.ActionResponded, time.Second)
		require.Equal(t, 2, f.Count)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("answer phase did not finalize after full submission")
	}

	mistyResult := recvAction(t, conns["misty"], types.ActionAnswer, time.Second)
	require.NotNil(t, mistyResult.Answer)
	require.Equal(t, 1, *mistyResult.Answer)
	require.NotNil(t, mistyResult.Correct)
	require.True(t, *mistyResult.Correct)

	ashResult := recvAction(t, conns["ash"], types.ActionAnswer, time.Second)
	require.NotNil(t, ashResult.Correct)
	require.False(t, *ashResult.Correct)

	want := []types.LeaderboardEntry{
		{Name: "misty", Score: 100, Streak: 1},
		{Name: "ash", Score: 0, Streak: 0},
	}
	require.Equal(t, want, mistyResult.Leaderboard)
	require.Equal(t, want, ashResult.Leaderboard)

	misty, _ := roster.Get("misty")
	require.Equal(t, 100, misty.Score)
	require.Equal(t, 1, misty.Streak)

	ash, _ := roster.Get("ash")
	require.Zero(t, ash.Score)
	require.Zero(t, ash.Streak)
}

func TestRound_Run_ValidationOrder(t *testing.T) {
	rd, _, conns := newTestRound(t, "ash", "misty")

	done := make(chan struct{})
	go func() { rd.Run(context.Background(), 0); close(done) }()

	recvAction(t, conns["ash"], types.ActionQuestion, time.Second)

	// Index outside the choice set.
	conns["ash"].deliver(choice(4))
	f := recvFrame(t, conns["ash"], time.Second)
	require.Equal(t, types.ActionError, f.Action)
	require.Contains(t, f.Message, "choice")

	// Readiness signal after the question is out.
	conns["ash"].deliver(types.ClientFrame{Action: types.ActionReady})
	f = recvFrame(t, conns["ash"], time.Second)
	require.Equal(t, types.ActionError, f.Action)
	require.Contains(t, f.Message, "already started")

	// First valid submission, then a duplicate.
	conns["ash"].deliver(choice(1))
	recvAction(t, conns["ash"], types.ActionResponded, time.Second)

	conns["ash"].deliver(choice(2))
	f = recvFrame(t, conns["ash"], time.Second)
	require.Equal(t, types.ActionError, f.Action)
	require.Contains(t, f.Message, "already answered")

	conns["misty"].deliver(choice(1))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("answer phase did not finalize")
	}
}

func TestRound_Run_DisconnectShrinksThreshold(t *testing.T) {
	rd, roster, conns := newTestRound(t, "ash", "misty")

	done := make(chan struct{})
	go func() { rd.Run(context.Background(), 0); close(done) }()

	recvAction(t, conns["ash"], types.ActionQuestion, time.Second)
	conns["ash"].deliver(choice(1))

	select {
	case <-done:
		t.Fatalf("phase finalized with a live participant still pending")
	case <-time.After(50 * time.Millisecond):
	}

	roster.Remove("misty")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("disconnect did not trigger finalize")
	}

	f := recvAction(t, conns["ash"], types.ActionAnswer, time.Second)
	require.NotNil(t, f.Correct)
	require.True(t, *f.Correct)
}

func TestRound_Run_FinalizesExactlyOnce(t *testing.T) {
	// Race a short deadline against natural completion; each participant
	// must get exactly one result frame either way.
	rd, _, conns := newTestRound(t, "ash", "misty")

	done := make(chan struct{})
	go func() { rd.Run(context.Background(), 30*time.Millisecond); close(done) }()

	recvAction(t, conns["ash"], types.ActionQuestion, time.Second)
	recvAction(t, conns["misty"], types.ActionQuestion, time.Second)

	conns["ash"].deliver(choice(1))
	conns["misty"].deliver(choice(0))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("answer phase did not finalize")
	}

	// Allow any second (buggy) finalize to land before counting.
	time.Sleep(60 * time.Millisecond)

	for name, c := range conns {
		counts := countActions(c)
		require.Equal(t, 1, counts[types.ActionAnswer],
			"participant %s must receive exactly one result frame", name)
	}
}

func TestRound_Run_SilentParticipantLeftUnchanged(t *testing.T) {
	rd, roster, conns := newTestRound(t, "ash", "misty")

	misty, _ := roster.Get("misty")
	misty.Score = 200
	misty.Streak = 2

	done := make(chan struct{})
	go func() { rd.Run(context.Background(), 30*time.Millisecond); close(done) }()

	recvAction(t, conns["ash"], types.ActionQuestion, time.Second)
	conns["ash"].deliver(choice(1))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("deadline did not finalize the phase")
	}

	f := recvAction(t, conns["misty"], types.ActionAnswer, time.Second)
	require.NotNil(t, f.Correct)
	require.False(t, *f.Correct, "no recorded choice counts as not correct")

	require.Equal(t, 200, misty.Score, "silence must not change the score")
	require.Equal(t, 2, misty.Streak, "silence must not reset the streak")
}

func TestRound_Run_SubmissionAfterFinalizeRejectedWhole(t *testing.T) {
	// A submission dispatched from a read goroutine can land after the
	// result snapshot is taken; it must then be turned away entirely,
	// not graded against a result it no longer appears in.
	rd, roster, conns := newTestRound(t, "ash")

	subs := &submissions{picks: make(map[string]int), resolved: true}
	i := 1
	rd.handleAnswer(subs, "ash", conns["ash"], &i, func() {
		t.Errorf("a rejected submission must not re-evaluate the barrier")
	})

	f := recvFrame(t, conns["ash"], time.Second)
	require.Equal(t, types.ActionError, f.Action)
	require.Contains(t, f.Message, "round is over")
	require.Empty(t, subs.picks)

	ash, _ := roster.Get("ash")
	require.Zero(t, ash.Score)
	require.Zero(t, ash.Streak)
}

func TestRound_PixelationClamped(t *testing.T) {
	roster := NewRoster()
	rd := NewRound(zaptest.NewLogger(t), roster, testChoices, 0, "x.png", 0)
	require.Equal(t, 1, rd.pixelation)
}
