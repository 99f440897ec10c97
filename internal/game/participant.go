package game

// PointsPerRound is the fixed score awarded for a correct answer.
const PointsPerRound = 100

// Participant is one named, scored actor in a session, backed by a single
// connection. Score only ever increases; streak resets on a wrong answer.
// A participant who submits nothing in a round is left untouched.
//
// Fields are guarded by the owning Roster's lock.
type Participant struct {
	Name   string
	Score  int
	Streak int
	Conn   Conn
}

// grade applies one answer submission to the participant's counters.
func (p *Participant) grade(correct bool) {
	if correct {
		p.Streak++
		p.Score += PointsPerRound
	} else {
		p.Streak = 0
	}
}
