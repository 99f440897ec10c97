package types

// Action is the mandatory discriminator on every protocol frame.
type Action string

// Client -> Server
const (
	ActionHost    Action = "HOST"
	ActionJoin    Action = "JOIN"
	ActionStart   Action = "START"
	ActionCancel  Action = "CANCEL"
	ActionLeave   Action = "LEAVE"
	ActionReady   Action = "READY"
	ActionRespond Action = "RESPOND"
)

// Server -> Client
const (
	ActionHosted    Action = "HOSTED"
	ActionJoined    Action = "JOINED"
	ActionLeft      Action = "LEFT"
	ActionStarted   Action = "STARTED"
	ActionQuestion  Action = "QUESTION"
	ActionResponded Action = "RESPONDED"
	ActionAnswer    Action = "ANSWER"
	ActionEnded     Action = "ENDED"
	ActionCancelled Action = "CANCELLED"
	ActionError     Action = "ERROR"
)

type ClientFrame struct {
	Action  Action `json:"action"`
	Name    string `json:"name,omitempty"`    // HOST / JOIN
	Session string `json:"session,omitempty"` // JOIN
	Choice  *int   `json:"choice,omitempty"`  // RESPOND
}

type ServerFrame struct {
	Action       Action             `json:"action"`
	ID           string             `json:"id,omitempty"`
	Players      []string           `json:"players,omitempty"`
	Choices      []string           `json:"choices,omitempty"`
	MediaLocator string             `json:"mediaLocator,omitempty"`
	Pixelation   int                `json:"pixelation,omitempty"`
	Count        int                `json:"count,omitempty"`
	Answer       *int               `json:"answer,omitempty"`
	Correct      *bool              `json:"correct,omitempty"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard,omitempty"`
	Message      string             `json:"message,omitempty"`
}

// LeaderboardEntry is one row of a ranked leaderboard, ordered by score
// descending, then streak descending, then name ascending.
type LeaderboardEntry struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Streak int    `json:"streak"`
}
