package game

import (
	"sort"

	"github.com/dexparty/trivia-backend/pkg/types"
)

// Leaderboard ranks the current participants: score descending, then streak
// descending, then name ascending. It is recomputed fresh on every call so it
// always reflects live scores.
func Leaderboard(r *Roster) []types.LeaderboardEntry {
	entries := r.Standings()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Streak != b.Streak {
			return a.Streak > b.Streak
		}
		return a.Name < b.Name
	})

	return entries
}
