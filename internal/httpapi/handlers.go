package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dexparty/trivia-backend/internal/game"
)

// ListSessions returns the currently joinable sessions for discovery.
func ListSessions(dir *game.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Sessions []game.SessionSummary `json:"sessions"`
		}{Sessions: dir.List()})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
