package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dexparty/trivia-backend/internal/game"
	"github.com/dexparty/trivia-backend/internal/ws"
)

func SetupRoutes(dir *game.Directory, gw *ws.Gateway) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/sessions", ListSessions(dir))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", gw.Handler())
	return r
}
