package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	ws "github.com/waverly-chat/waverly/internal/adapter/driven/gateway/ws"
	"github.com/waverly-chat/waverly/internal/core/service"
)

type Handler struct {
	Presence *service.Presence
	Relay    *service.Relay
	Typing   *service.TypingTracker
	Hub      *ws.Hub
}

func NewHandler(presence *service.Presence, relay *service.Relay, typing *service.TypingTracker, hub *ws.Hub) *Handler {
	return &Handler{
		Presence: presence,
		Relay:    relay,
		Typing:   typing,
		Hub:      hub,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/ws", h.ServeWS)

	return r
}
