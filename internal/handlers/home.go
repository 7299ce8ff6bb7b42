package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"azukibar/internal/game"
	"azukibar/internal/viewmodel"
	"azukibar/views/pages"
)

type HomeHandler struct {
	reg *game.Registry
}

func NewHomeHandler(reg *game.Registry) *HomeHandler {
	return &HomeHandler{reg: reg}
}

func (h *HomeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.home)
}

func (h *HomeHandler) home(w http.ResponseWriter, r *http.Request) {
	rooms := h.reg.Rooms()
	data := viewmodel.Lobby{
		Title: "Azuki Bar Dajare",
		Rooms: toRoomCards(rooms),
		Empty: len(rooms) == 0,
	}
	render(w, r, pages.Lobby(data))
}

func toRoomCards(rooms []game.Summary) []viewmodel.RoomCard {
	out := make([]viewmodel.RoomCard, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, viewmodel.RoomCard{
			ID:       room.ID,
			Ruleset:  string(room.Ruleset),
			Status:   string(room.Status),
			Phase:    string(room.Phase),
			HostName: room.HostName,
			Seats:    fmt.Sprintf("%d/%d", room.Players, room.Capacity),
			Round:    fmt.Sprintf("%d/%d", room.Round, room.MaxRounds),
			Joinable: room.Status == game.StatusWaiting && room.Players < room.Capacity,
		})
	}
	return out
}
