package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"azukibar/internal/game"
)

const maxBody = 64 << 10

// RoomHandler is the JSON mirror of the realtime actions.
type RoomHandler struct {
	reg *game.Registry
	log zerolog.Logger
}

func NewRoomHandler(reg *game.Registry, log zerolog.Logger) *RoomHandler {
	return &RoomHandler{reg: reg, log: log.With().Str("component", "http").Logger()}
}

func (h *RoomHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.health)
	r.Get("/api/rooms", h.listRooms)
	r.Post("/api/rooms", h.createRoom)
	r.Post("/api/rooms/auto-match", h.autoMatch)
	r.Get("/api/rooms/{id}", h.getRoom)
	r.Post("/api/rooms/{id}/join", h.joinRoom)
	r.Post("/api/rooms/{id}/start", h.startGame)
	r.Post("/api/rooms/{id}/dajare", h.submitDajare)
	r.Post("/api/rooms/{id}/vote", h.vote)
	r.Post("/api/rooms/{id}/ability", h.useAbility)
	r.Post("/api/rooms/{id}/end", h.endGame)
	r.Post("/api/rooms/{id}/leave", h.leave)
	r.Post("/api/rooms/{id}/spectate", h.spectate)
	r.Get("/api/rooms/{id}/role", h.role)
	r.Get("/api/rooms/{id}/results", h.results)
	r.Get("/api/rooms/{id}/report", h.report)
}

// RegisterStreamRoutes mounts the long-lived SSE endpoint. It must sit outside
// any request timeout middleware.
func (h *RoomHandler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/api/rooms/{id}/stream", h.stream)
}

type playerRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type leaveRequest struct {
	PlayerID    string `json:"playerId"`
	SpectatorID string `json:"spectatorId"`
}

type createRequest struct {
	playerRequest
	Ruleset   string `json:"ruleset"`
	Capacity  int    `json:"capacity"`
	MaxRounds int    `json:"maxRounds"`
}

type dajareRequest struct {
	PlayerID string `json:"playerId"`
	Dajare   string `json:"dajare"`
}

type voteRequest struct {
	PlayerID     string `json:"playerId"`
	SubmissionID int    `json:"submissionId"`
}

type spectateRequest struct {
	SpectatorID string `json:"spectatorId"`
	Name        string `json:"name"`
}

type joinResponse struct {
	PlayerID string        `json:"playerId"`
	Created  bool          `json:"created,omitempty"`
	Room     game.Snapshot `json:"room"`
}

func (h *RoomHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  len(h.reg.Rooms()),
		"time":   time.Now().UTC(),
	})
}

func (h *RoomHandler) listRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": h.reg.Rooms()})
}

func (h *RoomHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	playerID := orNewID(req.PlayerID)
	room, err := h.reg.Create(playerID, req.PlayerName, game.RoomRequest{
		Ruleset:   game.Ruleset(req.Ruleset),
		Capacity:  req.Capacity,
		MaxRounds: req.MaxRounds,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	setPlayerCookie(w, room.ID(), playerID)
	writeJSON(w, http.StatusCreated, joinResponse{PlayerID: playerID, Created: true, Room: room.Snapshot()})
}

func (h *RoomHandler) autoMatch(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	playerID := orNewID(req.PlayerID)
	room, created, err := h.reg.AutoMatch(playerID, req.PlayerName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	setPlayerCookie(w, room.ID(), playerID)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, joinResponse{PlayerID: playerID, Created: created, Room: room.Snapshot()})
}

func (h *RoomHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot())
}

func (h *RoomHandler) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	roomID := chi.URLParam(r, "id")
	playerID := orNewID(req.PlayerID)
	room, err := h.reg.Join(roomID, playerID, req.PlayerName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	setPlayerCookie(w, roomID, playerID)
	writeJSON(w, http.StatusOK, joinResponse{PlayerID: playerID, Room: room.Snapshot()})
}

func (h *RoomHandler) startGame(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, (*game.Room).Start)
}

func (h *RoomHandler) useAbility(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, (*game.Room).UseAbility)
}

func (h *RoomHandler) endGame(w http.ResponseWriter, r *http.Request) {
	h.playerAction(w, r, (*game.Room).End)
}

func (h *RoomHandler) playerAction(w http.ResponseWriter, r *http.Request, act func(*game.Room, string) error) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	room, playerID, ok := h.member(w, r, req.PlayerID)
	if !ok {
		return
	}
	if err := act(room, playerID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot())
}

func (h *RoomHandler) submitDajare(w http.ResponseWriter, r *http.Request) {
	var req dajareRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	room, playerID, ok := h.member(w, r, req.PlayerID)
	if !ok {
		return
	}
	sub, err := room.Submit(r.Context(), playerID, req.Dajare)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *RoomHandler) vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	room, playerID, ok := h.member(w, r, req.PlayerID)
	if !ok {
		return
	}
	if err := room.Vote(playerID, req.SubmissionID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot())
}

func (h *RoomHandler) leave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	roomID := chi.URLParam(r, "id")
	if req.SpectatorID != "" {
		h.stopWatching(w, roomID, req.SpectatorID)
		return
	}
	playerID := playerFrom(r, roomID, req.PlayerID)
	if current, ok := h.reg.PlayerRoom(playerID); !ok || current.ID() != roomID {
		h.writeError(w, fmt.Errorf("%w: player %q is not in room %s", game.ErrNotFound, playerID, roomID))
		return
	}
	_, deleted, err := h.reg.Leave(playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	clearPlayerCookie(w, roomID)
	writeJSON(w, http.StatusOK, map[string]any{"roomId": roomID, "deleted": deleted})
}

func (h *RoomHandler) stopWatching(w http.ResponseWriter, roomID, spectatorID string) {
	room, ok := h.reg.Room(roomID)
	if !ok {
		h.writeError(w, fmt.Errorf("%w: room %s", game.ErrNotFound, roomID))
		return
	}
	if !room.RemoveSpectator(spectatorID) {
		h.writeError(w, fmt.Errorf("%w: spectator %q is not watching room %s", game.ErrNotFound, spectatorID, roomID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomId": roomID, "spectatorId": spectatorID})
}

func (h *RoomHandler) spectate(w http.ResponseWriter, r *http.Request) {
	var req spectateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	spectatorID := orNewID(req.SpectatorID)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "spectator"
	}
	room, err := h.reg.Spectate(chi.URLParam(r, "id"), spectatorID, name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spectatorId": spectatorID, "room": room.Snapshot()})
}

func (h *RoomHandler) role(w http.ResponseWriter, r *http.Request) {
	room, playerID, ok := h.member(w, r, r.URL.Query().Get("playerId"))
	if !ok {
		return
	}
	role, err := room.Role(playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playerId": playerID, "role": role})
}

func (h *RoomHandler) results(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":     room.Results(),
		"submissions": room.Submissions(),
	})
}

func (h *RoomHandler) report(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	rep, done := room.Report()
	if !done {
		h.writeError(w, fmt.Errorf("%w: game in room %s has not finished", game.ErrState, room.ID()))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *RoomHandler) stream(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	hub, ok := h.reg.Broadcaster(room.ID())
	if !ok {
		h.writeError(w, fmt.Errorf("%w: room %s", game.ErrNotFound, room.ID()))
		return
	}
	// The server's write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	playerID := playerFrom(r, room.ID(), r.URL.Query().Get("playerId"))
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	send := func(name string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			h.log.Error().Err(err).Str("event", name).Msg("encode event")
			return
		}
		writeSSE(w, name, string(b))
		flusher.Flush()
	}
	send("snapshot", room.Snapshot())

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub:
			if !open {
				return
			}
			if event.To != "" && event.To != playerID {
				continue
			}
			send(event.Name, event.Payload)
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}

func (h *RoomHandler) room(w http.ResponseWriter, r *http.Request) (*game.Room, bool) {
	roomID := chi.URLParam(r, "id")
	room, ok := h.reg.Room(roomID)
	if !ok {
		h.writeError(w, fmt.Errorf("%w: room %s", game.ErrNotFound, roomID))
		return nil, false
	}
	return room, true
}

// member resolves the acting player, who must sit in the room named by the
// path.
func (h *RoomHandler) member(w http.ResponseWriter, r *http.Request, requested string) (*game.Room, string, bool) {
	room, ok := h.room(w, r)
	if !ok {
		return nil, "", false
	}
	playerID := playerFrom(r, room.ID(), requested)
	if playerID == "" {
		h.writeError(w, fmt.Errorf("%w: playerId required", game.ErrValidation))
		return nil, "", false
	}
	if !room.HasPlayer(playerID) {
		h.writeError(w, fmt.Errorf("%w: player %q is not in room %s", game.ErrNotFound, playerID, room.ID()))
		return nil, "", false
	}
	return room, playerID, true
}

func (h *RoomHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrNotHost):
		status = http.StatusForbidden
	case errors.Is(err, game.ErrState), errors.Is(err, game.ErrCapacity):
		status = http.StatusConflict
	case errors.Is(err, game.ErrValidation):
		status = http.StatusBadRequest
	default:
		h.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed body: %v", game.ErrValidation, err)
	}
	return nil
}

func orNewID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

func playerFrom(r *http.Request, roomID, requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return playerIDFromCookie(r, roomID)
}

func playerIDFromCookie(r *http.Request, roomID string) string {
	cookie, err := r.Cookie(playerCookieName(roomID))
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setPlayerCookie(w http.ResponseWriter, roomID string, playerID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName(roomID),
		Value:    playerID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
}

func clearPlayerCookie(w http.ResponseWriter, roomID string) {
	http.SetCookie(w, &http.Cookie{
		Name:   playerCookieName(roomID),
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func playerCookieName(roomID string) string {
	return "azukibar_player_" + roomID
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSSE(w http.ResponseWriter, event string, data string) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	for _, line := range strings.Split(data, "\n") {
		_, _ = w.Write([]byte("data: " + line + "\n"))
	}
	_, _ = w.Write([]byte("\n"))
}
