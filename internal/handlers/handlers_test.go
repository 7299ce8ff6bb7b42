package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azukibar/internal/game"
	"azukibar/internal/scoring"
	"azukibar/pkg/realtime"
)

type staticScorer struct{}

func (staticScorer) Score(context.Context, string) scoring.Evaluation {
	return scoring.Evaluation{Temperature: 0, Quality: 5, Comment: "まあまあ", Source: "test"}
}

func newTestRouter(t *testing.T) (http.Handler, *game.Registry) {
	t.Helper()
	var codes atomic.Int32
	reg, err := game.NewRegistry(realtime.NewRoomStore[*game.Room](), game.Options{
		Scorer:    staticScorer{},
		Scheduler: &realtime.ManualScheduler{},
		Logger:    zerolog.Nop(),
		Codes: func() string {
			return fmt.Sprintf("ROOM%02d", codes.Add(1))
		},
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	r := chi.NewRouter()
	rooms := NewRoomHandler(reg, zerolog.Nop())
	rooms.RegisterRoutes(r)
	rooms.RegisterStreamRoutes(r)
	NewHomeHandler(reg).RegisterRoutes(r)
	return r, reg
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
}

func TestCreateRoomSetsCookie(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "alice", "playerName": "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[joinResponse](t, rec)
	assert.Equal(t, "alice", resp.PlayerID)
	assert.True(t, resp.Created)
	assert.Equal(t, "ROOM01", resp.Room.ID)
	assert.Equal(t, game.StatusWaiting, resp.Room.Status)
	require.Len(t, resp.Room.Players, 1)
	assert.True(t, resp.Room.Players[0].IsHost)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "azukibar_player_ROOM01", cookies[0].Name)
	assert.Equal(t, "alice", cookies[0].Value)
}

func TestCreateRoomGeneratesPlayerID(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerName": "Anon"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decode[joinResponse](t, rec).PlayerID)
}

func TestErrorStatuses(t *testing.T) {
	h, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "alice", "playerName": "Alice"}).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/rooms/ROOM01/join", map[string]any{"playerId": "bob", "playerName": "Bob"}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		msg    string
	}{
		{"unknown room", http.MethodGet, "/api/rooms/NOPE", nil, http.StatusNotFound, "not found"},
		{"not host", http.MethodPost, "/api/rooms/ROOM01/start", map[string]any{"playerId": "bob"}, http.StatusForbidden, "only the host"},
		{"stranger", http.MethodPost, "/api/rooms/ROOM01/start", map[string]any{"playerId": "eve"}, http.StatusNotFound, "not in room"},
		{"no player", http.MethodPost, "/api/rooms/ROOM01/start", nil, http.StatusBadRequest, "playerId required"},
		{"double join", http.MethodPost, "/api/rooms/ROOM01/join", map[string]any{"playerId": "bob", "playerName": "Bob"}, http.StatusConflict, "already in room"},
		{"bad ruleset", http.MethodPost, "/api/rooms", map[string]any{"playerId": "carol", "playerName": "Carol", "ruleset": "chess"}, http.StatusBadRequest, "invalid input"},
		{"too early to vote", http.MethodPost, "/api/rooms/ROOM01/vote", map[string]any{"playerId": "alice", "submissionId": 1}, http.StatusConflict, "not accepting votes"},
		{"no report yet", http.MethodGet, "/api/rooms/ROOM01/report", nil, http.StatusConflict, "has not finished"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, errorBody(t, rec), tt.msg)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "malformed body")
}

func TestRoomFullCapacity(t *testing.T) {
	h, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "a", "playerName": "A", "capacity": 2}).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/rooms/ROOM01/join", map[string]any{"playerId": "b", "playerName": "B"}).Code)
	rec := do(t, h, http.MethodPost, "/api/rooms/ROOM01/join", map[string]any{"playerId": "c", "playerName": "C"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlayThroughVoting(t *testing.T) {
	h, reg := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "alice", "playerName": "Alice"}).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/rooms/ROOM01/join", map[string]any{"playerId": "bob", "playerName": "Bob"}).Code)

	rec := do(t, h, http.MethodPost, "/api/rooms/ROOM01/start", map[string]any{"playerId": "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, game.PhaseDajare, decode[game.Snapshot](t, rec).Phase)

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/dajare", map[string]any{"playerId": "alice", "dajare": "布団が吹っ飛んだ"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	aliceSub := decode[game.Submission](t, rec)
	assert.Equal(t, "alice", aliceSub.PlayerID)

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/dajare", map[string]any{"playerId": "bob", "dajare": "カエルが帰る"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bobSub := decode[game.Submission](t, rec)

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/vote", map[string]any{"playerId": "alice", "submissionId": aliceSub.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/vote", map[string]any{"playerId": "alice", "submissionId": bobSub.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[game.Snapshot](t, rec)
	assert.Equal(t, game.PhaseVoting, snap.Phase)
	require.Len(t, snap.Submissions, 2)

	rec = do(t, h, http.MethodGet, "/api/rooms/ROOM01/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[struct {
		Submissions []game.Submission `json:"submissions"`
	}](t, rec)
	assert.Len(t, results.Submissions, 2)

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/end", map[string]any{"playerId": "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, game.StatusFinished, decode[game.Snapshot](t, rec).Status)

	rec = do(t, h, http.MethodGet, "/api/rooms/ROOM01/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[game.Report](t, rec)
	assert.Equal(t, "manual", report.Reason)
	assert.Equal(t, 2, report.TotalSubmissions)

	room, ok := reg.Room("ROOM01")
	require.True(t, ok)
	assert.Empty(t, room.PendingTimers())
}

func TestActionUsesCookie(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "alice", "playerName": "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	cookie := rec.Result().Cookies()[0]
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/rooms/ROOM01/join", map[string]any{"playerId": "bob", "playerName": "Bob"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/ROOM01/start", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	h, reg := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "alice", "playerName": "Alice"}).Code)

	rec := do(t, h, http.MethodPost, "/api/rooms/ROOM01/leave", map[string]any{"playerId": "bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/leave", map[string]any{"playerId": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["deleted"])
	_, ok := reg.Room("ROOM01")
	assert.False(t, ok)
}

func TestAutoMatchAndList(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/rooms/auto-match", map[string]any{"playerId": "a", "playerName": "A"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/rooms/auto-match", map[string]any{"playerId": "b", "playerName": "B"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[joinResponse](t, rec)
	assert.False(t, resp.Created)
	assert.Equal(t, "ROOM01", resp.Room.ID)

	rec = do(t, h, http.MethodGet, "/api/rooms", nil)
	list := decode[struct {
		Rooms []game.Summary `json:"rooms"`
	}](t, rec)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, 2, list.Rooms[0].Players)
	assert.Equal(t, "A", list.Rooms[0].HostName)
}

func TestSpectateAndRole(t *testing.T) {
	h, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "alice", "playerName": "Alice"}).Code)

	rec := do(t, h, http.MethodPost, "/api/rooms/ROOM01/spectate", map[string]any{"spectatorId": "watcher"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "watcher", decode[map[string]any](t, rec)["spectatorId"])

	rec = do(t, h, http.MethodGet, "/api/rooms/ROOM01", nil)
	assert.Equal(t, 1, decode[game.Snapshot](t, rec).Spectators)

	rec = do(t, h, http.MethodGet, "/api/rooms/ROOM01/role?playerId=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/leave", map[string]any{"spectatorId": "watcher"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodGet, "/api/rooms/ROOM01", nil)
	assert.Equal(t, 0, decode[game.Snapshot](t, rec).Spectators)

	rec = do(t, h, http.MethodPost, "/api/rooms/ROOM01/leave", map[string]any{"spectatorId": "watcher"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/rooms/ROOM01", nil)
	assert.Equal(t, []string{"alice"}, playerIDs(decode[game.Snapshot](t, rec)))
}

func playerIDs(snap game.Snapshot) []string {
	ids := make([]string, 0, len(snap.Players))
	for _, p := range snap.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestLobbyPage(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No rooms yet")

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "x", "playerName": "<b>X</b>"}).Code)
	rec = do(t, h, http.MethodGet, "/", nil)
	body := rec.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, `data-room="ROOM01"`)
	assert.Contains(t, body, "&lt;b&gt;X&lt;/b&gt;")
	assert.Contains(t, body, "1/4")
}

func TestStreamSendsSnapshotAndEvents(t *testing.T) {
	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/rooms", map[string]any{"playerId": "alice", "playerName": "Alice"}).Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/rooms/ROOM01/stream?playerId=alice", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func(event string) string {
		for lines.Scan() {
			if lines.Text() == "event: "+event && lines.Scan() {
				return strings.TrimPrefix(lines.Text(), "data: ")
			}
		}
		t.Fatalf("no %s event: %v", event, lines.Err())
		return ""
	}

	var snap game.Snapshot
	require.NoError(t, json.Unmarshal([]byte(next("snapshot")), &snap))
	assert.Equal(t, "ROOM01", snap.ID)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/rooms/ROOM01/join", map[string]any{"playerId": "bob", "playerName": "Bob"}).Code)
	require.NoError(t, json.Unmarshal([]byte(next(game.EventRoomUpdated)), &snap))
	assert.Len(t, snap.Players, 2)
}
