package pages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azukibar/internal/viewmodel"
)

func render(t *testing.T, data viewmodel.Lobby) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, Lobby(data).Render(context.Background(), &sb))
	return sb.String()
}

func TestLobby_Empty(t *testing.T) {
	html := render(t, viewmodel.Lobby{Title: "Azuki Bar Dajare", Empty: true})
	assert.Contains(t, html, "<title>Azuki Bar Dajare</title>")
	assert.Contains(t, html, `<p class="empty">No rooms yet.</p>`)
	assert.NotContains(t, html, "<table")
}

func TestLobby_RoomRows(t *testing.T) {
	html := render(t, viewmodel.Lobby{
		Title: "Azuki Bar Dajare",
		Rooms: []viewmodel.RoomCard{
			{ID: "ABC234", Ruleset: "voting", Status: "waiting", Phase: "waiting", HostName: "<i>Hana</i>", Seats: "1/4", Round: "0/3", Joinable: true},
			{ID: "XYZ789", Ruleset: "roles", Status: "playing", Phase: "dajare", HostName: "Ken", Seats: "4/4", Round: "1/3"},
		},
	})
	assert.Contains(t, html, `<tr class="room joinable" data-room="ABC234">`)
	assert.Contains(t, html, `<tr class="room" data-room="XYZ789">`)
	assert.Contains(t, html, "&lt;i&gt;Hana&lt;/i&gt;")
	assert.Contains(t, html, "<td>playing / dajare</td>")
}
