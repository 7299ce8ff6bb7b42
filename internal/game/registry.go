package game

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"azukibar/internal/life"
	"azukibar/internal/scoring"
	"azukibar/pkg/realtime"
)

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Options wire a Registry's collaborators. Zero values get production
// defaults.
type Options struct {
	Scorer    Scorer
	Table     life.Table
	Rand      life.Rand
	Scheduler realtime.Scheduler
	Logger    zerolog.Logger
	Defaults  Settings
	Now       func() time.Time
	Codes     func() string
}

// Registry owns every room and which room each player sits in. Lock order is
// registry then room; rooms never call back into the registry.
type Registry struct {
	mu       sync.Mutex
	store    *realtime.RoomStore[*Room]
	byPlayer map[string]string
	opts     Options
}

// NewRegistry builds a registry over store. It fails when opts carries a
// malformed life table.
func NewRegistry(store *realtime.RoomStore[*Room], opts Options) (*Registry, error) {
	if opts.Scorer == nil {
		opts.Scorer = scoring.NewResilient(nil, 0, opts.Logger)
	}
	if opts.Table == nil {
		opts.Table = life.DefaultTable
	}
	if err := opts.Table.Validate(); err != nil {
		return nil, fmt.Errorf("new registry: %w", err)
	}
	if opts.Rand == nil {
		opts.Rand = life.GlobalRand
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realtime.SystemScheduler{}
	}
	if opts.Defaults == (Settings{}) {
		opts.Defaults = DefaultSettings()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Codes == nil {
		opts.Codes = func() string { return generateCode(6) }
	}
	return &Registry{
		store:    store,
		byPlayer: make(map[string]string),
		opts:     opts,
	}, nil
}

func generateCode(n int) string {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("room code: %v", err))
		}
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}

// Create opens a room with hostID seated as host.
func (g *Registry) Create(hostID, hostName string, req RoomRequest) (*Room, error) {
	settings, err := g.opts.Defaults.apply(req)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if roomID, ok := g.byPlayer[hostID]; ok {
		return nil, fmt.Errorf("%w: player %s already in room %s", ErrState, hostID, roomID)
	}
	return g.createLocked(hostID, hostName, settings)
}

func (g *Registry) createLocked(hostID, hostName string, settings Settings) (*Room, error) {
	id := g.opts.Codes()
	for tries := 0; ; tries++ {
		if _, taken := g.store.Get(id); !taken {
			break
		}
		if tries > 100 {
			return nil, fmt.Errorf("%w: no free room code", ErrState)
		}
		id = g.opts.Codes()
	}
	room := newRoom(id, settings, roomDeps{
		scorer: g.opts.Scorer,
		table:  g.opts.Table,
		rng:    g.opts.Rand,
		sched:  g.opts.Scheduler,
		now:    g.opts.Now,
		log:    g.opts.Logger,
		publish: func(e realtime.Event) {
			g.store.Publish(id, e)
		},
	})
	g.store.Create(id, room)
	if _, err := room.AddPlayer(hostID, hostName); err != nil {
		room.Close()
		g.store.Delete(id)
		return nil, err
	}
	g.byPlayer[hostID] = id
	g.opts.Logger.Info().Str("room", id).Str("ruleset", string(settings.Ruleset)).Str("host", hostID).Msg("room created")
	return room, nil
}

// Join seats a player in an existing room.
func (g *Registry) Join(roomID, playerID, name string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.byPlayer[playerID]; ok {
		return nil, fmt.Errorf("%w: player %s already in room %s", ErrState, playerID, current)
	}
	entry, ok := g.store.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
	}
	if _, err := entry.State.AddPlayer(playerID, name); err != nil {
		return nil, err
	}
	g.byPlayer[playerID] = roomID
	return entry.State, nil
}

// AutoMatch joins the first waiting voting room with a free seat, or opens a
// new one. created reports which happened.
func (g *Registry) AutoMatch(playerID, name string) (room *Room, created bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.byPlayer[playerID]; ok {
		return nil, false, fmt.Errorf("%w: player %s already in room %s", ErrState, playerID, current)
	}
	g.store.Range(func(entry *realtime.Room[*Room]) bool {
		candidate := entry.State
		candidate.mu.Lock()
		joinable := candidate.joinableLocked(RulesetVoting)
		candidate.mu.Unlock()
		if !joinable {
			return true
		}
		if _, joinErr := candidate.AddPlayer(playerID, name); joinErr == nil {
			room = candidate
			return false
		}
		return true
	})
	if room != nil {
		g.byPlayer[playerID] = room.ID()
		return room, false, nil
	}
	settings, err := g.opts.Defaults.apply(RoomRequest{Ruleset: RulesetVoting})
	if err != nil {
		return nil, false, err
	}
	room, err = g.createLocked(playerID, name, settings)
	if err != nil {
		return nil, false, err
	}
	return room, true, nil
}

// Leave removes a player from their room, deleting the room once empty.
func (g *Registry) Leave(playerID string) (roomID string, deleted bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	roomID, ok := g.byPlayer[playerID]
	if !ok {
		return "", false, fmt.Errorf("%w: player %s is not in a room", ErrNotFound, playerID)
	}
	delete(g.byPlayer, playerID)
	entry, ok := g.store.Get(roomID)
	if !ok {
		return roomID, true, nil
	}
	empty, err := entry.State.RemovePlayer(playerID)
	if err != nil {
		return roomID, false, err
	}
	if empty {
		entry.State.Close()
		g.store.Delete(roomID)
		g.opts.Logger.Info().Str("room", roomID).Msg("room deleted")
	}
	return roomID, empty, nil
}

// Spectate adds a watcher to a room.
func (g *Registry) Spectate(roomID, spectatorID, name string) (*Room, error) {
	entry, ok := g.store.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
	}
	if err := entry.State.AddSpectator(spectatorID, name); err != nil {
		return nil, err
	}
	return entry.State, nil
}

// SweepExpired deletes rooms idle for longer than maxAge and returns their ids.
func (g *Registry) SweepExpired(maxAge time.Duration) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.opts.Now()
	var removed []string
	g.store.Range(func(entry *realtime.Room[*Room]) bool {
		if now.Sub(entry.State.LastActivity()) > maxAge {
			removed = append(removed, entry.ID)
		}
		return true
	})
	for _, id := range removed {
		if entry, ok := g.store.Get(id); ok {
			entry.State.Close()
		}
		g.store.Delete(id)
		for playerID, roomID := range g.byPlayer {
			if roomID == id {
				delete(g.byPlayer, playerID)
			}
		}
	}
	if len(removed) > 0 {
		g.opts.Logger.Info().Strs("rooms", removed).Msg("swept expired rooms")
	}
	return removed
}

// RunSweeper sweeps rooms idle for longer than maxAge every interval until
// ctx is done.
func (g *Registry) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.SweepExpired(maxAge)
		}
	}
}

// Room looks up a room by code.
func (g *Registry) Room(id string) (*Room, bool) {
	entry, ok := g.store.Get(id)
	if !ok {
		return nil, false
	}
	return entry.State, true
}

// PlayerRoom returns the room a player sits in.
func (g *Registry) PlayerRoom(playerID string) (*Room, bool) {
	g.mu.Lock()
	roomID, ok := g.byPlayer[playerID]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	return g.Room(roomID)
}

// Rooms lists every room.
func (g *Registry) Rooms() []Summary {
	var out []Summary
	g.store.Range(func(entry *realtime.Room[*Room]) bool {
		out = append(out, entry.State.Summary())
		return true
	})
	return out
}

// Broadcaster returns a room's event hub.
func (g *Registry) Broadcaster(roomID string) (*realtime.Broadcaster, bool) {
	return g.store.Broadcaster(roomID)
}

// Close stops every room's timers.
func (g *Registry) Close() {
	g.store.Range(func(entry *realtime.Room[*Room]) bool {
		entry.State.Close()
		return true
	})
}
