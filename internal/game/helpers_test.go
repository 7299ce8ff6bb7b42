package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"azukibar/internal/scoring"
	"azukibar/pkg/realtime"
)

var (
	evalHot  = scoring.Evaluation{Temperature: 9, Quality: 6, Comment: "hot", Source: "test"}
	evalWarm = scoring.Evaluation{Temperature: 4, Quality: 4, Comment: "warm", Source: "test"}
	evalCold = scoring.Evaluation{Temperature: -9, Quality: 2, Comment: "cold", Source: "test"}
	evalMid  = scoring.Evaluation{Temperature: 0, Quality: 5, Comment: "mid", Source: "test"}
)

type textScorer map[string]scoring.Evaluation

func (m textScorer) Score(_ context.Context, text string) scoring.Evaluation {
	if e, ok := m[text]; ok {
		return e
	}
	return evalMid
}

var defaultScorer = textScorer{"hot": evalHot, "warm": evalWarm, "cold": evalCold}

type fixedRand int

func (f fixedRand) Intn(n int) int {
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	reg   *Registry
	sched *realtime.ManualScheduler
	clock *fakeClock
	codes int
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		sched: &realtime.ManualScheduler{},
		clock: &fakeClock{now: time.Date(2024, 7, 25, 12, 0, 0, 0, time.UTC)},
	}
	opts := Options{
		Scorer:    defaultScorer,
		Rand:      fixedRand(0),
		Scheduler: f.sched,
		Logger:    zerolog.Nop(),
		Defaults:  DefaultSettings(),
		Now:       f.clock.Now,
		Codes: func() string {
			f.codes++
			return "ROOM" + string(rune('A'+f.codes-1)) + "2"
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	reg, err := NewRegistry(realtime.NewRoomStore[*Room](), opts)
	require.NoError(t, err)
	f.reg = reg
	return f
}

// playingRoom creates a voting room with the given players and starts it.
func (f *fixture) playingRoom(t *testing.T, req RoomRequest, ids ...string) *Room {
	t.Helper()
	room, err := f.reg.Create(ids[0], "player-"+ids[0], req)
	require.NoError(t, err)
	for _, id := range ids[1:] {
		_, err := f.reg.Join(room.ID(), id, "player-"+id)
		require.NoError(t, err)
	}
	if room.Snapshot().Status == StatusWaiting {
		require.NoError(t, room.Start(ids[0]))
	}
	return room
}

func submit(t *testing.T, room *Room, playerID, text string) Submission {
	t.Helper()
	sub, err := room.Submit(context.Background(), playerID, text)
	require.NoError(t, err)
	return sub
}

func submissionOf(t *testing.T, room *Room, playerID string) Submission {
	t.Helper()
	snap := room.Snapshot()
	for _, s := range snap.Submissions {
		if s.PlayerID == playerID && s.Round == snap.Round {
			return s
		}
	}
	t.Fatalf("no submission by %s in round %d", playerID, snap.Round)
	return Submission{}
}

func drain(ch chan realtime.Event) []realtime.Event {
	var out []realtime.Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}
