package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"azukibar/internal/life"
	"azukibar/internal/scoring"
	"azukibar/pkg/realtime"
)

// Scorer judges dajare and never fails.
type Scorer interface {
	Score(ctx context.Context, text string) scoring.Evaluation
}

type roomDeps struct {
	scorer  Scorer
	table   life.Table
	rng     life.Rand
	sched   realtime.Scheduler
	now     func() time.Time
	log     zerolog.Logger
	publish func(realtime.Event)
}

// Room is one game. All fields are guarded by mu; exported methods lock it,
// helpers ending in Locked expect it held.
type Room struct {
	mu       sync.Mutex
	id       string
	settings Settings
	deps     roomDeps

	status     Status
	phase      Phase
	players    []*Player
	spectators map[string]string
	clock      realtime.TimedRounds
	timers     *realtime.Timers

	submissions []*Submission
	nextSubID   int
	votes       map[string]int
	settling    bool
	results     []RoundResult
	report      *Report

	sharedLife int
	endReason  string
	closed     bool

	createdAt    time.Time
	lastActivity time.Time
	endedAt      time.Time
}

func newRoom(id string, settings Settings, deps roomDeps) *Room {
	now := deps.now()
	r := &Room{
		id:           id,
		settings:     settings,
		deps:         deps,
		status:       StatusWaiting,
		phase:        PhaseWaiting,
		spectators:   make(map[string]string),
		clock:        realtime.TimedRounds{Rounds: settings.MaxRounds},
		votes:        make(map[string]int),
		sharedLife:   life.Initial,
		createdAt:    now,
		lastActivity: now,
	}
	r.timers = realtime.NewTimers(deps.sched, &r.mu)
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Settings() Settings { return r.settings }

func (r *Room) touchLocked() {
	r.lastActivity = r.deps.now()
}

func (r *Room) emitLocked(name string, payload any) {
	if r.deps.publish != nil {
		r.deps.publish(realtime.Event{Name: name, Payload: payload})
	}
}

func (r *Room) emitToLocked(playerID, name string, payload any) {
	if r.deps.publish != nil {
		r.deps.publish(realtime.Event{Name: name, Payload: payload, To: playerID})
	}
}

func (r *Room) checkOpenLocked() error {
	if r.closed {
		return fmt.Errorf("%w: room %s is closed", ErrNotFound, r.id)
	}
	return nil
}

func (r *Room) playerLocked(id string) (*Player, int) {
	for i, p := range r.players {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

func (r *Room) hostLocked() *Player {
	for _, p := range r.players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return name, nil
}

// AddPlayer seats a player. The first player becomes host. Roles and solo
// rooms start on their own once full.
func (r *Room) AddPlayer(id, name string) (PlayerView, error) {
	if strings.TrimSpace(id) == "" {
		return PlayerView{}, fmt.Errorf("%w: player id required", ErrValidation)
	}
	name, err := cleanName(name)
	if err != nil {
		return PlayerView{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return PlayerView{}, err
	}
	if r.status != StatusWaiting {
		return PlayerView{}, fmt.Errorf("%w: room %s is not accepting players", ErrState, r.id)
	}
	if p, _ := r.playerLocked(id); p != nil {
		return PlayerView{}, fmt.Errorf("%w: player %s already in room", ErrState, id)
	}
	if len(r.players) >= r.settings.Capacity {
		return PlayerView{}, fmt.Errorf("%w: %d/%d players", ErrCapacity, len(r.players), r.settings.Capacity)
	}
	p := &Player{
		ID:         id,
		Name:       name,
		IsHost:     len(r.players) == 0,
		Life:       life.Initial,
		Efficiency: 1,
		JoinedAt:   r.deps.now(),
	}
	r.players = append(r.players, p)
	r.touchLocked()
	r.emitLocked(EventRoomUpdated, r.snapshotLocked())

	if r.settings.Ruleset != RulesetVoting && len(r.players) == r.settings.Capacity {
		r.startLocked()
	}
	return r.viewLocked(p), nil
}

// Start begins the game. Only the host may start a voting room.
func (r *Room) Start(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	p, _ := r.playerLocked(playerID)
	if p == nil {
		return fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if !p.IsHost {
		return ErrNotHost
	}
	if r.status != StatusWaiting {
		return fmt.Errorf("%w: game already started", ErrState)
	}
	need := MinCapacity
	if r.settings.Ruleset == RulesetSolo {
		need = 1
	}
	if len(r.players) < need {
		return fmt.Errorf("%w: need at least %d players", ErrState, need)
	}
	r.startLocked()
	return nil
}

func (r *Room) startLocked() {
	now := r.deps.now()
	r.status = StatusPlaying
	r.phase = PhaseDajare
	r.clock.Start(now)
	r.sharedLife = life.Initial
	for _, p := range r.players {
		p.Life = life.Initial
		p.Score = 0
		p.Efficiency = 1
		p.submitted = false
		p.votedFor = 0
	}
	r.touchLocked()

	if r.settings.Ruleset == RulesetRoles {
		r.assignRolesLocked()
	}
	if r.settings.Ruleset != RulesetVoting && r.settings.TimeLimit > 0 {
		if r.settings.Ruleset == RulesetSolo {
			r.clock.EnterPhase(now, r.settings.TimeLimit)
		}
		r.timers.Schedule(timerDeadline, r.settings.TimeLimit, r.deadlineLocked)
	}
	r.deps.log.Info().Str("room", r.id).Str("ruleset", string(r.settings.Ruleset)).Int("players", len(r.players)).Msg("game started")
	r.emitLocked(EventGameStarted, r.snapshotLocked())
}

func (r *Room) deadlineLocked() {
	if r.status != StatusPlaying {
		return
	}
	switch r.settings.Ruleset {
	case RulesetSolo:
		r.finishLocked(ReasonTimeout)
	case RulesetRoles:
		r.finishLocked(ReasonDisruptorWins)
	}
}

// End stops a game early. Host only.
func (r *Room) End(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	p, _ := r.playerLocked(playerID)
	if p == nil {
		return fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if !p.IsHost {
		return ErrNotHost
	}
	if r.status != StatusPlaying {
		return fmt.Errorf("%w: game is not running", ErrState)
	}
	r.finishLocked(ReasonManual)
	return nil
}

// RemovePlayer takes a player out of the room. The next player by join order
// inherits host. empty is true when nobody is left; the room's timers are
// stopped and the caller should drop the room.
func (r *Room) RemovePlayer(id string) (empty bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, idx := r.playerLocked(id)
	if p == nil {
		return false, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	if sub, ok := r.votes[id]; ok && r.phase == PhaseVoting {
		r.retractVoteLocked(id, sub)
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	r.touchLocked()

	if len(r.players) == 0 {
		r.timers.StopAll()
		r.deps.log.Info().Str("room", r.id).Msg("room emptied")
		return true, nil
	}
	newHost := ""
	if p.IsHost {
		r.players[0].IsHost = true
		newHost = r.players[0].ID
	}
	r.emitLocked(EventPlayerLeft, map[string]string{"playerId": id, "newHostId": newHost})

	if r.status == StatusPlaying {
		switch {
		case r.settings.Ruleset != RulesetSolo && len(r.players) < MinCapacity:
			r.finishLocked(ReasonInsufficientPlayers)
		case p.Role == RoleDisruptor:
			r.finishLocked(ReasonDisruptorLeft)
		case r.phase == PhaseDajare && r.allSubmittedLocked():
			r.enterVotingLocked()
		case r.phase == PhaseVoting && r.allVotedLocked():
			r.settleVotingLocked()
		}
	}
	r.emitLocked(EventRoomUpdated, r.snapshotLocked())
	return false, nil
}

// AddSpectator lets someone watch without playing.
func (r *Room) AddSpectator(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: spectator id required", ErrValidation)
	}
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if p, _ := r.playerLocked(id); p != nil {
		return fmt.Errorf("%w: %s is playing", ErrState, id)
	}
	r.spectators[id] = name
	r.emitLocked(EventSpectatorJoined, map[string]any{"name": name, "spectators": len(r.spectators)})
	return nil
}

// RemoveSpectator stops id watching. It reports whether id was watching.
func (r *Room) RemoveSpectator(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spectators[id]; !ok {
		return false
	}
	delete(r.spectators, id)
	return true
}

// Close stops every timer. Later mutations fail with ErrNotFound.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.timers.StopAll()
}

func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

func (r *Room) HasPlayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, _ := r.playerLocked(id)
	return p != nil
}

// PendingTimers lists the kinds of timers waiting to fire.
func (r *Room) PendingTimers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers.Kinds()
}

// Snapshot returns a consistent view of the room.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) viewLocked(p *Player) PlayerView {
	v := PlayerView{
		ID:           p.ID,
		Name:         p.Name,
		IsHost:       p.IsHost,
		Life:         p.Life,
		Score:        p.Score,
		HasSubmitted: p.submitted,
		HasVoted:     p.votedFor != 0,
		Submissions:  p.Stats.Submissions,
	}
	if r.settings.Ruleset == RulesetRoles {
		v.Efficiency = p.Efficiency
	}
	return v
}

func (r *Room) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:              r.id,
		Ruleset:         r.settings.Ruleset,
		Status:          r.status,
		Phase:           r.phase,
		Round:           r.clock.CurrentRound,
		MaxRounds:       r.settings.MaxRounds,
		Capacity:        r.settings.Capacity,
		Players:         make([]PlayerView, 0, len(r.players)),
		TimeRemainingMs: r.clock.Remaining(r.deps.now()).Milliseconds(),
		Spectators:      len(r.spectators),
		EndReason:       r.endReason,
		CreatedAt:       r.createdAt,
	}
	for _, p := range r.players {
		s.Players = append(s.Players, r.viewLocked(p))
		if p.IsHost {
			s.HostID = p.ID
		}
	}
	if r.settings.Ruleset == RulesetRoles {
		shared := r.sharedLife
		s.SharedLife = &shared
	}
	if r.phase == PhaseVoting || r.phase == PhaseResult {
		for _, sub := range r.roundSubmissionsLocked() {
			s.Submissions = append(s.Submissions, sub.clone())
		}
	}
	return s
}

// Summary returns the room's lobby line.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		ID:        r.id,
		Ruleset:   r.settings.Ruleset,
		Status:    r.status,
		Phase:     r.phase,
		Players:   len(r.players),
		Capacity:  r.settings.Capacity,
		Round:     r.clock.CurrentRound,
		MaxRounds: r.settings.MaxRounds,
	}
	if h := r.hostLocked(); h != nil {
		s.HostName = h.Name
	}
	return s
}

func (r *Room) joinableLocked(ruleset Ruleset) bool {
	return !r.closed && r.status == StatusWaiting && r.settings.Ruleset == ruleset && len(r.players) < r.settings.Capacity
}
