package game

import (
	"errors"
	"fmt"
	"time"

	"azukibar/internal/scoring"
)

// Ruleset selects how a room plays.
type Ruleset string

const (
	// RulesetVoting is round-based multiplayer: everyone submits, everyone
	// votes, votes and quality become score.
	RulesetVoting Ruleset = "voting"
	// RulesetRoles plays voting rounds against one shared bar with a hidden
	// disruptor among the players.
	RulesetRoles Ruleset = "roles"
	// RulesetSolo is a single player racing the clock to melt their own bar.
	RulesetSolo Ruleset = "solo"
)

// Valid reports whether r is a known ruleset.
func (r Ruleset) Valid() bool {
	switch r {
	case RulesetVoting, RulesetRoles, RulesetSolo:
		return true
	}
	return false
}

// Status is a room's lifecycle: waiting, playing, then finished.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Phase is the step of the current round.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseDajare   Phase = "dajare"
	PhaseVoting   Phase = "voting"
	PhaseResult   Phase = "result"
	PhaseFinished Phase = "finished"
)

// Role is a player's secret role in a roles room. Other rulesets deal none.
type Role string

const (
	RoleNone      Role = ""
	RoleNeutral   Role = "neutral"
	RoleDisruptor Role = "disruptor"
)

// End reasons.
const (
	ReasonCompleted           = "completed"
	ReasonInsufficientPlayers = "insufficient_players"
	ReasonManual              = "manual"
	ReasonVictory             = "victory"
	ReasonTimeout             = "timeout"
	ReasonCitizensMelt        = "citizens_win_melt"
	ReasonCitizensVote        = "citizens_win_vote"
	ReasonDisruptorWins       = "disruptor_wins"
	ReasonDisruptorLeft       = "disruptor_left"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("invalid state")
	ErrCapacity   = errors.New("room is full")
	ErrValidation = errors.New("invalid input")

	ErrNotHost = fmt.Errorf("%w: only the host can do that", ErrState)
)

const (
	MaxNameLength   = 20
	MaxDajareLength = 100

	MinCapacity = 2
	MaxCapacity = 8
)

// Settings tune a room. Registry defaults fill whatever a create request
// leaves at zero.
type Settings struct {
	Ruleset   Ruleset `json:"ruleset"`
	Capacity  int     `json:"capacity"`
	MaxRounds int     `json:"maxRounds"`

	VotingTime time.Duration `json:"-"`
	// VoteSettleDelay is the pause between the last vote and the results.
	// Zero computes results immediately.
	VoteSettleDelay time.Duration `json:"-"`
	ResultDelay     time.Duration `json:"-"`
	TimeLimit       time.Duration `json:"-"`

	VoteWeight  int `json:"-"`
	ScoreWeight int `json:"-"`

	AbilityCooldown time.Duration `json:"-"`
}

// DefaultSettings returns the stock voting room.
func DefaultSettings() Settings {
	return Settings{
		Ruleset:         RulesetVoting,
		Capacity:        4,
		MaxRounds:       3,
		VotingTime:      30 * time.Second,
		VoteSettleDelay: time.Second,
		ResultDelay:     8 * time.Second,
		TimeLimit:       5 * time.Minute,
		VoteWeight:      100,
		ScoreWeight:     10,
		AbilityCooldown: 30 * time.Second,
	}
}

// RoomRequest is what a client may choose when creating a room.
type RoomRequest struct {
	Ruleset   Ruleset `json:"ruleset"`
	Capacity  int     `json:"capacity"`
	MaxRounds int     `json:"maxRounds"`
}

func (s Settings) apply(req RoomRequest) (Settings, error) {
	if req.Ruleset != "" {
		s.Ruleset = req.Ruleset
	}
	if !s.Ruleset.Valid() {
		return s, fmt.Errorf("%w: unknown ruleset %q", ErrValidation, req.Ruleset)
	}
	if req.Capacity != 0 {
		s.Capacity = req.Capacity
	}
	if req.MaxRounds != 0 {
		s.MaxRounds = req.MaxRounds
	}
	if s.Ruleset == RulesetSolo {
		s.Capacity = 1
	} else if s.Capacity < MinCapacity || s.Capacity > MaxCapacity {
		return s, fmt.Errorf("%w: capacity must be between %d and %d", ErrValidation, MinCapacity, MaxCapacity)
	}
	if s.MaxRounds < 1 || s.MaxRounds > 10 {
		return s, fmt.Errorf("%w: max rounds must be between 1 and 10", ErrValidation)
	}
	return s, nil
}

// Stats aggregate a player's evaluations.
type Stats struct {
	Submissions    int     `json:"submissions"`
	AverageQuality float64 `json:"averageQuality"`
	BestQuality    float64 `json:"bestQuality"`
}

func (s *Stats) record(quality float64) {
	s.Submissions++
	s.AverageQuality += (quality - s.AverageQuality) / float64(s.Submissions)
	if s.Submissions == 1 || quality > s.BestQuality {
		s.BestQuality = quality
	}
}

// Player is a participant in a room. Fields are owned by the room's lock.
type Player struct {
	ID         string
	Name       string
	IsHost     bool
	Life       int
	Score      int
	Role       Role
	Efficiency float64
	Stats      Stats
	JoinedAt   time.Time

	submitted      bool
	scoring        bool
	votedFor       int
	abilityReadyAt time.Time
}

// Submission is one dajare. Only Votes and Voters change after creation,
// and only during its round's voting phase.
type Submission struct {
	ID          int                `json:"id"`
	Round       int                `json:"round"`
	PlayerID    string             `json:"playerId"`
	PlayerName  string             `json:"playerName"`
	Text        string             `json:"text"`
	Evaluation  scoring.Evaluation `json:"evaluation"`
	LifeDelta   int                `json:"lifeDelta"`
	LifeAfter   int                `json:"lifeAfter"`
	Votes       int                `json:"votes"`
	Voters      []string           `json:"voters"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

func (s *Submission) clone() Submission {
	c := *s
	c.Voters = append([]string(nil), s.Voters...)
	return c
}

// RoundEntry is one submission's line in a round result.
type RoundEntry struct {
	SubmissionID int      `json:"submissionId"`
	PlayerID     string   `json:"playerId"`
	PlayerName   string   `json:"playerName"`
	Text         string   `json:"text"`
	Temperature  float64  `json:"temperature"`
	Quality      float64  `json:"quality"`
	Votes        int      `json:"votes"`
	Voters       []string `json:"voters"`
	RoundScore   int      `json:"roundScore"`
}

// RoundResult is the frozen outcome of one round.
type RoundResult struct {
	Round       int          `json:"round"`
	Entries     []RoundEntry `json:"entries"`
	ProcessedAt time.Time    `json:"processedAt"`
}

// Ranking is a player's place in the final standings.
type Ranking struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Life     int    `json:"life"`
	Role     Role   `json:"role,omitempty"`
	Stats    Stats  `json:"stats"`
}

// Report summarises a finished game.
type Report struct {
	RoomID             string        `json:"roomId"`
	Ruleset            Ruleset       `json:"ruleset"`
	Reason             string        `json:"reason"`
	Rankings           []Ranking     `json:"rankings"`
	Rounds             []RoundResult `json:"rounds"`
	TotalSubmissions   int           `json:"totalSubmissions"`
	DurationMs         int64         `json:"durationMs"`
	Best               *Submission   `json:"best,omitempty"`
	Worst              *Submission   `json:"worst,omitempty"`
	AverageTemperature float64       `json:"averageTemperature"`
	SharedLife         *int          `json:"sharedLife,omitempty"`
}

// PlayerView is the public face of a player.
type PlayerView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	IsHost       bool    `json:"isHost"`
	Life         int     `json:"life"`
	Score        int     `json:"score"`
	HasSubmitted bool    `json:"hasSubmitted"`
	HasVoted     bool    `json:"hasVoted"`
	Submissions  int     `json:"submissions"`
	Efficiency   float64 `json:"efficiency,omitempty"`
}

// Snapshot is a consistent view of a room.
type Snapshot struct {
	ID              string       `json:"id"`
	Ruleset         Ruleset      `json:"ruleset"`
	Status          Status       `json:"status"`
	Phase           Phase        `json:"phase"`
	Round           int          `json:"round"`
	MaxRounds       int          `json:"maxRounds"`
	Capacity        int          `json:"capacity"`
	HostID          string       `json:"hostId"`
	Players         []PlayerView `json:"players"`
	TimeRemainingMs int64        `json:"timeRemainingMs"`
	Spectators      int          `json:"spectators"`
	SharedLife      *int         `json:"sharedLife,omitempty"`
	EndReason       string       `json:"endReason,omitempty"`
	Submissions     []Submission `json:"submissions,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Summary is a room's line in the lobby list.
type Summary struct {
	ID        string  `json:"id"`
	Ruleset   Ruleset `json:"ruleset"`
	Status    Status  `json:"status"`
	Phase     Phase   `json:"phase"`
	Players   int     `json:"players"`
	Capacity  int     `json:"capacity"`
	HostName  string  `json:"hostName"`
	Round     int     `json:"round"`
	MaxRounds int     `json:"maxRounds"`
}

// Event names published on a room's broadcaster.
const (
	EventRoomUpdated      = "room_updated"
	EventGameStarted      = "game_started"
	EventRoleAssigned     = "role_assigned"
	EventDajareEvaluated  = "dajare_evaluated"
	EventGameUpdated      = "game_updated"
	EventVotingStarted    = "voting_started"
	EventVotingUpdated    = "voting_updated"
	EventRoundResult      = "round_result"
	EventNextRoundStarted = "next_round_started"
	EventGameFinished     = "game_finished"
	EventPlayerLeft       = "player_left"
	EventAbilityUsed      = "ability_used"
	EventSpectatorJoined  = "spectator_joined"
)

// Timer kinds. A room holds at most one pending timer of each.
const (
	timerVoting    = "voting"
	timerNextRound = "next_round"
	timerDeadline  = "deadline"
)
