package realtime

import "time"

// TimedRounds holds the timing state for a sequence of rounds: which round is
// current, when the game and the current phase began, and when the phase's
// deadline falls. It does not hold game-specific state (players, scores,
// etc.); the game composes it and reacts to Next by updating its own state.
type TimedRounds struct {
	Rounds       int
	CurrentRound int
	StartedAt    time.Time
	PhaseStarted time.Time
	PhaseEndsAt  time.Time
}

// Start begins the first round at now. Call when the game leaves the lobby.
func (t *TimedRounds) Start(now time.Time) {
	t.CurrentRound = 1
	t.StartedAt = now
	t.PhaseStarted = now
	t.PhaseEndsAt = time.Time{}
}

// EnterPhase marks the start of a new phase at now. A positive d sets the
// phase deadline; zero or negative leaves the phase open-ended.
func (t *TimedRounds) EnterPhase(now time.Time, d time.Duration) {
	t.PhaseStarted = now
	if d > 0 {
		t.PhaseEndsAt = now.Add(d)
		return
	}
	t.PhaseEndsAt = time.Time{}
}

// Remaining returns the time left before the phase deadline, or zero when the
// phase has no deadline or it has passed.
func (t *TimedRounds) Remaining(now time.Time) time.Duration {
	if t.PhaseEndsAt.IsZero() {
		return 0
	}
	left := t.PhaseEndsAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Elapsed returns how long the game has been running.
func (t *TimedRounds) Elapsed(now time.Time) time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(t.StartedAt)
}

// Next advances to the following round at now. finished is true, and the
// round counter is left unchanged, when the last round has been played.
func (t *TimedRounds) Next(now time.Time) (finished bool) {
	if t.CurrentRound >= t.Rounds {
		t.PhaseEndsAt = time.Time{}
		return true
	}
	t.CurrentRound++
	t.PhaseStarted = now
	t.PhaseEndsAt = time.Time{}
	return false
}
