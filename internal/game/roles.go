package game

import (
	"fmt"
	"math"
	"time"
)

const (
	abilityFactor = 0.8
	minEfficiency = 0.1
	maxEfficiency = 2.0
)

func (r *Room) assignRolesLocked() {
	disruptor := r.deps.rng.Intn(len(r.players))
	for i, p := range r.players {
		p.Role = RoleNeutral
		if i == disruptor {
			p.Role = RoleDisruptor
		}
		p.abilityReadyAt = r.deps.now()
		r.emitToLocked(p.ID, EventRoleAssigned, map[string]Role{"role": p.Role})
	}
}

// Role returns the role dealt to playerID. Roles are private to each player.
func (r *Room) Role(playerID string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, _ := r.playerLocked(playerID)
	if p == nil {
		return RoleNone, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	return p.Role, nil
}

// UseAbility lets the disruptor cool everyone else's dajare: every other
// player's efficiency drops by a fifth. The ability then recharges.
func (r *Room) UseAbility(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if r.settings.Ruleset != RulesetRoles {
		return fmt.Errorf("%w: no abilities in %s rooms", ErrState, r.settings.Ruleset)
	}
	if r.status != StatusPlaying {
		return fmt.Errorf("%w: game is not running", ErrState)
	}
	p, _ := r.playerLocked(playerID)
	if p == nil {
		return fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if p.Role != RoleDisruptor {
		return fmt.Errorf("%w: player has no ability", ErrState)
	}
	now := r.deps.now()
	if now.Before(p.abilityReadyAt) {
		return fmt.Errorf("%w: ability ready in %s", ErrState, p.abilityReadyAt.Sub(now).Round(time.Second))
	}
	affected := 0
	for _, other := range r.players {
		if other == p {
			continue
		}
		other.Efficiency = math.Max(minEfficiency, math.Min(maxEfficiency, other.Efficiency*abilityFactor))
		affected++
	}
	p.abilityReadyAt = now.Add(r.settings.AbilityCooldown)
	r.touchLocked()
	r.emitLocked(EventAbilityUsed, map[string]int{"affected": affected})
	return nil
}

func (r *Room) disruptorVotedOutLocked(entries []RoundEntry) bool {
	top, runnerUp := -1, -1
	topPlayer := ""
	for _, e := range entries {
		switch {
		case e.Votes > top:
			runnerUp = top
			top = e.Votes
			topPlayer = e.PlayerID
		case e.Votes > runnerUp:
			runnerUp = e.Votes
		}
	}
	if top <= 0 || top == runnerUp {
		return false
	}
	p, _ := r.playerLocked(topPlayer)
	return p != nil && p.Role == RoleDisruptor
}
