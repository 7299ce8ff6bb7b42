package game

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"azukibar/internal/scoring"
)

// Submit scores a dajare and records it. The room lock is released while the
// scorer runs; if the room moved on in the meantime the result is discarded
// and ErrState returned.
func (r *Room) Submit(ctx context.Context, playerID, text string) (Submission, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Submission{}, fmt.Errorf("%w: dajare text required", ErrValidation)
	}
	if utf8.RuneCountInString(text) > MaxDajareLength {
		return Submission{}, fmt.Errorf("%w: dajare longer than %d characters", ErrValidation, MaxDajareLength)
	}

	r.mu.Lock()
	p, err := r.checkSubmitLocked(playerID)
	if err != nil {
		r.mu.Unlock()
		return Submission{}, err
	}
	round := r.clock.CurrentRound
	efficiency := p.Efficiency
	p.scoring = true
	r.mu.Unlock()

	eval := r.deps.scorer.Score(ctx, text)

	r.mu.Lock()
	defer r.mu.Unlock()
	p.scoring = false
	if cur, _ := r.playerLocked(playerID); cur != p {
		return Submission{}, fmt.Errorf("%w: player left while scoring", ErrState)
	}
	if r.closed || r.status != StatusPlaying || r.phase != PhaseDajare || r.clock.CurrentRound != round {
		return Submission{}, fmt.Errorf("%w: room moved on while scoring", ErrState)
	}

	sub := r.recordLocked(p, text, eval, efficiency)
	r.deps.log.Debug().
		Str("room", r.id).
		Str("player", p.ID).
		Float64("temperature", eval.Temperature).
		Str("source", eval.Source).
		Int("delta", sub.LifeDelta).
		Msg("dajare scored")
	r.emitToLocked(p.ID, EventDajareEvaluated, sub.clone())
	r.emitLocked(EventGameUpdated, r.snapshotLocked())

	switch {
	case r.settings.Ruleset == RulesetSolo && p.Life == 0:
		r.finishLocked(ReasonVictory)
	case r.settings.Ruleset == RulesetRoles && r.sharedLife == 0:
		r.finishLocked(ReasonCitizensMelt)
	case r.settings.Ruleset != RulesetSolo && r.allSubmittedLocked():
		r.enterVotingLocked()
	}
	return sub.clone(), nil
}

func (r *Room) checkSubmitLocked(playerID string) (*Player, error) {
	if err := r.checkOpenLocked(); err != nil {
		return nil, err
	}
	if r.status != StatusPlaying || r.phase != PhaseDajare {
		return nil, fmt.Errorf("%w: not accepting dajare in phase %s", ErrState, r.phase)
	}
	p, _ := r.playerLocked(playerID)
	if p == nil {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if p.scoring {
		return nil, fmt.Errorf("%w: previous dajare still being scored", ErrState)
	}
	if p.submitted && r.settings.Ruleset != RulesetSolo {
		return nil, fmt.Errorf("%w: already submitted this round", ErrState)
	}
	return p, nil
}

func (r *Room) recordLocked(p *Player, text string, eval scoring.Evaluation, efficiency float64) *Submission {
	temperature := eval.Temperature * efficiency
	var after, delta int
	if r.settings.Ruleset == RulesetRoles {
		r.sharedLife, delta = r.deps.table.Apply(r.sharedLife, temperature, r.deps.rng)
		after = r.sharedLife
	} else {
		p.Life, delta = r.deps.table.Apply(p.Life, temperature, r.deps.rng)
		after = p.Life
	}
	p.Stats.record(eval.Quality)
	p.submitted = true
	if r.settings.Ruleset == RulesetSolo {
		p.Score += qualityPoints(eval.Quality, r.settings.ScoreWeight)
		if delta < 0 {
			p.Score += -delta
		}
	}

	r.nextSubID++
	sub := &Submission{
		ID:          r.nextSubID,
		Round:       r.clock.CurrentRound,
		PlayerID:    p.ID,
		PlayerName:  p.Name,
		Text:        text,
		Evaluation:  eval,
		LifeDelta:   delta,
		LifeAfter:   after,
		Voters:      []string{},
		SubmittedAt: r.deps.now(),
	}
	r.submissions = append(r.submissions, sub)
	r.touchLocked()
	return sub
}

func qualityPoints(quality float64, weight int) int {
	return int(math.Round(math.Max(0, quality) * float64(weight)))
}

func (r *Room) allSubmittedLocked() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if !p.submitted {
			return false
		}
	}
	return true
}

func (r *Room) allVotedLocked() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if p.votedFor == 0 {
			return false
		}
	}
	return true
}

func (r *Room) roundSubmissionsLocked() []*Submission {
	var out []*Submission
	for _, s := range r.submissions {
		if s.Round == r.clock.CurrentRound {
			out = append(out, s)
		}
	}
	return out
}

func (r *Room) submissionLocked(id int) *Submission {
	for _, s := range r.submissions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *Room) enterVotingLocked() {
	now := r.deps.now()
	round := r.clock.CurrentRound
	r.phase = PhaseVoting
	r.settling = false
	r.votes = make(map[string]int)
	for _, p := range r.players {
		p.votedFor = 0
	}
	r.clock.EnterPhase(now, r.settings.VotingTime)
	r.timers.Schedule(timerVoting, r.settings.VotingTime, func() {
		if r.status != StatusPlaying || r.phase != PhaseVoting || r.clock.CurrentRound != round {
			return
		}
		r.deps.log.Debug().Str("room", r.id).Int("votes", len(r.votes)).Msg("voting timed out")
		r.computeResultsLocked()
	})
	r.emitLocked(EventVotingStarted, r.snapshotLocked())
}

// Vote casts playerID's vote for a submission of the current round. Voting
// again moves the vote.
func (r *Room) Vote(playerID string, submissionID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if r.status != StatusPlaying || r.phase != PhaseVoting {
		return fmt.Errorf("%w: not accepting votes in phase %s", ErrState, r.phase)
	}
	p, _ := r.playerLocked(playerID)
	if p == nil {
		return fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	sub := r.submissionLocked(submissionID)
	if sub == nil || sub.Round != r.clock.CurrentRound {
		return fmt.Errorf("%w: submission %d", ErrNotFound, submissionID)
	}
	if sub.PlayerID == playerID {
		return fmt.Errorf("%w: cannot vote for your own dajare", ErrValidation)
	}
	if prev, ok := r.votes[playerID]; ok {
		if prev == submissionID {
			return nil
		}
		r.retractVoteLocked(playerID, prev)
	}
	sub.Votes++
	sub.Voters = append(sub.Voters, playerID)
	r.votes[playerID] = submissionID
	p.votedFor = submissionID
	r.touchLocked()

	r.emitLocked(EventVotingUpdated, map[string]int{"voted": len(r.votes), "total": len(r.players)})
	if r.allVotedLocked() {
		r.settleVotingLocked()
	}
	return nil
}

func (r *Room) retractVoteLocked(voterID string, submissionID int) {
	delete(r.votes, voterID)
	if p, _ := r.playerLocked(voterID); p != nil {
		p.votedFor = 0
	}
	sub := r.submissionLocked(submissionID)
	if sub == nil {
		return
	}
	for i, v := range sub.Voters {
		if v == voterID {
			sub.Voters = append(sub.Voters[:i], sub.Voters[i+1:]...)
			sub.Votes--
			break
		}
	}
}

// settleVotingLocked replaces the voting timeout with the short pause before
// results, or computes them at once when there is no pause.
func (r *Room) settleVotingLocked() {
	if r.settling {
		return
	}
	r.settling = true
	delay := r.settings.VoteSettleDelay
	if delay <= 0 {
		r.computeResultsLocked()
		return
	}
	round := r.clock.CurrentRound
	r.clock.EnterPhase(r.deps.now(), delay)
	r.timers.Schedule(timerVoting, delay, func() {
		if r.status != StatusPlaying || r.phase != PhaseVoting || r.clock.CurrentRound != round {
			return
		}
		r.computeResultsLocked()
	})
}

func (r *Room) computeResultsLocked() {
	r.timers.Cancel(timerVoting)
	now := r.deps.now()
	round := r.clock.CurrentRound
	r.phase = PhaseResult
	r.settling = false

	subs := r.roundSubmissionsLocked()
	entries := make([]RoundEntry, 0, len(subs))
	for _, s := range subs {
		score := s.Votes*r.settings.VoteWeight + qualityPoints(s.Evaluation.Quality, r.settings.ScoreWeight)
		if author, _ := r.playerLocked(s.PlayerID); author != nil {
			author.Score += score
		}
		entries = append(entries, RoundEntry{
			SubmissionID: s.ID,
			PlayerID:     s.PlayerID,
			PlayerName:   s.PlayerName,
			Text:         s.Text,
			Temperature:  s.Evaluation.Temperature,
			Quality:      s.Evaluation.Quality,
			Votes:        s.Votes,
			Voters:       append([]string{}, s.Voters...),
			RoundScore:   score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].RoundScore > entries[j].RoundScore })
	result := RoundResult{Round: round, Entries: entries, ProcessedAt: now}
	r.results = append(r.results, result)
	r.deps.log.Info().Str("room", r.id).Int("round", round).Int("votes", len(r.votes)).Msg("round scored")
	r.emitLocked(EventRoundResult, result)

	if r.settings.Ruleset == RulesetRoles && r.disruptorVotedOutLocked(entries) {
		r.finishLocked(ReasonCitizensVote)
		return
	}
	r.clock.EnterPhase(now, r.settings.ResultDelay)
	r.timers.Schedule(timerNextRound, r.settings.ResultDelay, func() {
		r.advanceRoundLocked(round)
	})
}

func (r *Room) advanceRoundLocked(round int) {
	if r.status != StatusPlaying || r.phase != PhaseResult || r.clock.CurrentRound != round {
		return
	}
	now := r.deps.now()
	if finished := r.clock.Next(now); finished {
		reason := ReasonCompleted
		if r.settings.Ruleset == RulesetRoles {
			reason = ReasonDisruptorWins
		}
		r.finishLocked(reason)
		return
	}
	r.phase = PhaseDajare
	r.votes = make(map[string]int)
	r.settling = false
	for _, p := range r.players {
		p.submitted = false
		p.votedFor = 0
	}
	r.emitLocked(EventNextRoundStarted, r.snapshotLocked())
}

func (r *Room) finishLocked(reason string) {
	if r.status == StatusFinished {
		return
	}
	now := r.deps.now()
	if r.settings.Ruleset == RulesetSolo && reason == ReasonVictory {
		if left := r.settings.TimeLimit - r.clock.Elapsed(now); left > 0 {
			for _, p := range r.players {
				p.Score += int(left.Seconds())
			}
		}
	}
	r.status = StatusFinished
	r.phase = PhaseFinished
	r.endReason = reason
	r.endedAt = now
	r.clock.EnterPhase(now, 0)
	r.timers.StopAll()

	report := r.buildReportLocked(now)
	r.report = &report
	r.deps.log.Info().Str("room", r.id).Str("reason", reason).Int("rounds", len(r.results)).Msg("game finished")
	r.emitLocked(EventGameFinished, report)
}
