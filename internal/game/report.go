package game

import (
	"sort"
	"time"
)

func (r *Room) buildReportLocked(now time.Time) Report {
	ranked := append([]*Player(nil), r.players...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	rep := Report{
		RoomID:           r.id,
		Ruleset:          r.settings.Ruleset,
		Reason:           r.endReason,
		Rankings:         make([]Ranking, 0, len(ranked)),
		Rounds:           append([]RoundResult(nil), r.results...),
		TotalSubmissions: len(r.submissions),
		DurationMs:       r.clock.Elapsed(now).Milliseconds(),
	}
	for i, p := range ranked {
		rank := i + 1
		if i > 0 && p.Score == ranked[i-1].Score {
			rank = rep.Rankings[i-1].Rank
		}
		rep.Rankings = append(rep.Rankings, Ranking{
			Rank:     rank,
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			Life:     p.Life,
			Role:     p.Role,
			Stats:    p.Stats,
		})
	}

	var best, worst *Submission
	total := 0.0
	for _, s := range r.submissions {
		total += s.Evaluation.Temperature
		if best == nil || s.Evaluation.Quality > best.Evaluation.Quality {
			best = s
		}
		if worst == nil || s.Evaluation.Quality < worst.Evaluation.Quality {
			worst = s
		}
	}
	if best != nil {
		b, w := best.clone(), worst.clone()
		rep.Best, rep.Worst = &b, &w
		rep.AverageTemperature = total / float64(len(r.submissions))
	}
	if r.settings.Ruleset == RulesetRoles {
		shared := r.sharedLife
		rep.SharedLife = &shared
	}
	return rep
}

// Report returns the final report once the game has finished.
func (r *Room) Report() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.report == nil {
		return Report{}, false
	}
	return *r.report, true
}

// Results returns the round results recorded so far.
func (r *Room) Results() []RoundResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RoundResult(nil), r.results...)
}

// Submissions returns the room's full submission log.
func (r *Room) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Submission, 0, len(r.submissions))
	for _, s := range r.submissions {
		out = append(out, s.clone())
	}
	return out
}
