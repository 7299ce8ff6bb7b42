// Package scoring judges dajare. An Evaluator may fail; Resilient wraps one
// with the local Heuristic so a submission always receives a score.
package scoring

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable is returned by evaluators that cannot produce a judgment:
// missing credentials, transport failures, unparseable replies.
var ErrUnavailable = errors.New("scoring unavailable")

const (
	SourceHeuristic = "heuristic"
	SourceOpenAI    = "openai"
)

// Evaluation is the judgment of a single dajare. Temperature is in [-10, 10]
// (cold puns are negative); the other scores are in [0, 10].
type Evaluation struct {
	Temperature float64 `json:"temperature"`
	Quality     float64 `json:"quality"`
	Creativity  float64 `json:"creativity"`
	Sound       float64 `json:"sound"`
	Comment     string  `json:"comment"`
	Source      string  `json:"source"`
}

// Evaluator scores dajare text.
type Evaluator interface {
	Evaluate(ctx context.Context, text string) (Evaluation, error)
}

// Normalize clamps every score into range and replaces NaN with zero.
func (e Evaluation) Normalize() Evaluation {
	e.Temperature = clamp(e.Temperature, -10, 10)
	e.Quality = clamp(e.Quality, 0, 10)
	e.Creativity = clamp(e.Creativity, 0, 10)
	e.Sound = clamp(e.Sound, 0, 10)
	return e
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// Resilient scores with a primary evaluator and falls back to the heuristic
// when it fails or exceeds the timeout.
type Resilient struct {
	primary  Evaluator
	fallback Heuristic
	timeout  time.Duration
	log      zerolog.Logger
}

// NewResilient wraps primary. A nil primary always uses the heuristic.
func NewResilient(primary Evaluator, timeout time.Duration, log zerolog.Logger) *Resilient {
	return &Resilient{
		primary: primary,
		timeout: timeout,
		log:     log.With().Str("component", "scoring").Logger(),
	}
}

// Score never fails.
func (r *Resilient) Score(ctx context.Context, text string) Evaluation {
	if r.primary == nil {
		return r.fallback.Judge(text)
	}
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	eval, err := r.primary.Evaluate(callCtx, text)
	if err != nil {
		r.log.Warn().Err(err).Msg("evaluator failed, using heuristic")
		return r.fallback.Judge(text)
	}
	return eval.Normalize()
}
