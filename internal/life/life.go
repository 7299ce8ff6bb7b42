// Package life models the azuki bar: a bounded resource that cold dajare
// refreeze and hot dajare melt.
package life

import (
	"fmt"
	"math/rand"
	"sort"
)

const (
	Min     = 0
	Max     = 100
	Initial = 100

	MinTemperature = -10.0
	MaxTemperature = 10.0
)

// Bucket maps a temperature band to an inclusive range of life deltas.
// A bucket covers temperatures above the previous bucket's UpTo and at most
// its own UpTo.
type Bucket struct {
	Name     string  `json:"name"`
	UpTo     float64 `json:"upTo"`
	MinDelta int     `json:"minDelta"`
	MaxDelta int     `json:"maxDelta"`
}

// Table is an ordered set of buckets. The last bucket also catches every
// temperature above its UpTo.
type Table []Bucket

// DefaultTable: very cold dajare refreeze the bar, hot ones melt it.
var DefaultTable = Table{
	{Name: "very-cold", UpTo: -7, MinDelta: 15, MaxDelta: 25},
	{Name: "cold", UpTo: -3, MinDelta: 5, MaxDelta: 14},
	{Name: "neutral", UpTo: 2, MinDelta: -3, MaxDelta: 3},
	{Name: "warm", UpTo: 5, MinDelta: -12, MaxDelta: -5},
	{Name: "hot", UpTo: 8, MinDelta: -25, MaxDelta: -13},
	{Name: "very-hot", UpTo: MaxTemperature, MinDelta: -40, MaxDelta: -26},
}

// Rand is the randomness the model draws deltas from.
type Rand interface {
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

// GlobalRand draws from math/rand's shared source.
var GlobalRand Rand = globalRand{}

// Validate checks that buckets are sorted by UpTo and that every delta range
// is well formed.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("life table: no buckets")
	}
	if !sort.SliceIsSorted(t, func(i, j int) bool { return t[i].UpTo < t[j].UpTo }) {
		return fmt.Errorf("life table: buckets not sorted by upper bound")
	}
	for _, b := range t {
		if b.MinDelta > b.MaxDelta {
			return fmt.Errorf("life table: bucket %q has min delta %d > max delta %d", b.Name, b.MinDelta, b.MaxDelta)
		}
	}
	return nil
}

// Bucket returns the bucket a temperature falls in. Temperatures are clamped
// to [MinTemperature, MaxTemperature] first.
func (t Table) Bucket(temperature float64) Bucket {
	temperature = ClampTemperature(temperature)
	for _, b := range t {
		if temperature <= b.UpTo {
			return b
		}
	}
	return t[len(t)-1]
}

// Apply draws a delta from the temperature's bucket and adds it to current,
// clamping the result to [Min, Max]. The returned delta is the drawn value;
// clamping may absorb part of it.
func (t Table) Apply(current int, temperature float64, rng Rand) (newLife int, delta int) {
	if rng == nil {
		rng = GlobalRand
	}
	b := t.Bucket(temperature)
	delta = b.MinDelta
	if span := b.MaxDelta - b.MinDelta; span > 0 {
		delta += rng.Intn(span + 1)
	}
	return Clamp(current + delta), delta
}

// Clamp bounds v to [Min, Max].
func Clamp(v int) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}

// ClampTemperature bounds v to [MinTemperature, MaxTemperature].
func ClampTemperature(v float64) float64 {
	if v < MinTemperature {
		return MinTemperature
	}
	if v > MaxTemperature {
		return MaxTemperature
	}
	return v
}
