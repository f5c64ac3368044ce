package combat

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Rand is the randomness the engine draws from. *rand.Rand satisfies it.
// It is always injected so outcomes can be replayed from a seed.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// NewRand returns a PCG-backed source seeded with seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeed generates a seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ProcChance is the probability that a Poisson process with the given rate
// fires at least once in elapsedSeconds: 1 - exp(-λδ) with λ = ppm/60.
func ProcChance(ratePerMinute, elapsedSeconds float64) float64 {
	if !(ratePerMinute > 0) || !(elapsedSeconds > 0) {
		return 0
	}
	lambda := ratePerMinute / 60
	return -math.Expm1(-lambda * elapsedSeconds)
}

// ShouldProc draws once from rng and reports whether the proc fires.
// The long-run proc frequency does not depend on how often callers check,
// as long as they pass the time elapsed since their previous check.
func ShouldProc(rng Rand, ratePerMinute, elapsedSeconds float64) bool {
	p := ProcChance(ratePerMinute, elapsedSeconds)
	if p <= 0 {
		return false
	}
	return rng.Float64() < p
}

// RateForChance converts "chance per attempt, with attempts interval apart"
// into procs per minute.
func RateForChance(chance float64, interval time.Duration) float64 {
	if chance <= 0 || interval <= 0 {
		return 0
	}
	if chance >= 1 {
		return math.Inf(1)
	}
	return -math.Log1p(-chance) * 60 / interval.Seconds()
}

// ProcKind names a proc effect.
type ProcKind string

const (
	ProcOffensive ProcKind = "offensive"
	ProcDefensive ProcKind = "defensive"
)

type procKey struct {
	fighter string
	kind    ProcKind
}

// ProcTracker remembers when each fighter/effect pair was last checked.
type ProcTracker struct {
	initial time.Duration
	last    map[procKey]time.Time
}

// NewProcTracker creates a tracker whose first check for a pair reports
// initial as the elapsed time.
func NewProcTracker(initial time.Duration) *ProcTracker {
	return &ProcTracker{
		initial: initial,
		last:    make(map[procKey]time.Time),
	}
}

// Elapsed returns the seconds since the pair was last checked and records now
// as the latest check.
func (t *ProcTracker) Elapsed(fighter string, kind ProcKind, now time.Time) float64 {
	key := procKey{fighter: fighter, kind: kind}
	last, ok := t.last[key]
	t.last[key] = now
	if !ok {
		return t.initial.Seconds()
	}
	if now.Before(last) {
		return 0
	}
	return now.Sub(last).Seconds()
}

// Forget drops every pair for the fighter.
func (t *ProcTracker) Forget(fighter string) {
	for key := range t.last {
		if key.fighter == fighter {
			delete(t.last, key)
		}
	}
}
