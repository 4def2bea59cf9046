package services

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource supplies every random draw the engine makes, so tests can pin outcomes.
type RandomSource interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// lockedRandom is a math/rand generator safe for use from timer goroutines.
type lockedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource returns a source seeded with seed.
func NewRandomSource(seed int64) RandomSource {
	return &lockedRandom{rng: rand.New(rand.NewSource(seed))}
}

// NewDefaultRandomSource returns a source seeded from the clock.
func NewDefaultRandomSource() RandomSource {
	return NewRandomSource(time.Now().UnixNano())
}

func (r *lockedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// uniform maps a draw from src onto [min, max].
func uniform(src RandomSource, min, max float64) float64 {
	return min + src.Float64()*(max-min)
}

// intBetween returns an integer in [min, max].
func intBetween(src RandomSource, min, max int) int {
	if max <= min {
		return min
	}
	return min + src.Intn(max-min+1)
}
