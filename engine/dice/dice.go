// Package dice provides the randomness sources the rule engine rolls with.
package dice

import (
	"math/rand"
	"sync"
)

// Roller is the only randomness the engine consumes. Evaluation takes a
// Roller so tests can script every outcome.
type Roller interface {
	// Roll returns an integer in [1, sides].
	Roll(sides int) int
	// Percent returns a value in [0, 100).
	Percent() float64
	// Intn returns an integer in [0, n).
	Intn(n int) int
}

// RNG wraps math/rand.Rand with deterministic position tracking.
// Every call consumes exactly one draw so a position can be replayed.
type RNG struct {
	mu   sync.Mutex
	seed int64
	src  *rand.Rand
	pos  int64
}

// NewRNG creates a new deterministic RNG from a seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		seed: seed,
		src:  rand.New(rand.NewSource(seed)),
	}
}

func (r *RNG) next() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos++
	return r.src.Int63()
}

// Roll returns a random integer in [1, sides]. Sides below 1 roll as 1.
func (r *RNG) Roll(sides int) int {
	v := r.next()
	if sides < 1 {
		return 1
	}
	return int(v%int64(sides)) + 1
}

// Percent returns a value in [0, 100) with four decimal places.
func (r *RNG) Percent() float64 {
	return float64(r.next()%1_000_000) / 10_000
}

// Intn returns an integer in [0, n). n below 1 yields 0.
func (r *RNG) Intn(n int) int {
	v := r.next()
	if n < 1 {
		return 0
	}
	return int(v % int64(n))
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Position returns the number of draws made since creation.
func (r *RNG) Position() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Restore creates an RNG and advances it to the given position.
// This reproduces the exact RNG state for save/load.
func Restore(seed int64, position int64) *RNG {
	rng := NewRNG(seed)
	for i := int64(0); i < position; i++ {
		rng.src.Int63()
	}
	rng.pos = position
	return rng
}

// Scripted replays fixed values in order. Once a queue runs dry it returns
// the lowest value of its range.
type Scripted struct {
	mu       sync.Mutex
	Rolls    []int
	Percents []float64
	Picks    []int
}

func (s *Scripted) Roll(sides int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Rolls) == 0 {
		return 1
	}
	v := s.Rolls[0]
	s.Rolls = s.Rolls[1:]
	return v
}

func (s *Scripted) Percent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Percents) == 0 {
		return 0
	}
	v := s.Percents[0]
	s.Percents = s.Percents[1:]
	return v
}

func (s *Scripted) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Picks) == 0 {
		return 0
	}
	v := s.Picks[0]
	s.Picks = s.Picks[1:]
	return v
}
