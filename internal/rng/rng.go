// Package rng holds the seeded deterministic generators the engine replays
// selections with. The exact generator sequences are part of the engine's
// contract: a fixed seed must reproduce the same pick on any platform, so
// math/rand is not used here.
package rng

import "math"

// Xorshift32 is the 32-bit xorshift generator used by the selector and the
// scheduler. A zero seed is replaced with a fixed non-zero constant because
// xorshift has an absorbing zero state.
type Xorshift32 struct {
	state uint32
}

// NewXorshift32 seeds a generator.
func NewXorshift32(seed uint32) *Xorshift32 {
	if seed == 0 {
		seed = 0x9e3779b9
	}
	return &Xorshift32{state: seed}
}

// Next returns the next raw 32-bit value.
func (x *Xorshift32) Next() uint32 {
	s := x.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	x.state = s
	return s
}

// Float64 returns a uniform draw in (0, 1].
func (x *Xorshift32) Float64() float64 {
	return (float64(x.Next()) + 1) / float64(1<<32)
}

// Normal returns a standard normal draw via the Box-Muller transform.
func (x *Xorshift32) Normal() float64 {
	u1 := x.Float64()
	u2 := x.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// lcgModulus and lcgMultiplier are the MINSTD parameters (Lehmer 48271).
const (
	lcgModulus    = 1<<31 - 1
	lcgMultiplier = 48271
)

// LCG is the Lehmer generator used by the blueprint form builder.
type LCG struct {
	state int64
}

// NewLCG seeds the generator, normalizing into [1, modulus-1].
func NewLCG(seed int64) *LCG {
	s := seed % lcgModulus
	if s < 0 {
		s += lcgModulus
	}
	if s == 0 {
		s = 1
	}
	return &LCG{state: s}
}

// Next returns the next value in [1, modulus-1].
func (l *LCG) Next() int64 {
	l.state = (l.state * lcgMultiplier) % lcgModulus
	return l.state
}

// Intn returns a draw in [0, n). n must be positive.
func (l *LCG) Intn(n int) int {
	return int(l.Next() % int64(n))
}
