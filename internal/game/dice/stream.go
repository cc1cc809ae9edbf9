package dice

import (
	"crypto/sha256"
	"encoding/binary"
)

// golden is the SplitMix64 increment (2^64 / phi).
const golden uint64 = 0x9E3779B97F4A7C15

// Stream is a counter-based SplitMix64 generator.
//
// Invariant: the n-th value drawn (1-based) is mix64(seed + n*golden), so the
// output depends only on (seed, counter). The counter never decreases.
type Stream struct {
	seed    uint64
	counter uint64
}

// NewStream returns a Stream positioned before its first draw.
func NewStream(seed uint64) *Stream {
	return &Stream{seed: seed}
}

// RestoreStream returns a Stream that has already produced counter draws.
//
// Postcondition: the next draw equals the (counter+1)-th draw of NewStream(seed).
func RestoreStream(seed, counter uint64) *Stream {
	return &Stream{seed: seed, counter: counter}
}

// Seed returns the stream seed.
func (s *Stream) Seed() uint64 { return s.seed }

// Counter returns the number of values drawn (or skipped) so far.
func (s *Stream) Counter() uint64 { return s.counter }

// NextU64 returns the next 64-bit value and advances the counter.
func (s *Stream) NextU64() uint64 {
	s.counter++
	return mix64(s.seed + s.counter*golden)
}

// NextF64 returns the next value as a float in [0, 1) with 53 bits of precision.
func (s *Stream) NextF64() float64 {
	return float64(s.NextU64()>>11) / (1 << 53)
}

// Float64 implements Source.
func (s *Stream) Float64() float64 { return s.NextF64() }

// Intn implements Source.
//
// Precondition: n > 0. Panics otherwise.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	return int(s.NextU64() % uint64(n))
}

// Skip advances the counter by n without producing values.
func (s *Stream) Skip(n uint64) {
	s.counter += n
}

// Chance draws one value and reports whether it is <= p. p is clamped to [0, 1].
func (s *Stream) Chance(p float64) bool {
	return s.NextF64() <= Clamp01(p)
}

// Derive returns an independent stream seeded from this stream's seed and salt.
// The parent counter is neither read nor advanced.
func (s *Stream) Derive(salt uint64) *Stream {
	return NewStream(Derive(s.seed, salt))
}

// Derive mixes entropy with salt through the SplitMix64 finalizer so that
// adjacent inputs produce unrelated seeds.
func Derive(entropy, salt uint64) uint64 {
	return mix64(entropy ^ mix64(salt+golden))
}

// SeedFromString derives a seed from a stable entity identifier and a salt.
func SeedFromString(id, salt string) uint64 {
	sum := sha256.Sum256([]byte(salt + "|" + id))
	return mix64(binary.LittleEndian.Uint64(sum[:8]))
}

// Clamp01 clamps p to [0, 1].
func Clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
