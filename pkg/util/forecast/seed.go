package forecast

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/richard-senior/forecast/pkg/util"
)

// Stream is a counter-based pseudo random source: the value at a position is a
// pure function of (seed, position). Nothing is consumed, so the same stream
// can be read in any order and still give the same answers.
type Stream struct {
	seed uint64
}

// NewStream returns a stream over the given seed
func NewStream(seed uint64) Stream {
	return Stream{seed: seed}
}

// SeedFor derives a seed from entity keys plus a fixed per-use-site offset.
// Keys are normalised first so "Arsenal " and "arsenal" share a seed; the
// offset keeps features that hash the same names from correlating.
func SeedFor(offset uint64, keys ...string) uint64 {
	normalised := make([]string, len(keys))
	for i, k := range keys {
		normalised[i] = util.NormaliseName(k)
	}
	return xxhash.Sum64String(strings.Join(normalised, "\x1f")) + offset
}

// Float returns a value in [0, 1) for the given position
func (s Stream) Float(pos int) float64 {
	return float64(s.uint64At(pos)>>11) / (1 << 53)
}

// IntRange returns an integer in [lo, hi] for the given position
func (s Stream) IntRange(pos, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + int(s.Float(pos)*float64(hi-lo+1))
}

// Shuffle returns a permuted copy of items using a Fisher-Yates pass driven
// by positions base, base+1, ...
func Shuffle[T any](s Stream, base int, items []T) []T {
	out := append([]T(nil), items...)
	for i := len(out) - 1; i > 0; i-- {
		j := s.IntRange(base+i, 0, i)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s Stream) uint64At(pos int) uint64 {
	return splitmix64(s.seed + uint64(pos)*0x9e3779b97f4a7c15)
}

// splitmix64 is the finaliser from Steele, Lea and Flood's SplitMix generator
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
