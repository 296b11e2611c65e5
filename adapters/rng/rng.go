// Package rng adapts seeded deterministic random streams to the ports.RNG
// contract. Stream seeds derive from the base seed and the stream name, so
// sibling units of work (DTP branches, simulation replicates) get
// independent, individually reproducible generators.
package rng

import (
	"hash/fnv"
	"math/rand/v2"

	"efftox/ports"
)

// Seeded derives named streams from one base seed.
type Seeded struct {
	base uint64
}

// NewSeeded creates the adapter.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{base: uint64(seed)}
}

// Stream returns a generator seeded by the base seed and the stream name.
func (s *Seeded) Stream(name string) *rand.Rand {
	seed := deriveSeed(s.base, name)
	return rand.New(rand.NewPCG(seed, seed^pcgStreamSalt))
}

// Second PCG word; any fixed constant works, it only has to differ per seed.
const pcgStreamSalt = 0xda3e39cb94b95bdb

// deriveSeed mixes the base seed with the stream name hash through a
// splitmix64 finaliser, so near-identical names still land far apart in seed
// space.
func deriveSeed(base uint64, name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	z := base + 0x9e3779b97f4a7c15 + h.Sum64()
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

var _ ports.RNG = (*Seeded)(nil)
