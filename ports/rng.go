package ports

import (
	"math/rand/v2"
)

// RNG provides named deterministic random streams. Streams for distinct
// names are statistically independent; the same adapter seed and name always
// reproduce the same sequence. The generator type is math/rand/v2 because the
// prior distributions (gonum distuv) source from it.
//
// The draw source is an explicit parameter to every sampling call, never
// ambient state, so tests replay exact sequences and concurrent enumeration
// branches cannot interfere.
type RNG interface {
	// Stream returns a fresh generator for a named operation.
	Stream(name string) *rand.Rand
}
