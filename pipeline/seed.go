package pipeline

import "math/rand/v2"

// MaxSeed is the largest seed the render space accepts.
const MaxSeed = 2147483647

// RandomSeed returns a seed in [0, MaxSeed].
func RandomSeed() int64 {
	return rand.Int64N(MaxSeed + 1)
}
