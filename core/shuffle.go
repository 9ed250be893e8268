package core

import "math/rand/v2"

// Shuffle permutes s uniformly in place (Fisher-Yates). A nil rng uses the
// global source.
func Shuffle[T any](s []T, rng *rand.Rand) {
	for i := len(s) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		s[i], s[j] = s[j], s[i]
	}
}

// Sample returns n elements of s chosen uniformly without replacement. s is not modified.
func Sample[T any](s []T, n int, rng *rand.Rand) []T {
	cp := append([]T(nil), s...)
	Shuffle(cp, rng)
	if n >= 0 && n < len(cp) {
		cp = cp[:n]
	}
	return cp
}
