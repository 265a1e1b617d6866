package layout

import (
	"math/rand"
	"time"
)

// Order returns the sequence refs are offered to the composer in. Without
// shuffle it is the input order. A zero seed draws one from the clock.
func Order(refs []ImageRef, shuffle bool, seed int64) []ImageRef {
	out := make([]ImageRef, len(refs))
	copy(out, refs)
	if !shuffle || len(out) < 2 {
		return out
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))
	rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
