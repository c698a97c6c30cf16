package planning

import "sync/atomic"

// LoadGuard discards stale reload results. Every reload takes a token with Begin and only
// publishes its result when Current still holds for that token.
type LoadGuard struct {
	seq atomic.Uint64
}

// Begin returns a fresh token, invalidating all earlier ones.
func (g *LoadGuard) Begin() uint64 {
	return g.seq.Add(1)
}

// Current reports whether token is the latest issued one.
func (g *LoadGuard) Current(token uint64) bool {
	return g.seq.Load() == token
}
