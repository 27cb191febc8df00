package plan

import "math/rand"

// Pool draws values without replacement. Once empty it keeps returning the
// last value drawn, so a short pool degrades instead of failing mid-plan.
type Pool[T any] struct {
	items []T
	last  T
	rng   *rand.Rand
}

// NewPool creates a pool over a copy of items.
func NewPool[T any](items []T, rng *rand.Rand) *Pool[T] {
	return &Pool[T]{items: append([]T(nil), items...), rng: rng}
}

// Len returns the number of values left.
func (p *Pool[T]) Len() int {
	return len(p.items)
}

// Draw removes and returns a random value. ok is false when the pool was
// already empty and the last value was repeated.
func (p *Pool[T]) Draw() (v T, ok bool) {
	if len(p.items) == 0 {
		return p.last, false
	}
	i := p.rng.Intn(len(p.items))
	v = p.items[i]
	p.items[i] = p.items[len(p.items)-1]
	p.items = p.items[:len(p.items)-1]
	p.last = v
	return v, true
}
