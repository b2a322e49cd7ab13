package vortex

// barrier.go provides a small reusable cyclic barrier used by both
// ThreadSync and RankSync to rendezvous partition goroutines at each
// sync point. Go's stdlib sync.WaitGroup is not safe to reuse across
// rounds while goroutines may still be observing the previous round's
// completion, so this generation-counted variant (a standard pattern,
// not attributable to any one pack file) is used instead.

import "sync"

// CyclicBarrier blocks n parties until all n have called Wait, then
// releases them together and resets for the next round.
type CyclicBarrier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	n        int
	waiting  int
	gen      uint64
}

// NewCyclicBarrier constructs a barrier for n parties.
func NewCyclicBarrier(n int) *CyclicBarrier {
	b := &CyclicBarrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all n parties have called Wait for the current
// generation, then returns for all of them together.
func (b *CyclicBarrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.waiting++
	if b.waiting == b.n {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
