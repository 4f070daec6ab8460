package pool

import (
	"github.com/kolkov/gwpasan/internal/guard/goroutine"
	"github.com/kolkov/gwpasan/internal/guard/state"
)

// Slot manager: a bounded free-slot set with biased selection.
//
// Until the pool has serviced MaxSimultaneousAllocations sampled
// allocations, slots are handed out from a monotonically increasing
// counter, so every slot (and both its guard pages) gets exercised before
// any recycling happens. After saturation, reservation picks uniformly at
// random from the free set, so the slot history a bug lands on is not
// correlated with allocation order.
//
// All operations run under the pool mutex.

// reserveSlot picks a slot for a new allocation, or state.InvalidSlot
// when every slot is live.
func (p *GuardedPool) reserveSlot(g *goroutine.State) int {
	// First-use ordering until saturation.
	if p.numSampledAllocations < p.state.MaxSimultaneousAllocations {
		idx := p.numSampledAllocations
		p.numSampledAllocations++
		return idx
	}

	if len(p.freeSlots) == 0 {
		return state.InvalidSlot
	}

	// Uniform random swap-remove from the free set.
	i := int(g.Rand32() % uint32(len(p.freeSlots)))
	idx := p.freeSlots[i]
	last := len(p.freeSlots) - 1
	p.freeSlots[i] = p.freeSlots[last]
	p.freeSlots = p.freeSlots[:last]
	return idx
}

// freeSlot returns a slot to the free set.
func (p *GuardedPool) freeSlot(idx int) {
	p.freeSlots = append(p.freeSlots, idx)
}
