// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package driver

import "sync"

type slotState int

const (
	slotFree slotState = iota
	slotWaiting
	slotCompleted
	slotCancelled
)

type lockedSlot[P, E any] struct {
	state      slotState
	generation uint32
	payload    P
	ext        E
	cancel     func() Cancellation // producer supplied at Register, consumed once
	cancelFn   Cancellation        // stashed result, once cancel has run
}

// Locked is a mutex-guarded Table, the simplest correct implementation:
// every operation takes the lock. Grounded on the original's slab+mutex
// driver core, it favors straightforward correctness over the
// lock-free Unlocked table's throughput under contention.
type Locked[P, E any] struct {
	mu    sync.Mutex
	slots []lockedSlot[P, E]
	free  []uint32 // indices available for reuse, LIFO
}

// NewLocked returns an empty Locked table.
func NewLocked[P, E any]() *Locked[P, E] {
	return &Locked[P, E]{}
}

// Register reserves a new slot, reusing a freed index (bumping its
// generation) before growing the slab. cancel is stored on the slot and
// called at most once, by whichever of Remove or Close reaches the slot
// while it is still Waiting; a slot that completes first never calls it.
func (t *Locked[P, E]) Register(cancel func() Cancellation) OpId {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		slot := &t.slots[idx]
		slot.state = slotWaiting
		slot.generation++
		var zp P
		var ze E
		slot.payload, slot.ext = zp, ze
		slot.cancel = cancel
		slot.cancelFn = Cancellation{}
		return newOpId(idx, slot.generation)
	}

	idx := uint32(len(t.slots))
	t.slots = append(t.slots, lockedSlot[P, E]{state: slotWaiting, cancel: cancel})
	return newOpId(idx, 0)
}

func (t *Locked[P, E]) lookup(id OpId) *lockedSlot[P, E] {
	idx := id.index()
	if int(idx) >= len(t.slots) {
		return nil
	}
	slot := &t.slots[idx]
	if slot.generation != id.generation() {
		return nil
	}
	return slot
}

// Complete resolves id, or discards a late completion for a stale/freed
// id, or runs and frees a cancelled slot's stashed Cancellation.
func (t *Locked[P, E]) Complete(id OpId, payload P, ext E) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.lookup(id)
	if slot == nil {
		return
	}
	switch slot.state {
	case slotWaiting:
		slot.state = slotCompleted
		slot.payload, slot.ext = payload, ext
	case slotCancelled:
		slot.cancelFn.Run()
		t.release(id.index())
	default:
		// already completed or free: a duplicate/late completion, ignored.
	}
}

// Poll reports a completed slot's payload and frees it, or reports not
// ready for a waiting/cancelled/unknown id.
func (t *Locked[P, E]) Poll(id OpId) (P, E, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.lookup(id)
	if slot == nil || slot.state != slotCompleted {
		var zp P
		var ze E
		return zp, ze, false
	}
	payload, ext := slot.payload, slot.ext
	t.release(id.index())
	return payload, ext, true
}

// Remove abandons id per the Table contract.
func (t *Locked[P, E]) Remove(id OpId) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.lookup(id)
	if slot == nil {
		return
	}
	switch slot.state {
	case slotCompleted:
		t.release(id.index())
	case slotWaiting:
		slot.state = slotCancelled
		if slot.cancel != nil {
			slot.cancelFn = slot.cancel()
		}
		slot.cancel = nil
	case slotCancelled:
		// Remove called twice; nothing further to do.
	}
}

func (t *Locked[P, E]) release(idx uint32) {
	slot := &t.slots[idx]
	slot.state = slotFree
	var zp P
	var ze E
	slot.payload, slot.ext = zp, ze
	slot.cancel = nil
	slot.cancelFn = Cancellation{}
	t.free = append(t.free, idx)
}

// Close runs every slot still holding a stashed Cancellation, and for
// every slot still Waiting — an Op neither completed nor Released — runs
// its Register-time cancel closure in Remove's place, exactly as a
// dropped driver reclaiming every surviving op's resources should.
func (t *Locked[P, E]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		switch t.slots[i].state {
		case slotCancelled:
			t.slots[i].cancelFn.Run()
		case slotWaiting:
			if t.slots[i].cancel != nil {
				t.slots[i].cancel().Run()
			}
		}
	}
	t.slots = nil
	t.free = nil
}
