// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package driver

import (
	"errors"
	"sync/atomic"

	"github.com/ringbound/evering/internal/atomicx"
)

// ErrTableFull is returned by Unlocked.TryRegister when every slot in its
// fixed-capacity pool is occupied.
var ErrTableFull = errors.New("driver: unlocked table full")

const noFreeSlot = ^uint32(0)

type unlockedKind int

const (
	kindWaiting unlockedKind = iota
	kindCompleted
	kindCancelled
)

type unlockedState[P, E any] struct {
	kind     unlockedKind
	payload  P
	ext      E
	cancel   func() Cancellation // producer supplied at Register, for kindWaiting
	cancelFn Cancellation        // stashed result, for kindCancelled
}

type unlockedSlot[P, E any] struct {
	generation atomicx.Uint32
	freeNext   atomicx.Uint32
	state      atomic.Pointer[unlockedState[P, E]]
}

// Unlocked is a lock-free, fixed-capacity Table: every Register, Complete,
// Poll, and Remove proceeds via CAS on a per-slot state pointer, with a
// Treiber-stack free list (versioned head, to resist ABA) handing out
// slot indices. Built on sync/atomic rather than a ported object-pool
// crate, since no such crate's source is available to ground a faithful
// port; the CAS-per-slot shape follows the original's lock-free driver
// core directly.
type Unlocked[P, E any] struct {
	slots    []unlockedSlot[P, E]
	freeHead atomicx.Uint64 // packed: index in low 32 bits, version in high 32
}

// NewUnlocked preallocates a table with room for capacity concurrent
// operations.
func NewUnlocked[P, E any](capacity int) *Unlocked[P, E] {
	t := &Unlocked[P, E]{slots: make([]unlockedSlot[P, E], capacity)}
	for i := range t.slots {
		next := noFreeSlot
		if i+1 < capacity {
			next = uint32(i + 1)
		}
		t.slots[i].freeNext.StoreRelaxed(next)
	}
	head := uint64(noFreeSlot)
	if capacity > 0 {
		head = uint64(0)
	}
	t.freeHead.StoreRelease(head)
	return t
}

func (t *Unlocked[P, E]) popFree() (uint32, bool) {
	for {
		head := t.freeHead.LoadAcquire()
		idx := uint32(head)
		if idx == noFreeSlot {
			return 0, false
		}
		version := uint32(head >> 32)
		next := t.slots[idx].freeNext.LoadAcquire()
		newHead := uint64(next) | uint64(version+1)<<32
		if t.freeHead.CompareAndSwapAcqRel(head, newHead) {
			return idx, true
		}
	}
}

func (t *Unlocked[P, E]) pushFree(idx uint32) {
	for {
		head := t.freeHead.LoadAcquire()
		version := uint32(head >> 32)
		t.slots[idx].freeNext.StoreRelease(uint32(head))
		newHead := uint64(idx) | uint64(version+1)<<32
		if t.freeHead.CompareAndSwapAcqRel(head, newHead) {
			return
		}
	}
}

// TryRegister reserves a new slot, or ErrTableFull if the pool is
// exhausted. Unlike Locked, Unlocked never grows past its initial
// capacity. cancel is stored on the slot and called at most once, by
// whichever of Remove or Close reaches the slot while it is still
// Waiting; a slot that completes first never calls it.
func (t *Unlocked[P, E]) TryRegister(cancel func() Cancellation) (OpId, error) {
	idx, ok := t.popFree()
	if !ok {
		return 0, ErrTableFull
	}
	gen := t.slots[idx].generation.Add(1)
	t.slots[idx].state.Store(&unlockedState[P, E]{kind: kindWaiting, cancel: cancel})
	return newOpId(idx, gen), nil
}

// Register reserves a new slot, panicking if the pool is exhausted.
// Present to satisfy Table; callers who expect exhaustion to be a normal
// condition should call TryRegister directly instead.
func (t *Unlocked[P, E]) Register(cancel func() Cancellation) OpId {
	id, err := t.TryRegister(cancel)
	if err != nil {
		panic(err)
	}
	return id
}

func (t *Unlocked[P, E]) lookup(id OpId) (*unlockedSlot[P, E], bool) {
	idx := id.index()
	if int(idx) >= len(t.slots) {
		return nil, false
	}
	slot := &t.slots[idx]
	if slot.generation.LoadAcquire() != id.generation() {
		return nil, false
	}
	return slot, true
}

// Complete resolves id, or runs and frees a cancelled slot's stashed
// Cancellation, or discards a late/unknown completion.
func (t *Unlocked[P, E]) Complete(id OpId, payload P, ext E) {
	slot, ok := t.lookup(id)
	if !ok {
		return
	}
	for {
		old := slot.state.Load()
		if old == nil {
			return
		}
		switch old.kind {
		case kindWaiting:
			next := &unlockedState[P, E]{kind: kindCompleted, payload: payload, ext: ext}
			if slot.state.CompareAndSwap(old, next) {
				return
			}
		case kindCancelled:
			if slot.state.CompareAndSwap(old, nil) {
				old.cancelFn.Run()
				t.pushFree(id.index())
				return
			}
		default:
			return
		}
	}
}

// Poll reports a completed slot's payload and frees it, or reports not
// ready.
func (t *Unlocked[P, E]) Poll(id OpId) (P, E, bool) {
	slot, ok := t.lookup(id)
	if !ok {
		var zp P
		var ze E
		return zp, ze, false
	}
	for {
		cur := slot.state.Load()
		if cur == nil || cur.kind != kindCompleted {
			var zp P
			var ze E
			return zp, ze, false
		}
		if slot.state.CompareAndSwap(cur, nil) {
			t.pushFree(id.index())
			return cur.payload, cur.ext, true
		}
	}
}

// Remove abandons id per the Table contract.
func (t *Unlocked[P, E]) Remove(id OpId) {
	slot, ok := t.lookup(id)
	if !ok {
		return
	}
	for {
		old := slot.state.Load()
		if old == nil {
			return
		}
		switch old.kind {
		case kindCompleted:
			if slot.state.CompareAndSwap(old, nil) {
				t.pushFree(id.index())
				return
			}
		case kindWaiting:
			var c Cancellation
			if old.cancel != nil {
				c = old.cancel()
			}
			next := &unlockedState[P, E]{kind: kindCancelled, cancelFn: c}
			if slot.state.CompareAndSwap(old, next) {
				return
			}
		case kindCancelled:
			return
		}
	}
}

// Close runs every slot still holding a stashed Cancellation, and for
// every slot still Waiting — an Op neither completed nor Released — runs
// its Register-time cancel closure in Remove's place, exactly as a
// dropped driver reclaiming every surviving op's resources should.
func (t *Unlocked[P, E]) Close() {
	for i := range t.slots {
		cur := t.slots[i].state.Load()
		if cur == nil {
			continue
		}
		switch cur.kind {
		case kindCancelled:
			cur.cancelFn.Run()
		case kindWaiting:
			if cur.cancel != nil {
				cur.cancel().Run()
			}
		}
		t.slots[i].state.Store(nil)
	}
}
