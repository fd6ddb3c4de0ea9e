// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package driver implements the operation table that turns a completion
// arriving on a uring.Channel into the resolution of a specific pending
// call: Register reserves a slot and returns an id to hand to the remote
// side, Complete resolves that slot when the matching completion arrives,
// and Op is the local handle a caller polls or waits on.
//
// A slot's id is generation-tagged: OpId packs a slab index and a
// generation counter into one uint64 so that a completion naming a stale,
// reused index can never be mistaken for a completion of the operation
// that originally owned it.
//
// The hard case is cancellation. If a caller gives up on an Op before its
// completion arrives (Release on a still-pending Op), the slot cannot be
// reused immediately: the remote side may still be holding resources tied
// to that id and may complete it later. The caller's Cancellation is kept
// alive in the slot until either a completion for that id does arrive
// (at which point the Cancellation runs and the slot is freed) or the
// table itself is torn down (at which point every outstanding
// Cancellation runs).
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/ringbound/evering/internal/iox"
)

// OpId identifies one registered operation. It packs a slab index in the
// low 32 bits and a generation counter in the high 32 bits.
type OpId uint64

func newOpId(index, generation uint32) OpId {
	return OpId(uint64(generation)<<32 | uint64(index))
}

func (id OpId) index() uint32      { return uint32(id) }
func (id OpId) generation() uint32 { return uint32(id >> 32) }

// String renders an OpId as index/generation, for logs and error text.
func (id OpId) String() string {
	return fmt.Sprintf("%d/%d", id.index(), id.generation())
}

// ErrStaleOpId names an id whose generation no longer matches the slot's
// current occupant. No Table method returns it: Complete, Poll and Remove
// treat a stale id as a no-op.
var ErrStaleOpId = errors.New("driver: stale operation id")

// ErrUnknownOpId names an id whose index has no corresponding slot at all
// (never issued, or the table has since shrunk). No Table method returns
// it: Complete, Poll and Remove treat an unknown id as a no-op.
var ErrUnknownOpId = errors.New("driver: unknown operation id")

// Cancellation is a type-erased "run this to give resources back"
// closure, produced by a caller abandoning a pending Op. It replaces the
// boxed-Any drop glue a garbage-collected language doesn't need for
// memory safety, but still needs for protocol correctness: the remote
// side must not be left holding a dangling reference to memory the local
// side believes is free.
type Cancellation struct {
	run func()
}

// Noop is the Cancellation for an operation that owns nothing needing
// explicit release.
func Noop() Cancellation { return Cancellation{} }

// Recycle wraps run as the Cancellation's release action.
func Recycle(run func()) Cancellation { return Cancellation{run: run} }

// Run executes the cancellation's release action, if any. Safe to call
// on a Noop Cancellation or the Cancellation zero value.
func (c Cancellation) Run() {
	if c.run != nil {
		c.run()
	}
}

// Table is the slab of in-flight operations a driver exposes. Locked and
// Unlocked both implement it; callers pick one based on whether they
// expect heavy contention (Unlocked) or simplicity (Locked).
type Table[P, E any] interface {
	// Register reserves a new slot and returns its id. cancel is stored
	// alongside the slot and called at most once: either when the caller
	// gives up on the operation via Remove before it completes, or by
	// Close if the table is torn down while the slot is still Waiting.
	// It must produce a Cancellation that returns any resources the
	// operation was submitted with.
	Register(cancel func() Cancellation) OpId

	// Complete resolves id with payload/ext. If id's slot was already
	// cancelled (the caller gave up waiting), Complete instead runs the
	// stashed Cancellation and frees the slot. If id is stale or unknown,
	// Complete is a no-op: a late completion for an id nobody is tracking
	// anymore is simply discarded.
	Complete(id OpId, payload P, ext E)

	// Poll reports whether id's completion has arrived. ok is false both
	// while still pending and once the slot has been freed (after
	// Release); callers must not call Poll after Release.
	Poll(id OpId) (payload P, ext E, ok bool)

	// Remove abandons id: if its completion already arrived, the payload
	// is discarded and the slot freed immediately. Otherwise the cancel
	// closure supplied at Register runs, and its Cancellation is stashed
	// in the slot until a late Complete (or Close) runs it.
	Remove(id OpId)

	// Close tears the table down. Every slot still holding a stashed
	// Cancellation (from a prior Remove) runs it; every slot still
	// Waiting — an Op neither completed nor Released — has its
	// Register-time cancel closure run in its place, so a dropped driver
	// reclaims every surviving op's resources exactly as a live one
	// would have on Remove.
	Close()
}

// Op is a caller's handle to one registered operation. It is not safe for
// concurrent use by multiple goroutines.
type Op[P, E any] struct {
	table    Table[P, E]
	id       OpId
	released bool
}

// NewOp wraps a freshly Register-ed id.
func NewOp[P, E any](table Table[P, E], id OpId) *Op[P, E] {
	op := &Op[P, E]{table: table, id: id}
	trackForLeakDetection(op)
	return op
}

// Id returns the operation's id, for embedding in a submission payload
// sent to the remote side.
func (o *Op[P, E]) Id() OpId { return o.id }

// Poll reports whether the operation has completed yet without blocking.
func (o *Op[P, E]) Poll() (P, E, bool) {
	return o.table.Poll(o.id)
}

// Wait blocks (spin, then yield, then sleep) until the operation
// completes or ctx is done.
func (o *Op[P, E]) Wait(ctx context.Context) (P, E, error) {
	var bo iox.Backoff
	for {
		if p, e, ok := o.table.Poll(o.id); ok {
			return p, e, nil
		}
		if err := ctx.Err(); err != nil {
			var zp P
			var ze E
			return zp, ze, err
		}
		bo.Wait()
	}
}

// Release abandons the operation. If its completion has already arrived,
// Release frees the slot immediately. Otherwise, the cancel function
// supplied to Register runs and its Cancellation is kept alive by the
// table until a late completion (or driver teardown) runs it. Release is
// safe to call at most once; calling it again panics.
func (o *Op[P, E]) Release() {
	if o.released {
		panic("driver: Op released twice")
	}
	o.released = true
	o.table.Remove(o.id)
	untrackForLeakDetection(o)
}
