// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package evering couples the three subsystems that make up a single
// submit/complete loop: a uring.Channel carrying tagged submissions and
// completions, a driver.Table that matches a completion back to the
// caller waiting on it, and the allocator/token layers (mem, halloc,
// token, shm) that let a payload live in memory both sides can reach.
//
// A Bridge is split into two role-pinned halves at construction time:
// SubmitBridge can only submit and await completions, CompleteBridge can
// only drain submissions and resolve them. This mirrors a real io_uring
// split between the thread that submits work and the thread (or kernel)
// that completes it — a SubmitBridge has no way to accidentally answer
// its own requests.
package evering

import (
	"context"

	"github.com/ringbound/evering/driver"
	"github.com/ringbound/evering/uring"
)

// IdCell pairs an operation id with a payload, the wire-level unit that
// actually crosses a uring.Channel; the id is what lets the far side
// route a completion back to the Op the near side is waiting on.
type IdCell[T any] struct {
	Id      driver.OpId
	Payload T
}

// core is the state shared by both halves of a split Bridge. sub and
// comp are the two directions of the same underlying ring pair: sub
// sends IdCell[S] and receives IdCell[C], comp is its exact mirror.
type core[S, C any] struct {
	table driver.Table[C, struct{}]
	sub   uring.Channel[IdCell[S], IdCell[C]]
	comp  uring.Channel[IdCell[C], IdCell[S]]
}

// SubmitBridge is the submitting half of a Bridge: it registers an
// operation, sends its payload, and hands back an Op the caller polls or
// waits on for the matching completion.
type SubmitBridge[S, C any] struct {
	*core[S, C]
}

// CompleteBridge is the completing half of a Bridge: it drains submitted
// payloads and resolves the driver.Table entries they name, producing no
// value of its own — the value flows back to whoever is waiting on the
// corresponding Op on the SubmitBridge side.
type CompleteBridge[S, C any] struct {
	*core[S, C]
}

// cancelNoop is the default Cancellation used for a Bridge operation: by
// the time a caller can Release an Op, its SQE has already been handed
// to the channel (or the send failed and nothing was handed over), so
// there is nothing further for the Bridge itself to recycle. A caller
// whose payload owns a resource (a mem.PBox, a shm.Region attachment)
// should arrange its own cleanup before Release rather than relying on
// this.
func cancelNoop() driver.Cancellation { return driver.Noop() }

// New builds a Bridge backed by a dynamically growing, mutex-guarded
// driver.Locked table and a heap-backed uring.Channel of the given
// capacity.
func New[S, C any](capacity int) (SubmitBridge[S, C], CompleteBridge[S, C], error) {
	sub, comp, err := uring.NewPair[IdCell[S], IdCell[C]](capacity, capacity)
	if err != nil {
		return SubmitBridge[S, C]{}, CompleteBridge[S, C]{}, err
	}
	table := driver.NewLocked[C, struct{}]()
	c := &core[S, C]{table: table, sub: sub, comp: comp}
	return SubmitBridge[S, C]{c}, CompleteBridge[S, C]{c}, nil
}

// NewBare builds a Bridge backed by a fixed-capacity, lock-free
// driver.Unlocked table, for callers who have sized their concurrency up
// front and want to avoid a mutex on the hot path.
func NewBare[S, C any](capacity int) (SubmitBridge[S, C], CompleteBridge[S, C], error) {
	sub, comp, err := uring.NewPair[IdCell[S], IdCell[C]](capacity, capacity)
	if err != nil {
		return SubmitBridge[S, C]{}, CompleteBridge[S, C]{}, err
	}
	table := driver.NewUnlocked[C, struct{}](capacity)
	c := &core[S, C]{table: table, sub: sub, comp: comp}
	return SubmitBridge[S, C]{c}, CompleteBridge[S, C]{c}, nil
}

// NewOverBuffer builds a Bridge whose submission and completion rings are
// laid out directly over two caller-supplied byte buffers (typically
// slices of a shm.Region), instead of being allocated on the Go heap.
// Only the rings' slot arrays live in those buffers: the ring counters
// and the driver.Locked table stay in this process's memory, so the
// returned halves are not usable from another process.
func NewOverBuffer[S, C any](sqeBuf, cqeBuf []byte, capacity int) (SubmitBridge[S, C], CompleteBridge[S, C], error) {
	sqeRing, err := uring.NewOverBuffer[IdCell[S]](sqeBuf, capacity)
	if err != nil {
		return SubmitBridge[S, C]{}, CompleteBridge[S, C]{}, err
	}
	cqeRing, err := uring.NewOverBuffer[IdCell[C]](cqeBuf, capacity)
	if err != nil {
		return SubmitBridge[S, C]{}, CompleteBridge[S, C]{}, err
	}
	sub, comp := uring.NewPairFromRings[IdCell[S], IdCell[C]](sqeRing, cqeRing)
	table := driver.NewLocked[C, struct{}]()
	c := &core[S, C]{table: table, sub: sub, comp: comp}
	return SubmitBridge[S, C]{c}, CompleteBridge[S, C]{c}, nil
}

// TrySubmit registers an operation and sends data without blocking. On a
// full channel, the registration is released (with a no-op cancellation)
// and the channel's error is returned.
func (b SubmitBridge[S, C]) TrySubmit(data S) (*driver.Op[C, struct{}], error) {
	id := b.table.Register(cancelNoop)
	op := driver.NewOp(b.table, id)
	if err := b.sub.TrySend(IdCell[S]{Id: id, Payload: data}); err != nil {
		op.Release()
		return nil, err
	}
	return op, nil
}

// Submit registers an operation and blocks until data is sent or ctx is
// done.
func (b SubmitBridge[S, C]) Submit(ctx context.Context, data S) (*driver.Op[C, struct{}], error) {
	id := b.table.Register(cancelNoop)
	op := driver.NewOp(b.table, id)
	if err := b.sub.SendCtx(ctx, IdCell[S]{Id: id, Payload: data}); err != nil {
		op.Release()
		return nil, err
	}
	return op, nil
}

// TryComplete drains every submission currently queued without blocking,
// resolving each one's driver.Table entry via handle, and returns how
// many it processed.
func (b CompleteBridge[S, C]) TryComplete(handle func(S) C) int {
	n := 0
	for {
		cell, err := b.comp.TryRecv()
		if err != nil {
			return n
		}
		b.table.Complete(cell.Id, handle(cell.Payload), struct{}{})
		n++
	}
}

// Complete blocks, draining and resolving submissions as they arrive via
// handle, until ctx is done.
func (b CompleteBridge[S, C]) Complete(ctx context.Context, handle func(S) C) error {
	for {
		cell, err := b.comp.RecvCtx(ctx)
		if err != nil {
			return err
		}
		b.table.Complete(cell.Id, handle(cell.Payload), struct{}{})
	}
}

// Close tears down the Bridge's driver.Table, running the Cancellation
// for every Op left neither completed nor released.
func (b CompleteBridge[S, C]) Close() { b.table.Close() }

// IsConnected reports whether the underlying channel pair is still open.
// Both halves share one connection flag, so they always agree.
func (b SubmitBridge[S, C]) IsConnected() bool { return b.sub.IsConnected() }

// IsConnected reports whether the underlying channel pair is still open.
// Both halves share one connection flag, so they always agree.
func (b CompleteBridge[S, C]) IsConnected() bool { return b.comp.IsConnected() }
