// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uring

import (
	"context"

	"github.com/ringbound/evering/internal/atomicx"
)

// connState is shared between both ends of a Channel pair so either side
// can observe whether its peer has gone away.
type connState struct {
	closed atomicx.Uint32
}

// Channel is one half of a paired, full-duplex ring transport: it sends
// Out items on one ring and receives In items on the other, the same
// shape as an io_uring's submission side sending SQEs and receiving CQEs
// (or the completion side's mirror image).
type Channel[Out, In any] struct {
	tx    *Ring[Out]
	rx    *Ring[In]
	state *connState
}

// NewPair builds two cross-wired Channels sharing a pair of rings: what
// one side sends, the other receives, and vice versa. Each ring gets its
// own capacity; most callers pass the same value for both.
func NewPair[T, U any](sendCap, recvCap int) (Channel[T, U], Channel[U, T], error) {
	a, err := NewHeap[T](sendCap)
	if err != nil {
		return Channel[T, U]{}, Channel[U, T]{}, err
	}
	b, err := NewHeap[U](recvCap)
	if err != nil {
		return Channel[T, U]{}, Channel[U, T]{}, err
	}
	st := &connState{}
	return Channel[T, U]{tx: a, rx: b, state: st}, Channel[U, T]{tx: b, rx: a, state: st}, nil
}

// TrySend enqueues item onto the outgoing ring without blocking.
func (c Channel[Out, In]) TrySend(item Out) error { return c.tx.TrySend(item) }

// TryRecv dequeues an item from the incoming ring without blocking.
func (c Channel[Out, In]) TryRecv() (In, error) { return c.rx.TryRecv() }

// TrySendBulk enqueues as many of items as currently fit.
func (c Channel[Out, In]) TrySendBulk(items []Out) int { return c.tx.TrySendBulk(items) }

// TryRecvBulk dequeues up to len(out) items into out.
func (c Channel[Out, In]) TryRecvBulk(out []In) int { return c.rx.TryRecvBulk(out) }

// Send blocks (spin/sleep) until item is enqueued.
func (c Channel[Out, In]) Send(item Out) { Sync(c.tx).Send(item) }

// Recv blocks (spin/sleep) until an item is available.
func (c Channel[Out, In]) Recv() In { return Sync(c.rx).Recv() }

// Close marks this side of the pair as gone; the peer's IsConnected
// reports false from then on. Does not drain or discard queued items —
// callers that need that must do it themselves before or after Close.
func (c Channel[Out, In]) Close() {
	c.state.closed.StoreRelease(1)
}

// IsConnected reports whether neither end of the pair has been Closed.
// Both Channels of a pair share one closed flag, so a Close on either
// side makes both report false; there is no handshake.
func (c Channel[Out, In]) IsConnected() bool {
	return c.state.closed.LoadAcquire() == 0
}

// SendCtx blocks until item is enqueued or ctx is done.
func (c Channel[Out, In]) SendCtx(ctx context.Context, item Out) error {
	return Async(c.tx).Send(ctx, item)
}

// RecvCtx blocks until an item is available or ctx is done.
func (c Channel[Out, In]) RecvCtx(ctx context.Context) (In, error) {
	return Async(c.rx).Recv(ctx)
}

// NewPairFromRings cross-wires two already-constructed rings into a pair
// of Channels, for callers that built their rings with NewOverBuffer or
// NewInArena instead of NewHeap.
func NewPairFromRings[T, U any](a *Ring[T], b *Ring[U]) (Channel[T, U], Channel[U, T]) {
	st := &connState{}
	return Channel[T, U]{tx: a, rx: b, state: st}, Channel[U, T]{tx: b, rx: a, state: st}
}

// SendCap returns the capacity of the outgoing ring.
func (c Channel[Out, In]) SendCap() int { return c.tx.Cap() }

// RecvCap returns the capacity of the incoming ring.
func (c Channel[Out, In]) RecvCap() int { return c.rx.Cap() }
