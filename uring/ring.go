// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package uring implements the single-producer/single-consumer ring
// buffer that carries submissions one way and completions the other,
// paired into a full-duplex Channel the way a real io_uring's SQ and CQ
// rings are paired into one submit/complete loop.
//
// A Ring is deliberately dumb: fixed capacity, monotonic head/tail
// counters published with acquire/release ordering, no blocking and no
// allocation once constructed. BareRing exposes exactly that. SyncRing
// and AsyncRing add, respectively, a spin/sleep backoff loop and a
// context-cancellable backoff loop on top of the same non-blocking core,
// matching how a real submitter goes from "try once" to "wait for room."
package uring

import (
	"context"
	"errors"
	"unsafe"

	"github.com/ringbound/evering/internal/atomicx"
	"github.com/ringbound/evering/internal/iox"
	"github.com/ringbound/evering/mem"
)

// ErrWouldBlock is returned by TrySend/TryRecv when the ring is,
// respectively, full or empty.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrCapacity is returned by the ring constructors for a non-power-of-two
// or too-small capacity.
var ErrCapacity = errors.New("uring: capacity must be a power of two >= 2")

// Ring is a fixed-capacity SPSC ring buffer of T. The zero value is not
// usable; construct with NewHeap, NewOverBuffer, or NewInArena.
type Ring[T any] struct {
	buf  []T
	mask uint64
	head atomicx.Uint64 // advanced only by the consumer
	tail atomicx.Uint64 // advanced only by the producer
}

func isPow2(n int) bool { return n >= 2 && n&(n-1) == 0 }

// NewHeap allocates a ring with ordinary Go-heap-backed storage, for
// same-process, same-address-space use.
func NewHeap[T any](capacity int) (*Ring[T], error) {
	if !isPow2(capacity) {
		return nil, ErrCapacity
	}
	return &Ring[T]{buf: make([]T, capacity), mask: uint64(capacity - 1)}, nil
}

// NewOverBuffer lays out a ring directly over a caller-supplied byte
// buffer: buf must be at least capacity*sizeof(T) bytes and must outlive
// the ring. Only the slot array lives in buf; the head and tail counters
// live in the returned Ring value, so two processes mapping the same buf
// do not share ring state.
func NewOverBuffer[T any](buf []byte, capacity int) (*Ring[T], error) {
	if !isPow2(capacity) {
		return nil, ErrCapacity
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	need := elemSize * capacity
	if len(buf) < need {
		return nil, errors.New("uring: buffer too small for requested capacity")
	}
	slice := unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), capacity)
	return &Ring[T]{buf: slice, mask: uint64(capacity - 1)}, nil
}

// NewInArena allocates capacity*sizeof(T) bytes from alloc and lays out a
// ring over them, returning the ring plus the PBox owning the backing
// allocation (release it when the ring is torn down).
func NewInArena[T any](alloc mem.Allocator, capacity int) (*Ring[T], mem.PBox[[]T], error) {
	if !isPow2(capacity) {
		return nil, mem.PBox[[]T]{}, ErrCapacity
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	type arenaAllocator interface {
		Alloc(size, align int) (int64, mem.Meta, error)
	}
	a, ok := alloc.(arenaAllocator)
	if !ok {
		return nil, mem.PBox[[]T]{}, errors.New("uring: allocator does not support Alloc")
	}
	off, meta, err := a.Alloc(elemSize*capacity, int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, mem.PBox[[]T]{}, err
	}
	box := mem.NewPBoxFromOffset[[]T](alloc, mem.Rel[[]T](off), meta)
	base := alloc.BasePtr()
	slice := unsafe.Slice((*T)(unsafe.Pointer(uintptr(base)+uintptr(off))), capacity)
	return &Ring[T]{buf: slice, mask: uint64(capacity - 1)}, box, nil
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of items currently queued.
func (r *Ring[T]) Len() int {
	return int(r.tail.LoadAcquire() - r.head.LoadAcquire())
}

// TrySend enqueues item without blocking, returning ErrWouldBlock if the
// ring is full. Safe for exactly one producer goroutine at a time.
func (r *Ring[T]) TrySend(item T) error {
	tail := r.tail.LoadRelaxed()
	head := r.head.LoadAcquire()
	if tail-head >= uint64(len(r.buf)) {
		return ErrWouldBlock
	}
	r.buf[tail&r.mask] = item
	r.tail.StoreRelease(tail + 1)
	return nil
}

// TryRecv dequeues an item without blocking, returning ErrWouldBlock if
// the ring is empty. Safe for exactly one consumer goroutine at a time.
func (r *Ring[T]) TryRecv() (T, error) {
	head := r.head.LoadRelaxed()
	tail := r.tail.LoadAcquire()
	if head == tail {
		var zero T
		return zero, ErrWouldBlock
	}
	item := r.buf[head&r.mask]
	r.head.StoreRelease(head + 1)
	return item, nil
}

// TrySendBulk enqueues as many of items as currently fit, returning the
// count actually enqueued. It never blocks and never returns an error:
// zero is a valid (if unhelpful) result when the ring is full.
func (r *Ring[T]) TrySendBulk(items []T) int {
	tail := r.tail.LoadRelaxed()
	head := r.head.LoadAcquire()
	room := uint64(len(r.buf)) - (tail - head)
	n := uint64(len(items))
	if n > room {
		n = room
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(tail+i)&r.mask] = items[i]
	}
	if n > 0 {
		r.tail.StoreRelease(tail + n)
	}
	return int(n)
}

// TryRecvBulk dequeues up to len(out) items into out, returning the count
// actually dequeued.
func (r *Ring[T]) TryRecvBulk(out []T) int {
	head := r.head.LoadRelaxed()
	tail := r.tail.LoadAcquire()
	avail := tail - head
	n := uint64(len(out))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		out[i] = r.buf[(head+i)&r.mask]
	}
	if n > 0 {
		r.head.StoreRelease(head + n)
	}
	return int(n)
}

// IsEmpty reports whether the ring currently holds no items.
func (r *Ring[T]) IsEmpty() bool {
	return r.head.LoadAcquire() == r.tail.LoadAcquire()
}

// IsFull reports whether the ring currently holds its full capacity.
func (r *Ring[T]) IsFull() bool {
	return r.tail.LoadAcquire()-r.head.LoadAcquire() >= uint64(len(r.buf))
}

// BareRing is the non-blocking view of a Ring: TrySend/TryRecv only, no
// waiting.
type BareRing[T any] struct{ *Ring[T] }

// Bare adapts r into its non-blocking view.
func Bare[T any](r *Ring[T]) BareRing[T] { return BareRing[T]{r} }

// SyncRing wraps a Ring with blocking Send/Recv built from a spin/sleep
// Backoff, for callers running on an ordinary goroutine with nothing
// better to do while waiting.
type SyncRing[T any] struct{ *Ring[T] }

// Sync adapts r into its blocking view.
func Sync[T any](r *Ring[T]) SyncRing[T] { return SyncRing[T]{r} }

// Send blocks until item is enqueued.
func (r SyncRing[T]) Send(item T) {
	var bo iox.Backoff
	for {
		if err := r.TrySend(item); err == nil {
			return
		}
		bo.Wait()
	}
}

// Recv blocks until an item is available.
func (r SyncRing[T]) Recv() T {
	var bo iox.Backoff
	for {
		item, err := r.TryRecv()
		if err == nil {
			return item
		}
		bo.Wait()
	}
}

// AsyncRing wraps a Ring with context-cancellable Send/Recv, for callers
// that need to give up waiting when their context is done (a request
// timeout, a shutdown signal) instead of blocking forever.
type AsyncRing[T any] struct{ *Ring[T] }

// Async adapts r into its cancellable view.
func Async[T any](r *Ring[T]) AsyncRing[T] { return AsyncRing[T]{r} }

// ErrCanceled is returned by AsyncRing's Send/Recv when ctx is canceled
// before the operation could complete. Send/Recv return ctx.Err(), so a
// ctx whose deadline passed yields context.DeadlineExceeded instead.
var ErrCanceled = context.Canceled

// Send blocks until item is enqueued or ctx is done.
func (r AsyncRing[T]) Send(ctx context.Context, item T) error {
	var bo iox.Backoff
	for {
		if err := r.TrySend(item); err == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

// Recv blocks until an item is available or ctx is done.
func (r AsyncRing[T]) Recv(ctx context.Context) (T, error) {
	var bo iox.Backoff
	for {
		item, err := r.TryRecv()
		if err == nil {
			return item, nil
		}
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		bo.Wait()
	}
}
