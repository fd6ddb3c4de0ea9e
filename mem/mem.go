// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mem implements the relocatable, offset-relative pointer layer
// that lets a value allocated in shared memory be addressed identically
// from every participant, regardless of each participant's base mapping
// address.
//
// Rel[T] never stores an absolute pointer: dereferencing always takes an
// explicit base address supplied by the caller. PBox[T] and PArc[T] pair a
// Rel[T] with the allocator metadata needed to free it, giving unique and
// shared ownership respectively.
package mem

import (
	"math"
	"unsafe"

	"github.com/ringbound/evering/internal/atomicx"
)

// Rel is a signed offset: target - base. It is meaningless without a base
// pointer from the same region that produced it; never cache the
// dereferenced pointer beyond a single operation (spec: "never cache an
// absolute pointer beyond a single operation").
type Rel[T any] int64

// Null is the offset that never denotes a valid allocation.
const Null = 0

// IsNull reports whether r is the null offset.
func (r Rel[T]) IsNull() bool { return r == Null }

// FromPtr computes the offset of ptr relative to base.
func FromPtr[T any](base unsafe.Pointer, ptr *T) Rel[T] {
	return Rel[T](uintptr(unsafe.Pointer(ptr)) - uintptr(base))
}

// Deref reconstructs the absolute pointer given the region's current base
// address. The caller must supply the base of the same region that
// produced r; there is no way to check this at runtime.
func (r Rel[T]) Deref(base unsafe.Pointer) *T {
	return (*T)(unsafe.Pointer(uintptr(base) + uintptr(r)))
}

// RelSlice carries an offset plus a length: per spec, the length of an
// unsized target travels alongside the offset, never inside it.
type RelSlice[T any] struct {
	Off Rel[T]
	Len int
}

// Deref reconstructs the slice given the region's current base address.
func (r RelSlice[T]) Deref(base unsafe.Pointer) []T {
	if r.Len == 0 {
		return nil
	}
	return unsafe.Slice(r.Off.Deref(base), r.Len)
}

// Allocator is the allocator backend interface consumed by PBox/PArc: a
// handle capable of producing a base pointer and freeing a prior
// allocation identified by its Meta. halloc.Arena/SyncArena satisfy it.
type Allocator interface {
	BasePtr() unsafe.Pointer
	Free(off int64, meta Meta, size, align int)
}

// Meta is the opaque allocator bookkeeping value that must be presented
// back on free; it travels with PBox/PArc and inside Token.
type Meta struct {
	Size  int32
	Class int32
}

// PBox is unique ownership of a T allocated from a specific Allocator.
// Release frees it through that allocator; a PBox that is never released
// leaks (matching the Rust original's safe-to-leak drop semantics).
type PBox[T any] struct {
	alloc Allocator
	off   Rel[T]
	meta  Meta
	freed bool
}

// NewPBoxFromOffset wraps an already-allocated offset as a PBox. Used by
// token.TokenOf.Box and by uring.NewInArena.
func NewPBoxFromOffset[T any](alloc Allocator, off Rel[T], meta Meta) PBox[T] {
	return PBox[T]{alloc: alloc, off: off, meta: meta}
}

// Get returns the current absolute pointer to the boxed value.
func (b *PBox[T]) Get() *T {
	return b.off.Deref(b.alloc.BasePtr())
}

// Offset returns the box's region-relative offset, for tokenization.
func (b *PBox[T]) Offset() Rel[T] { return b.off }

// Meta returns the allocator metadata needed to free or re-tokenize.
func (b *PBox[T]) Meta() Meta { return b.meta }

// Release frees the boxed value through its allocator. Calling Release
// twice panics: double-free is a programming error, not a recoverable
// condition (spec §7: LayoutMismatch-class errors are checked panics in
// debug, undefined behaviour at the allocator interface otherwise).
func (b *PBox[T]) Release() {
	if b.freed {
		panic("mem: PBox released twice")
	}
	b.freed = true
	var zero T
	b.alloc.Free(int64(b.off), b.meta, int(unsafe.Sizeof(zero)), alignOf[T]())
}

func alignOf[T any]() int {
	var zero T
	return int(unsafe.Alignof(zero))
}

// arcHeader is the intrusive atomic refcount prefixed to every PArc
// payload. Increments and decrements are sync/atomic read-modify-writes;
// the final decrement issues no separate fence before the free, since the
// atomic Add already orders it (see PArc.Release).
type arcHeader struct {
	rc atomicx.Int64
}

// PArc is shared ownership of a T allocated from a specific Allocator,
// with an intrusive atomic reference count stored just before the payload
// in the same allocation.
type PArc[T any] struct {
	alloc  Allocator
	off    Rel[arcHeader]
	payOff Rel[T]
	meta   Meta
}

// maxRefCount mirrors the spec's cap at isize::MAX; Go has no isize, so the
// cap is math.MaxInt64 on 64-bit reference counts.
const maxRefCount = math.MaxInt64

// ArcHeaderSize is the number of bytes an allocation must reserve before a
// PArc[T]'s payload for the intrusive refcount header, and ArcHeaderAlign
// is the alignment that reservation must satisfy.
func ArcHeaderSize() int  { var h arcHeader; return int(unsafe.Sizeof(h)) }
func ArcHeaderAlign() int { return alignOf[arcHeader]() }

func (a *PArc[T]) header() *arcHeader {
	return a.off.Deref(a.alloc.BasePtr())
}

// Get returns the current absolute pointer to the shared value.
func (a *PArc[T]) Get() *T {
	return a.payOff.Deref(a.alloc.BasePtr())
}

// Clone increments the refcount and returns a new handle to the same
// allocation. Panics if the refcount would overflow maxRefCount.
func (a *PArc[T]) Clone() PArc[T] {
	h := a.header()
	for {
		cur := h.rc.LoadAcquire()
		if cur >= maxRefCount {
			panic("mem: PArc refcount overflow")
		}
		if h.rc.CompareAndSwapAcqRel(cur, cur+1) {
			return *a
		}
	}
}

// Release decrements the refcount; on the final release it frees the
// backing allocation. Never underflows: releasing more times than cloned
// is a programming error that corrupts the count, not a checked condition
// (mirrors spec's refcount invariant, which is only guaranteed for correct
// callers).
func (a *PArc[T]) Release() {
	h := a.header()
	if h.rc.Add(-1) != 0 {
		return
	}
	// acquire fence: the Add above already performs a full atomic RMW,
	// which on Go's memory model is as strong as an acquire/release pair,
	// so no separate fence primitive is required here.
	var zeroHdr arcHeader
	a.alloc.Free(int64(a.off), a.meta, int(unsafe.Sizeof(zeroHdr))+payloadSize[T](), alignOf[arcHeader]())
}

func payloadSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// NewPArcFromOffset wraps an already-allocated (header, payload) pair as a
// freshly owned PArc with refcount 1. hdrOff is the raw region-relative
// offset of the header word immediately preceding the payload; callers
// never spell out arcHeader itself, since it is an implementation detail
// private to this package.
func NewPArcFromOffset[T any](alloc Allocator, hdrOff int64, payOff Rel[T], meta Meta) PArc[T] {
	a := PArc[T]{alloc: alloc, off: Rel[arcHeader](hdrOff), payOff: payOff, meta: meta}
	a.header().rc.StoreRelease(1)
	return a
}
