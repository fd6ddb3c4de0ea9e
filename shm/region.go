// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shm

import (
	"fmt"
	"time"
	"unsafe"
)

// Backend abstracts the OS-level mapping primitive a Region is built on:
// a real POSIX shared-memory segment for inter-process use, or an
// in-process byte slice for tests and same-process use. Map must return a
// slice whose backing memory is stable for the lifetime of the Region
// (never reallocated by Go's GC, as the Unix backend's mmap'd memory
// never is).
type Backend interface {
	// Map returns size bytes of memory identified by name, creating it if
	// create is true. Two calls with the same name (from the same or a
	// different process, for the Unix backend) observe the same memory.
	Map(name string, size int, create bool) ([]byte, error)
	// Unmap releases the mapping. It does not destroy the underlying
	// segment; call Unlink for that.
	Unmap(buf []byte) error
	// Unlink removes the named segment so no further Map can attach to
	// it. Safe to call after Unmap; a no-op backend (like the in-memory
	// one) may implement it as a registry delete.
	Unlink(name string) error
}

// Region is an attached shared-memory mapping: a Header prologue
// followed by a free area available to halloc and uring.
type Region struct {
	backend Backend
	name    string
	buf     []byte
	header  Header
}

// Create maps (creating if necessary) a region of the given total size
// and initializes its header, transitioning Uninitialized ->
// Initializing -> Initialized. Only one participant in a given named
// region should call Create; the rest should call Attach.
func Create(backend Backend, name string, size int) (*Region, error) {
	if size < HeaderSize {
		return nil, fmt.Errorf("shm: region size %d smaller than header %d", size, HeaderSize)
	}
	buf, err := backend.Map(name, size, true)
	if err != nil {
		return nil, err
	}
	h := newHeaderView(buf)
	if h.magic() == Magic && h.Status() != StatusUninitialized {
		return attachExisting(backend, name, buf, h)
	}
	h.setStatus(StatusInitializing)
	h.setMagic()
	h.addRefcount(1)
	h.setStatus(StatusInitialized)
	return &Region{backend: backend, name: name, buf: buf, header: h}, nil
}

// Attach maps an existing region by name and waits for its creator to
// finish initializing it, spin-retrying attachTries times with
// attachDelay between tries before giving up.
func Attach(backend Backend, name string, size int) (*Region, error) {
	buf, err := backend.Map(name, size, false)
	if err != nil {
		return nil, err
	}
	h := newHeaderView(buf)
	return attachExisting(backend, name, buf, h)
}

func attachExisting(backend Backend, name string, buf []byte, h Header) (*Region, error) {
	if h.magic() != Magic {
		return nil, ErrCorrupted
	}
	for try := 0; ; try++ {
		switch h.Status() {
		case StatusInitialized:
			h.addRefcount(1)
			return &Region{backend: backend, name: name, buf: buf, header: h}, nil
		case StatusCorrupted:
			return nil, ErrCorrupted
		case StatusInitializing:
			if try >= attachTries {
				return nil, ErrInitializing
			}
			backoffSleep()
		default:
			return nil, ErrCorrupted
		}
	}
}

func backoffSleep() {
	// kept as its own function so tests can stub timing behavior by
	// overriding package state if ever needed; currently a fixed delay.
	time.Sleep(attachDelay)
}

// Status returns the region's current header status.
func (r *Region) Status() Status { return r.header.Status() }

// Header exposes the region's well-known-offset table.
func (r *Region) Header() Header { return r.header }

// Free returns the portion of the mapping after the header, the area
// halloc.NewArena and uring.NewInArena operate over.
func (r *Region) Free() []byte { return r.buf[HeaderSize:] }

// Len returns the total mapped size, including the header.
func (r *Region) Len() int { return len(r.buf) }

// BasePtr returns the address this attacher's mapping starts at. Two
// attachers of the same region generally see different BasePtr values;
// every offset recorded in the region (well-known slots, Rel[T] values
// written by the allocator) must be resolved against the local BasePtr,
// never cached across processes.
func (r *Region) BasePtr() unsafe.Pointer {
	return unsafe.Pointer(&r.buf[0])
}

// WithOffset resolves an offset from the region's base into a typed
// pointer into this attacher's own mapping. It panics if off would run
// past the end of the mapping, the bounds check spec.md's debug builds
// require.
func WithOffset[T any](r *Region, off int64) *T {
	var zero T
	size := int64(unsafe.Sizeof(zero))
	if off < 0 || off+size > int64(len(r.buf)) {
		panic("shm: WithOffset out of bounds")
	}
	return (*T)(unsafe.Add(r.BasePtr(), off))
}

// Detach unmaps the region. If this was the last attacher (refcount hits
// zero), it also unlinks the underlying segment.
func (r *Region) Detach() error {
	remaining := r.header.addRefcount(-1)
	if err := r.backend.Unmap(r.buf); err != nil {
		return err
	}
	if remaining <= 0 {
		return r.backend.Unlink(r.name)
	}
	return nil
}

// MarkCorrupted transitions the region into the absorbing Corrupted
// state. Once set, every future Attach fails with ErrCorrupted; used by a
// participant that detects an invariant violation it cannot repair (a
// ring sequence counter that moved backward, a free-list cycle).
func (r *Region) MarkCorrupted() {
	r.header.setStatus(StatusCorrupted)
}
