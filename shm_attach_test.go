// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package evering_test

import (
	"testing"
	"unsafe"

	"github.com/ringbound/evering/halloc"
	"github.com/ringbound/evering/mem"
	"github.com/ringbound/evering/shm"
	"github.com/ringbound/evering/token"
)

// widgetRecord is a stand-in for a payload a creator publishes into a
// shared region for a second attacher to pick up: it has no pointers of
// its own, the one property every type crossing a region boundary needs.
type widgetRecord struct {
	ID    uint64
	Value float64
}

// TestSharedRegionTokenAttachRoundTrip exercises shm, halloc, token, and
// mem together: a creator maps a region, lays a halloc.Arena over its
// free area, allocates a widgetRecord and hands out its TokenOf as an
// erased Token; a second attacher of the same region identifies the
// token back to widgetRecord, reconstructs the PBox through
// mem.NewPBoxFromOffset, reads the value, and drops it — then both sides
// detach and the region's attach refcount unwinds to zero.
func TestSharedRegionTokenAttachRoundTrip(t *testing.T) {
	backend := shm.NewMemBackend()
	const name = "widget-region"
	const size = 4096

	creator, err := shm.Create(backend, name, size)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	creator.Header().SetWellKnown(shm.SlotArenaBase, shm.HeaderSize)

	arena := halloc.NewArena(creator.Free())

	var zero widgetRecord
	off, meta, err := arena.Alloc(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	box := mem.NewPBoxFromOffset[widgetRecord](arena, mem.Rel[widgetRecord](off), meta)
	*box.Get() = widgetRecord{ID: 7, Value: 3.25}

	published := token.NewTokenOf(&box).Erase()

	attacher, err := shm.Attach(backend, name, size)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := attacher.Header().WellKnown(shm.SlotArenaBase); got != shm.HeaderSize {
		t.Fatalf("WellKnown(SlotArenaBase) = %d, want %d", got, shm.HeaderSize)
	}

	tok, ok := token.Identify[widgetRecord](published)
	if !ok {
		t.Fatal("Identify[widgetRecord] rejected a token actually carrying a widgetRecord")
	}
	if _, ok := token.Identify[int64](published); ok {
		t.Fatal("Identify[int64] accepted a token carrying a widgetRecord")
	}

	// halloc.NewArena formats its buffer as one free block and keeps its
	// free-list bookkeeping in the Arena value, so the attacher cannot
	// build a second Arena over the same bytes. MemBackend hands both
	// sides the same backing slice, and the attacher reuses the creator's
	// arena as its Allocator.
	attached := tok.Box(arena)
	if got := *attached.Get(); got != (widgetRecord{ID: 7, Value: 3.25}) {
		t.Fatalf("attached.Get() = %+v, want {7 3.25}", got)
	}
	attached.Release()

	if arena.Allocated() != 0 {
		t.Fatalf("Allocated() after Release = %d, want 0", arena.Allocated())
	}

	if err := attacher.Detach(); err != nil {
		t.Fatalf("attacher Detach: %v", err)
	}
	if err := creator.Detach(); err != nil {
		t.Fatalf("creator Detach: %v", err)
	}
	if _, err := shm.Attach(backend, name, size); err == nil {
		t.Fatal("Attach succeeded after both attachers detached and the region was unlinked")
	}
}
