// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shm

import (
	"fmt"
	"sync"
)

// MemBackend is an in-process Backend backed by a registry of named byte
// slices. It lets tests exercise Create/Attach/Detach's status machine
// and multi-attacher refcounting without a real OS mapping, and lets two
// goroutines in the same process share a Region the way two OS processes
// would share a UnixBackend one.
type MemBackend struct {
	mu      sync.Mutex
	regions map[string][]byte
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{regions: make(map[string][]byte)}
}

// Map returns the named region, allocating it on first creation. A
// non-create Map for a name that doesn't exist yet fails, matching a real
// shm_open(O_RDWR) without O_CREAT against a segment nobody made yet.
func (b *MemBackend) Map(name string, size int, create bool) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.regions[name]; ok {
		if len(buf) < size {
			return nil, fmt.Errorf("shm: mem region %q smaller than requested size", name)
		}
		return buf, nil
	}
	if !create {
		return nil, fmt.Errorf("shm: mem region %q does not exist", name)
	}
	buf := make([]byte, size)
	b.regions[name] = buf
	return buf, nil
}

// Unmap is a no-op: there is nothing process-local to release beyond
// letting the caller drop its slice reference.
func (b *MemBackend) Unmap(buf []byte) error { return nil }

// Unlink removes name from the registry so a future Map without create
// fails again.
func (b *MemBackend) Unlink(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.regions, name)
	return nil
}
