// Copyright (c) Evering Contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// UnixBackend implements Backend over POSIX shared memory (shm_open +
// mmap), the real cross-process transport a Region is for.
type UnixBackend struct{}

func shmPath(name string) string {
	return "/dev/shm/" + name
}

// Map opens (creating if requested) a POSIX shared-memory object under
// /dev/shm and mmaps it at size bytes.
func (UnixBackend) Map(name string, size int, create bool) ([]byte, error) {
	flags := unix.O_RDWR
	if create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(shmPath(name), flags, 0600)
	if err != nil {
		if create {
			return nil, fmt.Errorf("shm: open %s: %w", name, err)
		}
		return nil, fmt.Errorf("shm: attach %s: %w", name, err)
	}
	defer unix.Close(fd)

	if create {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return nil, fmt.Errorf("shm: truncate %s: %w", name, err)
		}
	}

	buf, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", name, err)
	}
	return buf, nil
}

// Unmap munmaps buf.
func (UnixBackend) Unmap(buf []byte) error {
	return unix.Munmap(buf)
}

// Unlink removes the shared-memory object from /dev/shm.
func (UnixBackend) Unlink(name string) error {
	err := os.Remove(shmPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
