/*
Copyright 2024 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package arena implements the shared arena (C1): a named, fixed-size
// process-shared region backing a bump allocator for tree nodes, a
// process-shared mutex, and a reserved header region for the tree registry.
//
// The region is a file under /dev/shm mapped with mmap, so any process on
// the host that opens the same name sees the same bytes. The mutex is a
// companion lock file guarded with flock(2); Go has no native process-shared
// futex, and flock is the idiomatic POSIX substitute for this shape.
package arena

import (
	"os"
	"path/filepath"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	specacheerrors "github.com/vllm-project/specache/pkg/errors"
)

// BlockRef is an arena-relative reference: an offset and size within the
// mapped region. Storing offsets rather than pointers lets the reference
// survive different base addresses across processes (see spec design notes
// on the pointer graph in shared memory).
type BlockRef struct {
	Offset int64
	Size   int64
}

// IsNil reports whether the ref names no allocation.
func (b BlockRef) IsNil() bool {
	return b.Size == 0
}

const registryReservedBytes = 64 << 20 // 64 MiB reserved for the tree registry header

// Arena is a handle to the shared-memory region. It is constructed once at
// startup and threaded through the API; the region name is configuration,
// never hard-coded (spec design notes, "global mutable state").
type Arena struct {
	name string
	size int64
	dir  string

	mem  []byte
	file *os.File

	lockFile *os.File

	cursor atomic.Int64
	live   atomic.Int64 // bytes handed out by AllocBulk and not yet Free'd
}

func shmPath(dir, name string) string {
	return filepath.Join(dir, name)
}

func lockPath(dir, name string) string {
	return filepath.Join(dir, name+".lock")
}

// Create removes any prior region with the same name and creates a fresh
// one, per the C1 contract: "remove any prior region with the same name,
// create afresh". It is idempotent across crashes and is called exactly
// once, by the host update server.
func Create(dir, name string, size int64) (*Arena, error) {
	if dir == "" {
		dir = "/dev/shm"
	}

	path := shmPath(dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}
	if err := os.Remove(lockPath(dir, name)); err != nil && !os.IsNotExist(err) {
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}

	lockFile, err := os.OpenFile(lockPath(dir, name), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		file.Close()
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}

	a, err := mapArena(name, dir, size, file, lockFile)
	if err != nil {
		return nil, err
	}
	a.cursor.Store(registryReservedBytes)
	klog.InfoS("arena created", "name", name, "size_bytes", size, "path", path)
	return a, nil
}

// Open attaches to an existing region created by Create, looking it up by
// name; it fails if the region or its lock file are absent.
func Open(dir, name string, size int64) (*Arena, error) {
	if dir == "" {
		dir = "/dev/shm"
	}

	path := shmPath(dir, name)
	file, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}

	lockFile, err := os.OpenFile(lockPath(dir, name), os.O_RDWR, 0o600)
	if err != nil {
		file.Close()
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}

	a, err := mapArena(name, dir, size, file, lockFile)
	if err != nil {
		return nil, err
	}
	klog.InfoS("arena opened", "name", name, "path", path)
	return a, nil
}

func mapArena(name, dir string, size int64, file, lockFile *os.File) (*Arena, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		lockFile.Close()
		return nil, specacheerrors.NewArenaUnavailableError(name, err)
	}

	return &Arena{
		name:     name,
		size:     size,
		dir:      dir,
		mem:      mem,
		file:     file,
		lockFile: lockFile,
	}, nil
}

// Name returns the arena's configured name.
func (a *Arena) Name() string { return a.name }

// Size returns the mapped region's fixed size in bytes.
func (a *Arena) Size() int64 { return a.size }

// HeaderBytes returns the reserved region used by the tree registry. It is
// carved out ahead of the bump-allocation cursor so registry state and tree
// node blocks never collide.
func (a *Arena) HeaderBytes() []byte {
	return a.mem[:registryReservedBytes]
}

// AllocBulk performs a raw sub-allocation of n bytes, used by SuffixTree to
// host all of one tree's nodes and sequence bytes in a single contiguous
// block. Allocation is a simple bump: the arena is sized to be effectively
// unbounded in practice (reference 500 GiB) and, per the design notes,
// freed blocks are not reclaimed into a freelist — out-of-space is loud and
// terminal for that allocation, not silently truncated.
func (a *Arena) AllocBulk(n int64) (BlockRef, error) {
	if n <= 0 {
		return BlockRef{}, specacheerrors.NewInputMismatchError("alloc size must be positive")
	}

	newCursor := a.cursor.Add(n)
	if newCursor > a.size {
		a.cursor.Sub(n)
		return BlockRef{}, specacheerrors.NewArenaOutOfSpaceError(a.name, n, a.size-a.cursor.Load())
	}

	a.live.Add(n)
	return BlockRef{Offset: newCursor - n, Size: n}, nil
}

// Free reclaims a block's accounting. The bytes themselves are not returned
// to a freelist (see AllocBulk); Free only updates the live-bytes counter
// exposed through metrics, so callers can observe fragmentation growth.
func (a *Arena) Free(ref BlockRef) {
	if ref.IsNil() {
		return
	}
	a.live.Sub(ref.Size)
}

// Bytes returns the byte slice backing a block reference.
func (a *Arena) Bytes(ref BlockRef) []byte {
	return a.mem[ref.Offset : ref.Offset+ref.Size]
}

// LiveBytes returns the number of bytes currently allocated and not freed.
func (a *Arena) LiveBytes() int64 { return a.live.Load() }

// UsedBytes returns the high-water mark of the bump cursor.
func (a *Arena) UsedBytes() int64 { return a.cursor.Load() }

// Lock acquires the process-shared mutex guarding TreeRegistry modification
// and the moment of old-tree destruction (spec §5). It does not guard reads
// inside a published tree.
func (a *Arena) Lock() error {
	return unix.Flock(int(a.lockFile.Fd()), unix.LOCK_EX)
}

// Unlock releases the process-shared mutex.
func (a *Arena) Unlock() error {
	return unix.Flock(int(a.lockFile.Fd()), unix.LOCK_UN)
}

// Close unmaps the region and releases file handles without removing the
// backing files, so other attached processes are unaffected.
func (a *Arena) Close() error {
	if err := unix.Munmap(a.mem); err != nil {
		return err
	}
	a.mem = nil
	if err := a.file.Close(); err != nil {
		return err
	}
	return a.lockFile.Close()
}

// Unlink removes the shared-memory-backed files from the filesystem. Only
// the process that called Create should call Unlink, and only after every
// tree has been destroyed via TreeRegistry.Drain.
func (a *Arena) Unlink() error {
	if err := os.Remove(shmPath(a.dir, a.name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(lockPath(a.dir, a.name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	klog.InfoS("arena unlinked", "name", a.name)
	return nil
}
