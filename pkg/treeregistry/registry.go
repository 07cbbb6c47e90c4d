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

// Package treeregistry implements the prompt_hash -> tree directory (C3):
// a fixed-capacity open-addressing table placed directly over the arena's
// reserved header region, so every process attached to the arena sees the
// same publications without a side-channel. It stands in for the
// interprocess_mutex-guarded std::map the original rollout cache server
// keeps in shared memory (rollout_cache_server.cc), traded for a flat table
// because Go has no shared-memory-safe tree/map container.
package treeregistry

import (
	"unsafe"

	"k8s.io/klog/v2"

	"github.com/vllm-project/specache/pkg/arena"
	"github.com/vllm-project/specache/pkg/suffixtree"
)

// entry is one slot of the open-addressing table. Occupied is an int32
// rather than bool so the struct has a predictable POD layout when cast
// over raw bytes.
type entry struct {
	Hash     uint64
	Occupied int32
	_        int32 // padding to keep Meta 8-byte aligned
	Meta     suffixtree.TreeMeta
}

var entrySize = int64(unsafe.Sizeof(entry{}))

// TreeRegistry is the directory of published trees. Callers are
// responsible for holding the arena lock around Publish and Lookup calls
// that must be atomic with respect to other processes (see Arena.Lock);
// the registry itself does no locking, matching the narrow
// scoped_lock<interprocess_mutex> window in the original UpdateCache
// handler, which locks only around the map mutation, not tree
// construction.
type TreeRegistry struct {
	a        *arena.Arena
	entries  []entry
	capacity int32
}

// Open views the arena's reserved header region as the registry table. Any
// process holding the same arena sees the same table.
func Open(a *arena.Arena) *TreeRegistry {
	header := a.HeaderBytes()
	capacity := int32(len(header) / int(entrySize))
	entries := unsafe.Slice((*entry)(unsafe.Pointer(&header[0])), capacity)
	return &TreeRegistry{a: a, entries: entries, capacity: capacity}
}

// Capacity returns the maximum number of distinct prompt hashes the
// registry can hold before Publish starts failing.
func (r *TreeRegistry) Capacity() int32 { return r.capacity }

func (r *TreeRegistry) slotFor(hash uint64) int32 {
	start := int32(hash % uint64(r.capacity))
	i := start
	for {
		e := &r.entries[i]
		if e.Occupied == 0 || e.Hash == hash {
			return i
		}
		i++
		if i == r.capacity {
			i = 0
		}
		if i == start {
			return -1 // table full
		}
	}
}

// Publish records new for promptHash, returning the tree it replaced (if
// any) so the caller can destroy it after releasing the lock, matching
// the "swap first, destroy_ptr outside the lock" ordering in
// rollout_cache_server.cc's UpdateCache. Callers must hold the arena lock.
func (r *TreeRegistry) Publish(promptHash uint64, meta suffixtree.TreeMeta) (old suffixtree.TreeMeta, hadOld bool, ok bool) {
	slot := r.slotFor(promptHash)
	if slot < 0 {
		klog.ErrorS(nil, "tree registry full", "capacity", r.capacity)
		return suffixtree.TreeMeta{}, false, false
	}
	e := &r.entries[slot]
	if e.Occupied != 0 {
		old = e.Meta
		hadOld = true
	}
	e.Hash = promptHash
	e.Meta = meta
	e.Occupied = 1
	return old, hadOld, true
}

// Lookup returns the current tree handle for promptHash. Callers should
// hold the arena lock for the duration of any batch of lookups that must
// observe a consistent snapshot (see fetch_responses_by_prompts_batch,
// which takes one lock for the whole batch rather than one per prompt).
func (r *TreeRegistry) Lookup(promptHash uint64) (suffixtree.TreeMeta, bool) {
	start := int32(promptHash % uint64(r.capacity))
	i := start
	for {
		e := &r.entries[i]
		if e.Occupied != 0 && e.Hash == promptHash {
			return e.Meta, true
		}
		if e.Occupied == 0 {
			return suffixtree.TreeMeta{}, false
		}
		i++
		if i == r.capacity {
			i = 0
		}
		if i == start {
			return suffixtree.TreeMeta{}, false
		}
	}
}

// Drain returns every published tree handle and clears the table. It is
// the Go analogue of RolloutCacheServer::Shutdown's teardown loop: destroy
// every tree, then the map, then the mutex, then unlink the segment.
// Callers destroy each returned tree via suffixtree.Attach(...).Destroy()
// after Drain returns, then call Arena.Close/Unlink.
func (r *TreeRegistry) Drain() []suffixtree.TreeMeta {
	metas := make([]suffixtree.TreeMeta, 0, r.capacity)
	for i := range r.entries {
		e := &r.entries[i]
		if e.Occupied != 0 {
			metas = append(metas, e.Meta)
			*e = entry{}
		}
	}
	return metas
}
