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

package suffixtree

import "github.com/vllm-project/specache/pkg/arena"

// TreeMeta is the POD handle a registry stores for a published tree: just
// enough to re-derive the two arena blocks and Ukkonen bookkeeping a second
// process needs to read the tree without re-running construction. It holds
// no Go pointers or slices, so it is safe to place directly over shared
// registry bytes.
type TreeMeta struct {
	NodesOffset int64
	NodesSize   int64
	SeqOffset   int64
	SeqSize     int64

	Root      NodeRef
	NodeCount int32
	Used      int32
}

// Snapshot captures t's arena layout for publication. Call only after
// ComputeCounts; the tree must not be extended again afterward.
func (t *SuffixTree) Snapshot() TreeMeta {
	return TreeMeta{
		NodesOffset: t.nodesRef.Offset,
		NodesSize:   t.nodesRef.Size,
		SeqOffset:   t.seqRef.Offset,
		SeqSize:     t.seqRef.Size,
		Root:        t.root,
		NodeCount:   t.nodeCount,
		Used:        t.used,
	}
}

// Attach reconstructs a read-only view of a previously published tree from
// its handle, re-casting the same arena bytes Snapshot recorded rather than
// copying them. The returned tree must not be extended; ComputeCounts has
// already run in the publishing process.
func Attach(a *arena.Arena, meta TreeMeta) *SuffixTree {
	nodesRef := arena.BlockRef{Offset: meta.NodesOffset, Size: meta.NodesSize}
	seqRef := arena.BlockRef{Offset: meta.SeqOffset, Size: meta.SeqSize}

	return &SuffixTree{
		a:         a,
		nodesRef:  nodesRef,
		seqRef:    seqRef,
		nodes:     nodesView(a.Bytes(nodesRef)),
		seq:       tokensView(a.Bytes(seqRef)),
		used:      meta.Used,
		nodeCount: meta.NodeCount,
		root:      meta.Root,
		built:     true,
	}
}
