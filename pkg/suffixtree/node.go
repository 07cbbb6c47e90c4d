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

// NodeRef is an arena-relative reference to a Node: an index into the
// tree's node block rather than a Go pointer, so it stays meaningful across
// processes that map the backing arena at different base addresses.
type NodeRef int32

// NilRef is the zero value for "no node".
const NilRef NodeRef = -1

// Node lives in the arena. It carries no Go pointers or maps so that the
// node block can be placed directly over shared-memory bytes: children are
// an intrusive singly-linked list (FirstChild/NextSibling) keyed by the
// first token of each child's incoming edge, which is cheap to scan for the
// small branching factors this cache sees in practice.
type Node struct {
	// Count is the number of suffixes of seq that pass through this node,
	// populated by the post-order pass after construction.
	Count int32

	// Parent and SuffixLink are arena-relative node references.
	// SuffixLink is used during construction only.
	Parent     NodeRef
	SuffixLink NodeRef

	// SeqID, Start, Length describe the edge label seq[Start:Start+Length).
	// Length == -1 means "extends to the current end of seq" (a leaf).
	SeqID  int32
	Start  int32
	Length int32

	FirstChild  NodeRef
	NextSibling NodeRef
}

func (n *Node) isLeaf() bool {
	return n.FirstChild == NilRef
}
