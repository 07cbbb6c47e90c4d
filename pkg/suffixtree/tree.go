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

// Package suffixtree implements the online Ukkonen suffix tree (C2): tree
// construction over an integer alphabet with the -1 terminator, pattern
// matching, and both speculation strategies. Node storage and the token
// sequence are placed directly over bytes handed out by the shared arena,
// so a tree built by one process is read by another without copying.
package suffixtree

import (
	"unsafe"

	"github.com/vllm-project/specache/pkg/arena"
	specacheerrors "github.com/vllm-project/specache/pkg/errors"
)

// Terminator is the sentinel token that ends each response in a composite
// sequence, preventing matches from leaping across responses.
const Terminator int32 = -1

// bulkNodeOverhead is the "+30" term in the 2n+30 node estimate: internal
// nodes created by edge splits plus the root.
const bulkNodeOverhead = 30

var nodeSize = int64(unsafe.Sizeof(Node{}))

// SuffixTree owns one composite sequence and its node graph, backed by two
// bulk allocations from the arena (one block for the node array, one for the
// token sequence), so destruction is O(1) regardless of node count.
type SuffixTree struct {
	a *arena.Arena

	nodesRef arena.BlockRef
	seqRef   arena.BlockRef

	nodes []Node
	seq   []int32
	used  int32 // number of live entries in seq

	nodeCount int32
	root      NodeRef

	// Ukkonen active point, persists across calls to Extend.
	activeNode   NodeRef
	activeEdge   int32
	activeLength int32
	remaining    int32

	built bool // true once counts have been computed; trees are immutable after publish
}

// EstimateNodeCapacity implements the "2n+30" sizing rule from the
// construction contract.
func EstimateNodeCapacity(tokenCount int) int {
	return 2*tokenCount + bulkNodeOverhead
}

// New allocates a fresh tree from the arena, sized for up to maxTokens
// tokens. The allocation covers both the node array and the token sequence
// in one bulk block per storage kind, matching the "one contiguous block"
// construction contract.
func New(a *arena.Arena, maxTokens int) (*SuffixTree, error) {
	nodeCapacity := EstimateNodeCapacity(maxTokens)

	nodesRef, err := a.AllocBulk(int64(nodeCapacity) * nodeSize)
	if err != nil {
		return nil, err
	}
	seqRef, err := a.AllocBulk(int64(maxTokens) * 4)
	if err != nil {
		a.Free(nodesRef)
		return nil, err
	}

	t := &SuffixTree{
		a:        a,
		nodesRef: nodesRef,
		seqRef:   seqRef,
		nodes:    nodesView(a.Bytes(nodesRef)),
		seq:      tokensView(a.Bytes(seqRef)),
	}

	t.root = t.newNode(0, 0, 0)
	t.nodes[t.root].SuffixLink = t.root
	t.activeNode = t.root
	t.activeEdge = -1

	return t, nil
}

// Destroy returns the tree's node and sequence blocks to the arena. Trees
// are destroyed only by the thread that published their replacement, after
// releasing the registry lock (spec §5 memory reclamation).
func (t *SuffixTree) Destroy() {
	t.a.Free(t.nodesRef)
	t.a.Free(t.seqRef)
}

func nodesView(b []byte) []Node {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / int(nodeSize)
	return unsafe.Slice((*Node)(unsafe.Pointer(&b[0])), n)
}

func tokensView(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), n)
}

func (t *SuffixTree) node(ref NodeRef) *Node {
	return &t.nodes[ref]
}

func (t *SuffixTree) newNode(seqID, start, length int32) NodeRef {
	idx := t.nodeCount
	t.nodeCount++
	n := &t.nodes[idx]
	*n = Node{
		Parent:      NilRef,
		SuffixLink:  t.root, // default: root until overwritten by a later fixup
		SeqID:       seqID,
		Start:       start,
		Length:      length,
		FirstChild:  NilRef,
		NextSibling: NilRef,
	}
	return NodeRef(idx)
}

func (t *SuffixTree) seqAt(i int32) int32 {
	return t.seq[i]
}

// edgeLength returns the effective length of node's incoming edge given the
// current end-of-sequence position pos (leaves have Length == -1, meaning
// "extends to pos").
func (t *SuffixTree) edgeLength(ref NodeRef, pos int32) int32 {
	n := t.node(ref)
	if n.Length == -1 {
		return pos - n.Start + 1
	}
	return n.Length
}

func (t *SuffixTree) findChild(parent NodeRef, token int32) NodeRef {
	child := t.node(parent).FirstChild
	for child != NilRef {
		c := t.node(child)
		if t.seqAt(c.Start) == token {
			return child
		}
		child = c.NextSibling
	}
	return NilRef
}

func (t *SuffixTree) addChild(parent, child NodeRef) {
	p := t.node(parent)
	c := t.node(child)
	c.NextSibling = p.FirstChild
	p.FirstChild = child
	c.Parent = parent
}

func (t *SuffixTree) replaceChild(parent, oldChild, newChild NodeRef) {
	p := t.node(parent)
	if p.FirstChild == oldChild {
		t.node(newChild).NextSibling = t.node(oldChild).NextSibling
		p.FirstChild = newChild
		t.node(newChild).Parent = parent
		return
	}
	cur := p.FirstChild
	for cur != NilRef {
		cn := t.node(cur)
		if cn.NextSibling == oldChild {
			t.node(newChild).NextSibling = t.node(oldChild).NextSibling
			cn.NextSibling = newChild
			t.node(newChild).Parent = parent
			return
		}
		cur = cn.NextSibling
	}
}

// splitEdge splits child's incoming edge at splitLen, inserting a new
// internal node in child's place and re-parenting child below it.
func (t *SuffixTree) splitEdge(child NodeRef, splitLen int32, seqID int32) NodeRef {
	c := t.node(child)
	parent := c.Parent

	split := t.newNode(seqID, c.Start, splitLen)
	t.replaceChild(parent, child, split)

	c = t.node(child)
	c.Start += splitLen
	if c.Length != -1 {
		c.Length -= splitLen
	}
	t.addChild(split, child)
	return split
}

// Extend appends tokens to the sequence, running Ukkonen's algorithm one
// token at a time. It is the only mutator; once a tree is published it is
// never extended again.
func (t *SuffixTree) Extend(seqID int32, tokens []int32) error {
	if t.built {
		return specacheerrors.NewInputMismatchError("cannot extend a tree after counts have been computed")
	}
	for _, tok := range tokens {
		if int(t.used) >= len(t.seq) {
			return specacheerrors.NewArenaOutOfSpaceError(t.a.Name(), 4, 0)
		}
		pos := t.used
		t.seq[pos] = tok
		t.used++
		if err := t.extendOne(seqID, pos, tok); err != nil {
			return err
		}
	}
	return nil
}

func (t *SuffixTree) extendOne(seqID int32, pos int32, tok int32) error {
	t.remaining++
	var lastNewNode NodeRef = NilRef

	for t.remaining > 0 {
		if t.activeLength == 0 {
			t.activeEdge = pos
		}

		target := t.seqAt(t.activeEdge)
		child := t.findChild(t.activeNode, target)

		if child == NilRef {
			if int(t.nodeCount) >= len(t.nodes) {
				return specacheerrors.NewArenaOutOfSpaceError(t.a.Name(), nodeSize, 0)
			}
			leaf := t.newNode(seqID, pos, -1)
			t.addChild(t.activeNode, leaf)
			if lastNewNode != NilRef {
				t.node(lastNewNode).SuffixLink = t.activeNode
				lastNewNode = NilRef
			}
		} else {
			edgeLen := t.edgeLength(child, pos)
			if t.activeLength >= edgeLen {
				t.activeEdge += edgeLen
				t.activeLength -= edgeLen
				t.activeNode = child
				continue // walk down: advance the active point and retry
			}

			if t.seqAt(t.node(child).Start+t.activeLength) == tok {
				// Showstopper: the token is already implicit on this edge.
				t.activeLength++
				if lastNewNode != NilRef {
					t.node(lastNewNode).SuffixLink = t.activeNode
				}
				break
			}

			if int(t.nodeCount)+1 >= len(t.nodes) {
				return specacheerrors.NewArenaOutOfSpaceError(t.a.Name(), 2*nodeSize, 0)
			}
			split := t.splitEdge(child, t.activeLength, seqID)
			leaf := t.newNode(seqID, pos, -1)
			t.addChild(split, leaf)
			if lastNewNode != NilRef {
				t.node(lastNewNode).SuffixLink = split
			}
			lastNewNode = split
		}

		t.remaining--
		if t.activeNode == t.root && t.activeLength > 0 {
			t.activeLength--
			t.activeEdge = pos - t.remaining + 1
		} else if t.activeNode != t.root {
			t.activeNode = t.node(t.activeNode).SuffixLink
		}
	}
	return nil
}

// ComputeCounts runs the post-order pass that sets count(leaf) = 1 and
// count(internal) = sum(count(child)). This is the sole authoritative
// source of node counts; it must be called once, after the last Extend and
// before the tree is published or queried.
func (t *SuffixTree) ComputeCounts() {
	t.computeCounts(t.root)
	t.built = true
}

func (t *SuffixTree) computeCounts(ref NodeRef) int32 {
	n := t.node(ref)
	if n.isLeaf() {
		n.Count = 1
		return 1
	}
	var sum int32
	child := n.FirstChild
	for child != NilRef {
		sum += t.computeCounts(child)
		child = t.node(child).NextSibling
	}
	n.Count = sum
	return sum
}

// Match descends from the root following pattern[startIdx:], returning the
// node whose incoming edge the match ends on and the offset within that
// edge already consumed. edgeOffset equal to the node's own edge length
// means the match landed exactly on the node (ready to branch into a
// child); callers must compare against edgeLength rather than assume 0
// means "start of edge".
func (t *SuffixTree) Match(pattern []int32, startIdx int) (node NodeRef, edgeOffset int32, ok bool) {
	node = t.root
	edgeOffset = 0
	pos := t.used - 1

	for i := startIdx; i < len(pattern); i++ {
		if edgeOffset == t.edgeLength(node, pos) {
			child := t.findChild(node, pattern[i])
			if child == NilRef {
				return NilRef, 0, false
			}
			node = child
			edgeOffset = 0
		}

		n := t.node(node)
		if t.seqAt(n.Start+edgeOffset) != pattern[i] {
			return NilRef, 0, false
		}
		edgeOffset++
	}
	return node, edgeOffset, true
}

// SeqLen returns the number of tokens appended so far.
func (t *SuffixTree) SeqLen() int32 { return t.used }

// NodeCount returns the number of live nodes, for tests and metrics.
func (t *SuffixTree) NodeCount() int32 { return t.nodeCount }

// Root returns the tree's root reference.
func (t *SuffixTree) Root() NodeRef { return t.root }

// Count returns a node's computed count (valid only after ComputeCounts).
func (t *SuffixTree) Count(ref NodeRef) int32 { return t.node(ref).Count }
