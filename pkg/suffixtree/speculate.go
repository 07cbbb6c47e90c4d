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

import "container/heap"

// Candidate is a speculation result: a sequence of proposed tokens with a
// parent index per token (forming a path or a branching tree), an estimated
// probability per token and a cumulative score.
type Candidate struct {
	TokenIDs []int32
	Parents  []int32
	Probs    []float64
	Score    float64
	MatchLen int32
}

// MinMatchThreshold is the reference default for minMatchThreshold below:
// start_idx ranges over [0, len(pattern)-minMatchThreshold). See DESIGN.md
// for why this is 3, not the 4 named in the distilled spec prose.
const MinMatchThreshold = 3

// Speculate tries successive starting offsets into pattern, preferring
// longer matches (smaller start_idx), and returns the first candidate with
// a positive score. minMatchThreshold is normally config.CacheConfig's
// MinMatchThreshold, threaded through by the caller rather than read from
// a package global, so it can vary per deployment.
func (t *SuffixTree) Speculate(pattern []int32, maxSpecTokens int, minTokenProb float64, useTreeSpec bool, minMatchThreshold int) Candidate {
	if len(pattern) == 0 {
		return Candidate{}
	}

	upper := len(pattern) - minMatchThreshold
	for startIdx := 0; startIdx < upper; startIdx++ {
		node, edgeOffset, ok := t.Match(pattern, startIdx)
		if !ok {
			continue
		}

		var cand Candidate
		if useTreeSpec {
			cand = t.speculateTree(node, edgeOffset, maxSpecTokens, minTokenProb)
		} else {
			cand = t.speculatePath(node, edgeOffset, maxSpecTokens, minTokenProb)
		}
		cand.MatchLen = int32(len(pattern) - startIdx)
		if cand.Score > 0 {
			return cand
		}
	}
	return Candidate{}
}

// bestChild picks the child with the largest count, breaking ties by the
// lower first-edge-token.
func (t *SuffixTree) bestChild(parent NodeRef) NodeRef {
	best := NilRef
	var bestCount int32 = -1
	var bestTok int32

	child := t.node(parent).FirstChild
	for child != NilRef {
		c := t.node(child)
		tok := t.seqAt(c.Start)
		if c.Count > bestCount || (c.Count == bestCount && tok < bestTok) {
			best = child
			bestCount = c.Count
			bestTok = tok
		}
		child = c.NextSibling
	}
	return best
}

// speculatePath greedily walks the best-child chain, emitting tokens along
// each edge until exhaustion, then descending. The result is a linear
// chain: parents[0] = -1, parents[i] = i-1.
func (t *SuffixTree) speculatePath(node NodeRef, idx int32, max int, minProb float64) Candidate {
	var cand Candidate
	prob := 1.0
	curNode := node
	curIdx := idx
	pos := t.used - 1

	for len(cand.TokenIDs) < max {
		length := t.edgeLength(curNode, pos)
		if curIdx >= length {
			n := t.node(curNode)
			best := t.bestChild(curNode)
			if best == NilRef || n.Count <= 0 {
				break
			}
			newProb := prob * float64(t.node(best).Count) / float64(n.Count)
			if newProb < minProb {
				break
			}
			prob = newProb
			curNode = best
			curIdx = 0
			length = t.edgeLength(curNode, pos)
		}

		n := t.node(curNode)
		tok := t.seqAt(n.Start + curIdx)
		if tok == Terminator {
			break
		}

		cand.TokenIDs = append(cand.TokenIDs, tok)
		cand.Probs = append(cand.Probs, prob)
		if len(cand.TokenIDs) == 1 {
			cand.Parents = append(cand.Parents, -1)
		} else {
			cand.Parents = append(cand.Parents, int32(len(cand.TokenIDs)-2))
		}
		cand.Score += prob
		curIdx++
	}
	return cand
}

type heapItem struct {
	prob   float64
	node   NodeRef
	idx    int32
	parent int32
}

// maxHeap orders heapItems by descending probability (container/heap gives
// a min-heap by default, so Less is inverted).
type maxHeap []heapItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].prob > h[j].prob }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// speculateTree performs best-first expansion keyed by branching
// probability, producing a branching proposal tree.
func (t *SuffixTree) speculateTree(node NodeRef, idx int32, max int, minProb float64) Candidate {
	var cand Candidate
	pos := t.used - 1

	h := &maxHeap{{prob: 1.0, node: node, idx: idx, parent: -1}}
	heap.Init(h)

	for h.Len() > 0 && len(cand.TokenIDs) < max {
		item := heap.Pop(h).(heapItem)
		n := t.node(item.node)
		length := t.edgeLength(item.node, pos)

		if item.idx < length {
			tok := t.seqAt(n.Start + item.idx)
			if tok == Terminator {
				continue
			}
			cand.TokenIDs = append(cand.TokenIDs, tok)
			cand.Probs = append(cand.Probs, item.prob)
			cand.Parents = append(cand.Parents, item.parent)
			cand.Score += item.prob

			newParent := int32(len(cand.TokenIDs) - 1)
			heap.Push(h, heapItem{prob: item.prob, node: item.node, idx: item.idx + 1, parent: newParent})
			continue
		}

		if n.Count <= 0 {
			continue
		}
		child := n.FirstChild
		for child != NilRef {
			c := t.node(child)
			newProb := item.prob * float64(c.Count) / float64(n.Count)
			if newProb >= minProb {
				heap.Push(h, heapItem{prob: newProb, node: child, idx: 0, parent: item.parent})
			}
			child = c.NextSibling
		}
	}
	return cand
}
