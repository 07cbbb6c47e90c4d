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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vllm-project/specache/pkg/arena"
)

func newTestTree(t *testing.T, tokens []int32) *SuffixTree {
	t.Helper()
	dir := t.TempDir()
	a, err := arena.Create(dir, "suffixtree_test", 64<<20)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = a.Unlink()
	})

	tree, err := New(a, len(tokens))
	require.NoError(t, err)
	require.NoError(t, tree.Extend(0, tokens))
	tree.ComputeCounts()
	return tree
}

// Scenario 1: basic path speculation.
func TestSpeculateBasicPath(t *testing.T) {
	// prompt [10,11,12], response [20,21,22,23], composite per §4.4.
	tokens := []int32{10, 11, 12, -1, 10, 11, 12, 20, 21, 22, 23, -1}
	tree := newTestTree(t, tokens)

	cand := tree.Speculate([]int32{10, 11, 12, 20}, 4, 0.0, false, MinMatchThreshold)
	require.NotEmpty(t, cand.TokenIDs)
	assert.Equal(t, []int32{21, 22, 23}, cand.TokenIDs[:min(3, len(cand.TokenIDs))])
	assert.LessOrEqual(t, len(cand.TokenIDs), 4)
}

// Scenario 2: best-child tie-break. Speculate only tries suffixes of at
// least MinMatchThreshold+1 tokens, so the shared prefix here is padded to
// [1,2,3,5] rather than the bare [1,5] the tie-break itself hinges on.
func TestSpeculateBestChildTieBreak(t *testing.T) {
	// prompt [1,2,3], responses [[5,6],[5,7],[5,6]].
	tokens := []int32{
		1, 2, 3, -1,
		1, 2, 3, 5, 6, -1,
		1, 2, 3, 5, 7, -1,
		1, 2, 3, 5, 6, -1,
	}
	tree := newTestTree(t, tokens)

	cand := tree.Speculate([]int32{1, 2, 3, 5}, 1, 0.0, false, MinMatchThreshold)
	require.NotEmpty(t, cand.TokenIDs)
	assert.Equal(t, int32(6), cand.TokenIDs[0])
}

// Scenario 3: terminator stops traversal. The pattern matches right up to
// the response's trailing terminator, so speculation must yield nothing
// rather than surface the sentinel.
func TestSpeculateTerminatorStops(t *testing.T) {
	// prompt [1,2], response [99,100].
	tokens := []int32{1, 2, -1, 1, 2, 99, 100, -1}
	tree := newTestTree(t, tokens)

	cand := tree.Speculate([]int32{1, 2, 99, 100}, 5, 0.0, false, MinMatchThreshold)
	assert.Empty(t, cand.TokenIDs)
}

func TestSpeculateTreeNeverEmitsTerminator(t *testing.T) {
	tokens := []int32{
		1, 2, 3, -1,
		1, 2, 3, 5, 6, -1,
		1, 2, 3, 5, 7, -1,
	}
	tree := newTestTree(t, tokens)

	cand := tree.Speculate([]int32{1, 2, 3, 5}, 8, 0.0, true, MinMatchThreshold)
	for _, tok := range cand.TokenIDs {
		assert.NotEqual(t, Terminator, tok)
	}
}

func TestCountInvariant(t *testing.T) {
	tokens := []int32{1, 2, 3, -1, 1, 2, 4, -1}
	tree := newTestTree(t, tokens)

	var walk func(ref NodeRef) int32
	walk = func(ref NodeRef) int32 {
		n := tree.node(ref)
		if n.isLeaf() {
			assert.Equal(t, int32(1), n.Count)
			return n.Count
		}
		var sum int32
		child := n.FirstChild
		for child != NilRef {
			sum += walk(child)
			child = tree.node(child).NextSibling
		}
		assert.Equal(t, sum, n.Count)
		return sum
	}
	walk(tree.Root())
}

func TestMatchTraversesExactSuffixLength(t *testing.T) {
	tokens := []int32{1, 2, 3, -1}
	tree := newTestTree(t, tokens)

	for start := 0; start < len(tokens); start++ {
		suffix := tokens[start:]
		_, _, ok := tree.Match(suffix, 0)
		assert.True(t, ok, "suffix %v should match from root", suffix)
	}
}

func TestVeryShortPatternNeverMatches(t *testing.T) {
	tokens := []int32{1, 2, 3, -1, 1, 2, 4, -1}
	tree := newTestTree(t, tokens)

	cand := tree.Speculate([]int32{1, 2}, 4, 0.0, false, MinMatchThreshold)
	assert.Empty(t, cand.TokenIDs)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
