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

package queryapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vllm-project/specache/pkg/arena"
	"github.com/vllm-project/specache/pkg/cacheupdate"
	"github.com/vllm-project/specache/pkg/config"
	"github.com/vllm-project/specache/pkg/treeregistry"
)

func newTestStack(t *testing.T) (*Service, *cacheupdate.Service) {
	t.Helper()
	dir := t.TempDir()
	a, err := arena.Create(dir, "queryapi_test", 64<<20)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = a.Unlink()
	})

	cfg := config.NewCacheConfig()
	reg := treeregistry.Open(a)
	return New(a, reg, cfg), cacheupdate.New(a, reg, cfg)
}

func TestFetchBatchRejectsMismatchedLengths(t *testing.T) {
	svc, _ := newTestStack(t)
	err := svc.FetchResponsesByPromptsBatch([]string{"a", "b"}, [][]int32{{1}})
	assert.Error(t, err)
}

func TestFetchThenSpeculateReturnsCandidate(t *testing.T) {
	svc, updater := newTestStack(t)
	prompt := []int32{10, 11, 12}
	require.True(t, updater.PublishResponses(prompt, [][]int32{{20, 21, 22, 23}}))

	require.NoError(t, svc.FetchResponsesByPromptsBatch([]string{"req1"}, [][]int32{prompt}))

	results := svc.Speculate([]string{"req1"}, [][]int32{{10, 11, 12, 20}}, 0.0, false)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0])
}

func TestSpeculateMissingTreeYieldsEmptyNotError(t *testing.T) {
	svc, _ := newTestStack(t)
	require.NoError(t, svc.FetchResponsesByPromptsBatch([]string{"ghost"}, [][]int32{{99, 98, 97}}))

	results := svc.Speculate([]string{"ghost"}, [][]int32{{99, 98, 97, 96}}, 0.0, false)
	require.Len(t, results, 1)
	assert.Empty(t, results[0])
}

func TestUpdateSpecLenGrowsAndShrinks(t *testing.T) {
	svc, updater := newTestStack(t)
	prompt := []int32{1, 2, 3}
	require.True(t, updater.PublishResponses(prompt, [][]int32{{4, 5, 6}}))
	require.NoError(t, svc.FetchResponsesByPromptsBatch([]string{"r"}, [][]int32{prompt}))

	st := svc.state["r"]
	start := st.specLen

	svc.UpdateSpecLen("r", start+10) // valid_len > current -> grow
	assert.Equal(t, min(start*2, svc.cfg.SpecMax), st.specLen)

	grown := st.specLen
	svc.UpdateSpecLen("r", 0) // valid_len < current -> shrink
	assert.Equal(t, max(grown/2, svc.cfg.SpecMin), st.specLen)
}

func TestEvictResponsesRemovesState(t *testing.T) {
	svc, _ := newTestStack(t)
	require.NoError(t, svc.FetchResponsesByPromptsBatch([]string{"x"}, [][]int32{{1, 2}}))
	require.Contains(t, svc.state, "x")

	svc.EvictResponses("x")
	assert.NotContains(t, svc.state, "x")
}
