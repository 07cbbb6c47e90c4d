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

// Package queryapi implements QueryAPI (C5): the decoder-facing,
// process-local batch fetch, speculation and spec-length control loop.
// Grounded on suffix_cache.cc's fetch_responses_by_prompts_batch,
// speculate and update_spec_len.
package queryapi

import (
	"sync"

	"github.com/vllm-project/specache/pkg/arena"
	"github.com/vllm-project/specache/pkg/config"
	specacheerrors "github.com/vllm-project/specache/pkg/errors"
	"github.com/vllm-project/specache/pkg/hashing"
	"github.com/vllm-project/specache/pkg/metrics"
	"github.com/vllm-project/specache/pkg/suffixtree"
	"github.com/vllm-project/specache/pkg/treeregistry"
)

// requestState is the process-local record kept per req_id between a
// batch fetch and the speculate/evict calls that follow it.
type requestState struct {
	treeMeta suffixtree.TreeMeta
	hasTree  bool
	specLen  int
}

// Service holds process-local decoder state: the outstanding requests'
// resolved trees and their current MIMD-controlled speculation length.
// A single Service instance is not safe for concurrent use across
// goroutines touching the same req_id; distinct req_ids may proceed
// concurrently (see SPEC_FULL §5).
type Service struct {
	arena    *arena.Arena
	registry *treeregistry.TreeRegistry
	cfg      config.CacheConfig

	mu    sync.RWMutex
	state map[string]*requestState

	workers chan struct{}
}

// New wires a query service to an already-open arena and registry, sized
// for cfg.WorkerPoolSize concurrent speculate workers (reference: 8,
// grounded on suffix_cache.cc's omp_set_num_threads(8)).
func New(a *arena.Arena, r *treeregistry.TreeRegistry, cfg config.CacheConfig) *Service {
	return &Service{
		arena:    a,
		registry: r,
		cfg:      cfg,
		state:    make(map[string]*requestState),
		workers:  make(chan struct{}, cfg.WorkerPoolSize),
	}
}

// FetchResponsesByPromptsBatch resolves reqIDs[i] -> tree for prompts[i],
// caching the result and seeding spec_len at SpecMin for any req_id not
// already tracked. The whole batch is resolved under one arena-lock
// acquisition, matching the original's single scoped_lock spanning the
// full batch rather than one per prompt.
func (s *Service) FetchResponsesByPromptsBatch(reqIDs []string, prompts [][]int32) error {
	if len(reqIDs) != len(prompts) {
		return specacheerrors.NewInputMismatchError("req_ids and prompts must be the same length")
	}

	type resolved struct {
		reqID  string
		prompt []int32
		meta   suffixtree.TreeMeta
		found  bool
	}
	fresh := make([]resolved, 0, len(reqIDs))

	s.mu.RLock()
	for i, id := range reqIDs {
		if _, tracked := s.state[id]; !tracked {
			fresh = append(fresh, resolved{reqID: id, prompt: prompts[i]})
		}
	}
	s.mu.RUnlock()
	if len(fresh) == 0 {
		return nil
	}

	s.arena.Lock()
	for i := range fresh {
		hash := hashing.PromptHash(fresh[i].prompt)
		fresh[i].meta, fresh[i].found = s.registry.Lookup(hash)
	}
	s.arena.Unlock()

	s.mu.Lock()
	for _, r := range fresh {
		s.state[r.reqID] = &requestState{treeMeta: r.meta, hasTree: r.found, specLen: s.cfg.SpecMin}
	}
	s.mu.Unlock()
	return nil
}

// Speculate runs suffix_cache.cc's speculate over the batch, one worker
// pool slot per req_id, independently: each request only touches its own
// tree (immutable after publish) and its own spec_len, so no
// synchronization is needed beyond the pool's concurrency cap. Missing or
// null trees yield an empty token list rather than an error, matching
// §4.5.
func (s *Service) Speculate(reqIDs []string, patterns [][]int32, minTokenProb float64, useTreeSpec bool) [][]int32 {
	results := make([][]int32, len(reqIDs))
	var wg sync.WaitGroup
	wg.Add(len(reqIDs))

	for i := range reqIDs {
		i := i
		s.workers <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-s.workers }()
			results[i] = s.speculateOne(reqIDs[i], patterns[i], minTokenProb, useTreeSpec)
		}()
	}
	wg.Wait()
	return results
}

func (s *Service) speculateOne(reqID string, pattern []int32, minTokenProb float64, useTreeSpec bool) []int32 {
	s.mu.RLock()
	st, ok := s.state[reqID]
	s.mu.RUnlock()
	if !ok || !st.hasTree {
		return nil
	}

	tree := suffixtree.Attach(s.arena, st.treeMeta)
	cand := tree.Speculate(pattern, st.specLen, minTokenProb, useTreeSpec, s.cfg.MinMatchThreshold)

	strategy := metrics.StrategyPath
	if useTreeSpec {
		strategy = metrics.StrategyTree
	}
	metrics.RecordSpeculation(strategy, len(cand.TokenIDs))
	return cand.TokenIDs
}

// UpdateSpecLen applies the multiplicative-increase/multiplicative-decrease
// controller from §4.5: growing on a good prediction (validLen exceeds the
// current window), shrinking otherwise, clamped to [SpecMin, SpecMax].
func (s *Service) UpdateSpecLen(reqID string, validLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[reqID]
	if !ok {
		return
	}
	if validLen > st.specLen {
		st.specLen = min(st.specLen*2, s.cfg.SpecMax)
	} else {
		st.specLen = max(st.specLen/2, s.cfg.SpecMin)
	}
}

// SpecLen reports the spec_len window currently tracked for reqID, or
// cfg.SpecMin if reqID has no tracked state yet. Callers use this purely
// for observability; the controller itself reads st.specLen directly.
func (s *Service) SpecLen(reqID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.state[reqID]; ok {
		return st.specLen
	}
	return s.cfg.SpecMin
}

// EvictResponses drops reqID's tracked tree and spec_len. It never
// touches the arena; the underlying tree, if any, is reclaimed only when
// a fresh publish supersedes it in the registry.
func (s *Service) EvictResponses(reqID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, reqID)
	metrics.EvictTotal.Inc()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
