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

// Package cacheupdate implements UpdateService (C4): assembling the
// composite token sequence for a prompt and its responses, building a
// fresh SuffixTree from it, and publishing the tree under the prompt's
// hash. Grounded on rollout_cache_server.cc's UpdateCache handler.
package cacheupdate

import (
	"k8s.io/klog/v2"

	"github.com/vllm-project/specache/pkg/arena"
	"github.com/vllm-project/specache/pkg/config"
	"github.com/vllm-project/specache/pkg/hashing"
	"github.com/vllm-project/specache/pkg/metrics"
	"github.com/vllm-project/specache/pkg/suffixtree"
	"github.com/vllm-project/specache/pkg/treeregistry"
)

// Service builds and publishes trees. One Service is shared by every RPC
// handler in the process; construction itself needs no synchronization
// (each request builds its own tree), only the final publish does.
type Service struct {
	arena    *arena.Arena
	registry *treeregistry.TreeRegistry
	cfg      config.CacheConfig
}

// New wires a cache-update service to an already-open arena and registry.
func New(a *arena.Arena, r *treeregistry.TreeRegistry, cfg config.CacheConfig) *Service {
	return &Service{arena: a, registry: r, cfg: cfg}
}

// PublishResponses assembles the composite sequence for prompt/responses,
// builds a tree, and publishes it under the prompt's hash. It implements
// the exact wire contract of §4.4/§6: on success the previous tree (if
// any) is destroyed after the registry lock is released; on
// arena-out-of-space nothing is published and success is false.
func (s *Service) PublishResponses(prompt []int32, responses [][]int32) (success bool) {
	promptHash := hashing.PromptHash(prompt)
	tokens := composite(prompt, responses, s.cfg.PrefixBridge)

	tree, err := suffixtree.New(s.arena, len(tokens))
	if err != nil {
		klog.ErrorS(err, "arena allocation failed, not publishing", "promptHash", promptHash)
		metrics.RecordPublish(metrics.PublishArenaFull)
		return false
	}
	if err := tree.Extend(0, tokens); err != nil {
		klog.ErrorS(err, "tree construction failed, not publishing", "promptHash", promptHash)
		tree.Destroy()
		metrics.RecordPublish(metrics.PublishArenaFull)
		return false
	}
	tree.ComputeCounts()

	if !s.publish(promptHash, tree) {
		metrics.RecordPublish(metrics.PublishRegistryFull)
		return false
	}
	metrics.RecordPublish(metrics.PublishSuccess)
	metrics.ArenaUsedBytes.Set(float64(s.arena.UsedBytes()))
	metrics.ArenaLiveBytes.Set(float64(s.arena.LiveBytes()))
	return true
}

// PublishPrompt is the warm-path variant used when a prompt arrives before
// any of its responses (original_source's update_prompt_cache): it builds
// a tree over the prompt alone so that a decoder attached before rollout
// completes still has something to match against, and a later
// PublishResponses call for the same prompt_hash supersedes it.
func (s *Service) PublishPrompt(prompt []int32) (success bool) {
	return s.PublishResponses(prompt, nil)
}

// publish records tree's arena handle in the registry, swapping out and
// destroying any prior tree for the same hash once the lock is released
// (rollout_cache_server.cc: emplace under lock, destroy_ptr outside it).
func (s *Service) publish(promptHash uint64, tree *suffixtree.SuffixTree) bool {
	meta := tree.Snapshot()

	s.arena.Lock()
	old, hadOld, ok := s.registry.Publish(promptHash, meta)
	s.arena.Unlock()

	if !ok {
		klog.ErrorS(nil, "tree registry full, discarding newly built tree", "promptHash", promptHash)
		tree.Destroy()
		return false
	}
	if hadOld {
		suffixtree.Attach(s.arena, old).Destroy()
	}
	return true
}

// composite builds the exact token layout from §4.4: prompt, terminator,
// then prefix+response+terminator per response. prefix is the last
// min(prefixBridge, len(prompt)) tokens of prompt.
func composite(prompt []int32, responses [][]int32, prefixBridge int) []int32 {
	total := len(prompt) + 1
	prefixLen := prefixBridge
	if prefixLen > len(prompt) {
		prefixLen = len(prompt)
	}
	for _, r := range responses {
		total += prefixLen + len(r) + 1
	}

	out := make([]int32, 0, total)
	out = append(out, prompt...)
	out = append(out, suffixtree.Terminator)

	prefix := prompt[len(prompt)-prefixLen:]
	for _, r := range responses {
		out = append(out, prefix...)
		out = append(out, r...)
		out = append(out, suffixtree.Terminator)
	}
	return out
}
