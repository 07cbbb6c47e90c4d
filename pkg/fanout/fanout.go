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

package fanout

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/vllm-project/specache/pkg/hashing"
	"github.com/vllm-project/specache/pkg/lrustore"
	"github.com/vllm-project/specache/pkg/metrics"
)

// UpdateRequest is the fanout-level request shape, carrying full prompt
// and response token slices per §6's wire contract.
type UpdateRequest struct {
	PromptHash uint64
	Prompt     []int32
	Responses  [][]int32
}

// Publisher sends one UpdateRequest to one UpdateService endpoint. The
// concrete implementation (pkg/wire) speaks the HTTP+JSON encoding of
// §6's wire protocol; Publisher is the seam that keeps fanout's
// concurrency shape independent of transport.
type Publisher interface {
	Publish(ctx context.Context, endpoint string, req UpdateRequest) (success bool, err error)
}

const uploadTrackerCapacity = 1 << 16
const uploadTrackerTTL = 10 * time.Minute
const uploadTrackerSweep = 1 * time.Minute

// Fanout dispatches update calls to every discovered UpdateService
// endpoint concurrently, tracking the incremental prompt-upload boundary
// per prompt hash (suffix_cache_updater.cc's prompt_hash_to_uploaded_len_,
// keyed by hash rather than req_id per §4.4's writer-side optimization).
type Fanout struct {
	endpoints []string
	publisher Publisher
	uploaded  *lrustore.LRUStore[uint64, int]
}

// New wires a Fanout to a fixed endpoint list and a Publisher
// implementation.
func New(endpoints []string, publisher Publisher) *Fanout {
	return &Fanout{
		endpoints: endpoints,
		publisher: publisher,
		uploaded:  lrustore.NewLRUStore[uint64, int](uploadTrackerCapacity, uploadTrackerTTL, uploadTrackerSweep, lrustore.DefaultGetCurrentTime),
	}
}

// PublishResponses sends prompt+responses to every endpoint concurrently
// and waits for all (request, endpoint) completions, matching
// update_response_cache's per-pair async dispatch. A single endpoint
// failure is logged and does not abort the batch.
func (f *Fanout) PublishResponses(ctx context.Context, prompt []int32, responses [][]int32) {
	hash := hashing.PromptHash(prompt)
	req := UpdateRequest{
		PromptHash: hash,
		Prompt:     f.incrementalPrompt(hash, prompt),
		Responses:  responses,
	}
	f.dispatch(ctx, req)
}

// PublishPrompt sends a prompt-only warm-cache update to every endpoint,
// the fanout counterpart of update_prompt_cache.
func (f *Fanout) PublishPrompt(ctx context.Context, prompt []int32) {
	hash := hashing.PromptHash(prompt)
	req := UpdateRequest{
		PromptHash: hash,
		Prompt:     f.incrementalPrompt(hash, prompt),
	}
	f.dispatch(ctx, req)
}

// incrementalPrompt trims prompt to the tail beyond the greatest length
// already uploaded for hash, then records the new boundary. Unlike the
// original's unconditional overwrite (a latent over-count if the tracked
// length ever regresses for the same hash), the boundary only ever moves
// forward: recorded via max(existing, len(prompt)), per the shrinkage
// guard documented in DESIGN.md.
func (f *Fanout) incrementalPrompt(hash uint64, prompt []int32) []int32 {
	uploaded, _ := f.uploaded.Get(hash)
	start := uploaded
	if start > len(prompt) {
		start = len(prompt)
	}
	f.uploaded.Put(hash, max(uploaded, len(prompt)))
	return prompt[start:]
}

func (f *Fanout) dispatch(ctx context.Context, req UpdateRequest) {
	var wg sync.WaitGroup
	wg.Add(len(f.endpoints))
	for _, endpoint := range f.endpoints {
		endpoint := endpoint
		go func() {
			defer wg.Done()
			success, err := f.publisher.Publish(ctx, endpoint, req)
			if err != nil || !success {
				klog.ErrorS(err, "update call failed", "endpoint", endpoint, "promptHash", req.PromptHash, "success", success)
				metrics.FanoutRequestsTotal.WithLabelValues("failure").Inc()
				return
			}
			metrics.FanoutRequestsTotal.WithLabelValues("success").Inc()
		}()
	}
	wg.Wait()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
