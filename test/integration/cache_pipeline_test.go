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

package integration

import (
	"fmt"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/vllm-project/specache/pkg/arena"
	"github.com/vllm-project/specache/pkg/cacheupdate"
	"github.com/vllm-project/specache/pkg/config"
	"github.com/vllm-project/specache/pkg/queryapi"
	"github.com/vllm-project/specache/pkg/treeregistry"
)

var _ = ginkgo.Describe("UpdateService and QueryAPI against a shared arena", func() {
	var (
		a        *arena.Arena
		registry *treeregistry.TreeRegistry
		updater  *cacheupdate.Service
		query    *queryapi.Service
		cfg      config.CacheConfig
		dir      string
	)

	ginkgo.BeforeEach(func() {
		dir = ginkgo.GinkgoT().TempDir()
		cfg = config.NewCacheConfig()
		cfg.ArenaDir = dir
		cfg.ArenaSizeBytes = 64 << 20
		cfg.ArenaName = fmt.Sprintf("SPECACHE_TEST_%d", ginkgo.GinkgoRandomSeed())

		var err error
		a, err = arena.Create(cfg.ArenaDir, cfg.ArenaName, cfg.ArenaSizeBytes)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		registry = treeregistry.Open(a)
		updater = cacheupdate.New(a, registry, cfg)
		query = queryapi.New(a, registry, cfg)
	})

	ginkgo.AfterEach(func() {
		for _, meta := range registry.Drain() {
			_ = meta
		}
		gomega.Expect(a.Close()).To(gomega.Succeed())
		gomega.Expect(a.Unlink()).To(gomega.Succeed())
	})

	// Speculate's pattern is the tokens generated so far, not the bare
	// prompt: matching the prompt alone lands right on the terminator
	// that follows it in the composite sequence (§4.4), so every case
	// below speculates with the prompt plus the response's first token,
	// the same convention pkg/queryapi's own tests use.

	ginkgo.It("serves a speculated continuation after a publish", func() {
		prompt := []int32{1, 2, 3, 4, 5}
		response := []int32{6, 7, 8, 9, 10}
		gomega.Expect(updater.PublishResponses(prompt, [][]int32{response})).To(gomega.BeTrue())

		reqID := "req-1"
		gomega.Expect(query.FetchResponsesByPromptsBatch([]string{reqID}, [][]int32{prompt})).To(gomega.Succeed())

		pattern := append(append([]int32{}, prompt...), response[0])
		cands := query.Speculate([]string{reqID}, [][]int32{pattern}, 0.0, false)
		gomega.Expect(cands).To(gomega.HaveLen(1))
		gomega.Expect(cands[0]).NotTo(gomega.BeEmpty())
		gomega.Expect(cands[0][0]).To(gomega.Equal(response[1]))

		query.UpdateSpecLen(reqID, len(cands[0]))
		gomega.Expect(query.SpecLen(reqID)).To(gomega.BeNumerically(">=", cfg.SpecMin))

		query.EvictResponses(reqID)
		gomega.Expect(query.SpecLen(reqID)).To(gomega.Equal(cfg.SpecMin))
	})

	ginkgo.It("batches fetches for multiple requests under one lock span", func() {
		promptA, responseA := []int32{11, 12, 13}, []int32{21, 22, 23, 24}
		promptB, responseB := []int32{31, 32, 33}, []int32{41, 42, 43, 44}
		gomega.Expect(updater.PublishResponses(promptA, [][]int32{responseA})).To(gomega.BeTrue())
		gomega.Expect(updater.PublishResponses(promptB, [][]int32{responseB})).To(gomega.BeTrue())

		reqIDs := []string{"req-a", "req-b"}
		prompts := [][]int32{promptA, promptB}
		gomega.Expect(query.FetchResponsesByPromptsBatch(reqIDs, prompts)).To(gomega.Succeed())

		patterns := [][]int32{
			append(append([]int32{}, promptA...), responseA[0]),
			append(append([]int32{}, promptB...), responseB[0]),
		}
		cands := query.Speculate(reqIDs, patterns, 0.0, false)
		gomega.Expect(cands).To(gomega.HaveLen(2))
		gomega.Expect(cands[0]).To(gomega.Equal([]int32{responseA[1], responseA[2]}))
		gomega.Expect(cands[1]).To(gomega.Equal([]int32{responseB[1], responseB[2]}))
	})

	ginkgo.It("returns no candidate for a prompt that was never published", func() {
		reqID := "req-unknown"
		unseen := []int32{42, 43, 44}
		gomega.Expect(query.FetchResponsesByPromptsBatch([]string{reqID}, [][]int32{unseen})).To(gomega.Succeed())

		cands := query.Speculate([]string{reqID}, [][]int32{append(unseen, 45)}, 0.0, false)
		gomega.Expect(cands).To(gomega.HaveLen(1))
		gomega.Expect(cands[0]).To(gomega.BeEmpty())
	})

	ginkgo.It("supersedes a prior publish for the same prompt", func() {
		prompt := []int32{50, 51, 52, 53}
		gomega.Expect(updater.PublishResponses(prompt, [][]int32{{61, 62, 63}})).To(gomega.BeTrue())
		gomega.Expect(updater.PublishResponses(prompt, [][]int32{{71, 72, 73}})).To(gomega.BeTrue())

		reqID := "req-supersede"
		gomega.Expect(query.FetchResponsesByPromptsBatch([]string{reqID}, [][]int32{prompt})).To(gomega.Succeed())

		pattern := append(append([]int32{}, prompt...), 71)
		cands := query.Speculate([]string{reqID}, [][]int32{pattern}, 0.0, false)
		gomega.Expect(cands[0][0]).To(gomega.Equal(int32(72)))
	})
})
