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

// Package metrics exposes the cache's own Prometheus collectors: arena
// occupancy, publish/evict counters and a speculation-length histogram.
// Grounded on pkg/metrics/custom_metrics.go's promauto-registered
// GaugeVec/CounterVec pattern, specialized here to a fixed, known set of
// series rather than a dynamically-keyed map since specache's metric
// surface is small and known at compile time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArenaLiveBytes tracks the arena's live-byte accounting (allocated
	// minus freed, per Free's accounting-only semantics).
	ArenaLiveBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specache_arena_live_bytes",
		Help: "Bytes currently attributed to live allocations in the shared arena.",
	})

	// ArenaUsedBytes tracks the bump allocator's cursor: total bytes ever
	// handed out, including freed-but-unreclaimed bytes.
	ArenaUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specache_arena_used_bytes",
		Help: "Bytes consumed from the shared arena's bump allocator cursor.",
	})

	// PublishTotal counts UpdateService publishes, labeled by outcome.
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "specache_publish_total",
		Help: "Total UpdateService publish attempts.",
	}, []string{"outcome"})

	// EvictTotal counts QueryAPI evictions.
	EvictTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specache_evict_total",
		Help: "Total QueryAPI evict_responses calls.",
	})

	// SpeculationTokens observes the number of tokens returned per
	// speculate call, labeled by strategy.
	SpeculationTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "specache_speculation_tokens",
		Help:    "Number of tokens returned per speculate call.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
	}, []string{"strategy"})

	// FanoutRequestsTotal counts ClientFanout dispatches, labeled by
	// outcome (success/failure).
	FanoutRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "specache_fanout_requests_total",
		Help: "Total (request, endpoint) update dispatches.",
	}, []string{"outcome"})
)

// PublishOutcome labels a PublishTotal increment.
type PublishOutcome string

const (
	PublishSuccess      PublishOutcome = "success"
	PublishArenaFull    PublishOutcome = "arena_out_of_space"
	PublishRegistryFull PublishOutcome = "registry_full"
)

// RecordPublish increments PublishTotal for outcome.
func RecordPublish(outcome PublishOutcome) {
	PublishTotal.WithLabelValues(string(outcome)).Inc()
}

// SpeculationStrategy labels a SpeculationTokens observation.
type SpeculationStrategy string

const (
	StrategyPath SpeculationStrategy = "path"
	StrategyTree SpeculationStrategy = "tree"
)

// RecordSpeculation observes tokenCount for strategy.
func RecordSpeculation(strategy SpeculationStrategy, tokenCount int) {
	SpeculationTokens.WithLabelValues(string(strategy)).Observe(float64(tokenCount))
}
