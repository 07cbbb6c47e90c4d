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

package config

import "github.com/vllm-project/specache/pkg/utils"

const (
	DefaultArenaDir              = "" // empty means arena.Create/Open's own /dev/shm default
	DefaultArenaName             = "SUFFIX_CACHE"
	DefaultArenaSizeBytes        = 500 << 30 // 500 GiB, a mapping not a reservation
	DefaultSpecMin               = 2
	DefaultSpecMax               = 16
	DefaultPrefixBridge          = 5
	DefaultMinMatchThreshold     = 3
	DefaultWorkerPoolSize        = 8
	DefaultMinTokenProb          = 0.1
	DefaultWorkerHostsEnvVar     = "SPECACHE_WORKER_HOSTS"
	DefaultUpdatePort            = 6378
	DefaultMaxRegisteredPrompts  = 1 << 20
)

// CacheConfig holds the runtime settings for the arena, tree registry and
// speculation controller. It is built once at process startup and threaded
// through the API rather than read from globals at call time.
type CacheConfig struct {
	ArenaDir             string
	ArenaName            string
	ArenaSizeBytes       int64
	MaxRegisteredPrompts int

	SpecMin           int
	SpecMax           int
	PrefixBridge      int
	MinMatchThreshold int
	MinTokenProb      float64
	WorkerPoolSize    int

	WorkerHostsEnvVar string
	UpdatePort        int
}

// NewCacheConfig builds a CacheConfig from environment variables, falling
// back to the reference defaults from the specification.
func NewCacheConfig() CacheConfig {
	return CacheConfig{
		ArenaDir:             utils.LoadEnv("SPECACHE_ARENA_DIR", DefaultArenaDir),
		ArenaName:            utils.LoadEnv("SPECACHE_ARENA_NAME", DefaultArenaName),
		ArenaSizeBytes:       int64(utils.LoadEnvInt("SPECACHE_ARENA_SIZE_BYTES", DefaultArenaSizeBytes)),
		MaxRegisteredPrompts: utils.LoadEnvInt("SPECACHE_MAX_PROMPTS", DefaultMaxRegisteredPrompts),

		SpecMin:           utils.LoadEnvInt("SPECACHE_SPEC_MIN", DefaultSpecMin),
		SpecMax:           utils.LoadEnvInt("SPECACHE_SPEC_MAX", DefaultSpecMax),
		PrefixBridge:      utils.LoadEnvInt("SPECACHE_PREFIX_BRIDGE", DefaultPrefixBridge),
		MinMatchThreshold: utils.LoadEnvInt("SPECACHE_MIN_MATCH_THRESHOLD", DefaultMinMatchThreshold),
		MinTokenProb:      utils.LoadEnvFloat("SPECACHE_MIN_TOKEN_PROB", DefaultMinTokenProb),
		WorkerPoolSize:    utils.LoadEnvInt("SPEC_WORKER_POOL_SIZE", DefaultWorkerPoolSize),

		WorkerHostsEnvVar: utils.LoadEnv("SPECACHE_WORKER_HOSTS_ENV_VAR", DefaultWorkerHostsEnvVar),
		UpdatePort:        utils.LoadEnvInt("SPECACHE_UPDATE_PORT", DefaultUpdatePort),
	}
}
