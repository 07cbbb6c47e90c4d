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

// Package hashing computes the 64-bit prompt hash used to key the tree
// registry. Hashing is always seeded with 0 so that the same prompt suffix
// produces the same key on both the update and query paths.
package hashing

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// PromptHash hashes a token sequence (int32 tokens, little-endian, as in the
// reference implementation's XXH64(prompt.data(), prompt.size()*sizeof(int), 0))
// into the 64-bit key used by TreeRegistry.
func PromptHash(tokens []int32) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	buf := make([]byte, len(tokens)*4)
	for i, tok := range tokens {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(tok))
	}
	return xxhash.Sum64(buf)
}
