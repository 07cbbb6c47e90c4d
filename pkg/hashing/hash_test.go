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

package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptHashDeterministic(t *testing.T) {
	a := PromptHash([]int32{10, 11, 12})
	b := PromptHash([]int32{10, 11, 12})
	assert.Equal(t, a, b)
}

func TestPromptHashDistinguishesSuffix(t *testing.T) {
	a := PromptHash([]int32{10, 11, 12})
	b := PromptHash([]int32{10, 11, 13})
	assert.NotEqual(t, a, b)
}

func TestPromptHashEmpty(t *testing.T) {
	assert.Equal(t, uint64(0), PromptHash(nil))
}
