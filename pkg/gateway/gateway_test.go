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

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchingPrefixLen(t *testing.T) {
	assert.Equal(t, 3, matchingPrefixLen([]int32{1, 2, 3, 4}, []int32{1, 2, 3, 9}))
	assert.Equal(t, 0, matchingPrefixLen([]int32{5, 2}, []int32{1, 2}))
	assert.Equal(t, 2, matchingPrefixLen([]int32{1, 2}, []int32{1, 2, 3}))
	assert.Equal(t, 0, matchingPrefixLen(nil, []int32{1}))
}

func TestDecodeWholeBodyChatCompletion(t *testing.T) {
	body := []byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"hello world"}}]}`)
	text, err := decodeWholeBody(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestDecodeWholeBodyCompletion(t *testing.T) {
	body := []byte(`{"choices":[{"text":"continuation text"}]}`)
	text, err := decodeWholeBody(body)
	require.NoError(t, err)
	assert.Equal(t, "continuation text", text)
}

func TestJoinTokens(t *testing.T) {
	assert.Equal(t, "1,2,3", joinTokens([]int32{1, 2, 3}))
	assert.Equal(t, "", joinTokens(nil))
}
