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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverEndpointsExtractsUniqueBracketedIPv6(t *testing.T) {
	t.Setenv("SPECACHE_TEST_HOSTS", "worker at [fe80::1]:9000 and [fe80::2]:9000, again [fe80::1]:9000")
	got := DiscoverEndpoints("SPECACHE_TEST_HOSTS", 6378)
	assert.ElementsMatch(t, []string{"[fe80::1]:6378", "[fe80::2]:6378"}, got)
}

func TestDiscoverEndpointsFallsBackToLocalhost(t *testing.T) {
	t.Setenv("SPECACHE_TEST_HOSTS_EMPTY", "no addresses here")
	got := DiscoverEndpoints("SPECACHE_TEST_HOSTS_EMPTY", 6378)
	assert.Equal(t, []string{"localhost:6378"}, got)
}

func TestDiscoverEndpointsUnsetVarFallsBack(t *testing.T) {
	got := DiscoverEndpoints("SPECACHE_TEST_HOSTS_UNSET_XYZ", 6378)
	assert.Equal(t, []string{"localhost:6378"}, got)
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []UpdateRequest
	fail  map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, endpoint string, req UpdateRequest) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.fail[endpoint] {
		return false, errors.New("simulated failure")
	}
	return true, nil
}

func TestDispatchReachesEveryEndpointDespiteOneFailure(t *testing.T) {
	pub := &recordingPublisher{fail: map[string]bool{"bad:1": true}}
	f := New([]string{"good:1", "bad:1", "good:2"}, pub)

	f.PublishResponses(context.Background(), []int32{1, 2, 3}, [][]int32{{4, 5}})

	assert.Len(t, pub.calls, 3)
}

func TestIncrementalPromptTrimsPreviouslyUploadedPrefix(t *testing.T) {
	pub := &recordingPublisher{}
	f := New([]string{"only:1"}, pub)

	f.PublishResponses(context.Background(), []int32{1, 2, 3}, nil)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, []int32{1, 2, 3}, pub.calls[0].Prompt)

	f.PublishResponses(context.Background(), []int32{1, 2, 3, 4, 5}, nil)
	require.Len(t, pub.calls, 2)
	assert.Equal(t, []int32{4, 5}, pub.calls[1].Prompt)
}

func TestIncrementalPromptNeverPanicsOnShrinkingPrompt(t *testing.T) {
	pub := &recordingPublisher{}
	f := New([]string{"only:1"}, pub)

	f.PublishResponses(context.Background(), []int32{1, 2, 3, 4, 5}, nil)
	f.PublishResponses(context.Background(), []int32{1, 2}, nil)

	require.Len(t, pub.calls, 2)
	assert.Empty(t, pub.calls[1].Prompt)
}
