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

package wire

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vllm-project/specache/pkg/fanout"
)

type stubHandler struct {
	lastPrompt    []int32
	lastResponses [][]int32
	result        bool
}

func (s *stubHandler) PublishResponses(prompt []int32, responses [][]int32) bool {
	s.lastPrompt = prompt
	s.lastResponses = responses
	return s.result
}

func TestHTTPRoundTripSuccess(t *testing.T) {
	handler := &stubHandler{result: true}
	srv := NewHTTPServer("", handler)
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	pub := NewHTTPPublisher(2 * time.Second)
	endpoint := ts.Listener.Addr().String()

	success, err := pub.Publish(context.Background(), endpoint, fanout.UpdateRequest{
		PromptHash: 42,
		Prompt:     []int32{1, 2, 3},
		Responses:  [][]int32{{4, 5}},
	})
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, []int32{1, 2, 3}, handler.lastPrompt)
	assert.Equal(t, [][]int32{{4, 5}}, handler.lastResponses)
}

func TestHTTPRoundTripReportsServerFailure(t *testing.T) {
	handler := &stubHandler{result: false}
	srv := NewHTTPServer("", handler)
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	pub := NewHTTPPublisher(2 * time.Second)
	success, err := pub.Publish(context.Background(), ts.Listener.Addr().String(), fanout.UpdateRequest{
		PromptHash: 1,
		Prompt:     []int32{1},
	})
	require.NoError(t, err)
	assert.False(t, success)
}

func TestHTTPRoundTripUnreachableEndpointErrors(t *testing.T) {
	pub := NewHTTPPublisher(200 * time.Millisecond)
	_, err := pub.Publish(context.Background(), "127.0.0.1:1", fanout.UpdateRequest{PromptHash: 1})
	assert.Error(t, err)
}
