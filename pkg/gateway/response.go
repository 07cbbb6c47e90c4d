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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	oaistream "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
	oai "github.com/sashabaranov/go-openai"
	"k8s.io/klog/v2"

	configPb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extProcPb "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	envoyTypePb "github.com/envoyproxy/go-control-plane/envoy/type/v3"

	"github.com/vllm-project/specache/pkg/tokenizer"
)

// handleResponseBody buffers response bytes for a single ext_proc stream
// until EndOfStream, then extracts the completion text, tokenizes it,
// publishes the realized (prompt, response) pair to UpdateService, and
// scores the earlier speculation against what the model actually emitted
// so QueryAPI's MIMD controller can adapt. Grounded on the teacher's
// HandleResponseBody, with routing/rate-limit bookkeeping removed and the
// cache-update call substituted for the trace-accounting it used to do.
func (s *Server) handleResponseBody(requestID string, req *extProcPb.ProcessingRequest) *extProcPb.ProcessingResponse {
	b := req.Request.(*extProcPb.ProcessingRequest_ResponseBody)

	st := s.getOrCreateState(requestID)
	st.respBuf = append(st.respBuf, b.ResponseBody.GetBody()...)

	if !b.ResponseBody.EndOfStream {
		return headerMutationResponse(responseBodyField, nil)
	}

	text, err := extractCompletionText(st.respBuf)
	if err != nil {
		klog.ErrorS(err, "failed to parse response body", "requestID", requestID)
		return errorResponse(envoyTypePb.StatusCode_InternalServerError, HeaderErrorResponseUnmarshal, err.Error())
	}

	responseTokens := tokenizer.Encode(text)
	published := false
	if len(st.promptTokens) > 0 && len(responseTokens) > 0 {
		published = s.updater.PublishResponses(st.promptTokens, [][]int32{responseTokens})
	}

	validLen := matchingPrefixLen(st.specTokens, responseTokens)
	s.query.UpdateSpecLen(requestID, validLen)

	klog.V(4).InfoS("response body processed", "requestID", requestID,
		"responseTokens", len(responseTokens), "validLen", validLen, "published", published)

	return headerMutationResponse(responseBodyField, []*configPb.HeaderValueOption{publishedHeader(published)})
}

// extractCompletionText decodes either a streaming SSE chat-completion
// chunk sequence (via openai-go's ssestream, the same decoder the teacher
// uses) or a whole-body non-streaming chat/completions response (via
// go-openai's response structs, covering both /v1/chat/completions and
// /v1/completions shapes).
func extractCompletionText(body []byte) (string, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("data:")) {
		return decodeSSE(body)
	}
	return decodeWholeBody(body)
}

func decodeSSE(body []byte) (string, error) {
	resp := &http.Response{Body: io.NopCloser(bytes.NewReader(body))}
	stream := ssestream.NewStream[oaistream.ChatCompletionChunk](ssestream.NewDecoder(resp), nil)

	var b strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			b.WriteString(choice.Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func decodeWholeBody(body []byte) (string, error) {
	var chat oai.ChatCompletionResponse
	if err := json.Unmarshal(body, &chat); err == nil && len(chat.Choices) > 0 && chat.Choices[0].Message.Content != "" {
		return chat.Choices[0].Message.Content, nil
	}

	var completion struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Text, nil
}

// matchingPrefixLen counts how many leading tokens of speculated match
// actual, the "valid_len" QueryAPI.UpdateSpecLen expects.
func matchingPrefixLen(speculated, actual []int32) int {
	n := 0
	for n < len(speculated) && n < len(actual) && speculated[n] == actual[n] {
		n++
	}
	return n
}

func publishedHeader(published bool) *configPb.HeaderValueOption {
	return headerValue(HeaderPublished, strconv.FormatBool(published))
}
