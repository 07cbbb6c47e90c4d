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
	"encoding/json"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	configPb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extProcPb "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	envoyTypePb "github.com/envoyproxy/go-control-plane/envoy/type/v3"

	"github.com/vllm-project/specache/pkg/tokenizer"
	"github.com/vllm-project/specache/pkg/utils"
)

// handleRequestHeaders stamps the gateway-assigned request ID onto the
// outgoing headers; it carries no cache-engine side effects of its own.
func (s *Server) handleRequestHeaders(requestID string, _ *extProcPb.ProcessingRequest) *extProcPb.ProcessingResponse {
	return headerMutationResponse(requestHeaderField, []*configPb.HeaderValueOption{
		{Header: &configPb.HeaderValue{Key: HeaderRequestID, RawValue: []byte(requestID)}},
	})
}

// requestBody is the subset of the OpenAI chat/completions request shape
// the gateway needs: enough to recover the prompt text and tokenize it.
// It mirrors validateRequestBody's hand-rolled structs in the teacher's
// gateway plugin, which likewise avoids openai-go's request params
// because that type does not support unmarshalling its own Messages
// field (a known upstream limitation noted in the teacher's own
// comments).
type requestBody struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// handleRequestBody extracts the prompt text for chat/completions or
// completions requests, tokenizes it, and asks QueryAPI for a
// speculative continuation so a speculative-decoding backend downstream
// of the proxy can consume it from HeaderSpecTokens without a second
// round trip.
func (s *Server) handleRequestBody(requestID string, req *extProcPb.ProcessingRequest) *extProcPb.ProcessingResponse {
	body := req.Request.(*extProcPb.ProcessingRequest_RequestBody)

	var parsed requestBody
	if err := json.Unmarshal(body.RequestBody.GetBody(), &parsed); err != nil {
		klog.ErrorS(err, "failed to unmarshal request body", "requestID", requestID)
		return errorResponse(envoyTypePb.StatusCode_BadRequest, HeaderErrorRequestBodyProcessing, "error processing request body")
	}

	// Prompt is usually plain text, but some clients echo a JSON-encoded
	// message or message array into it; TrimMessage recovers the content
	// field in that case and passes plain text through unchanged.
	message := utils.TrimMessage(parsed.Prompt)
	if len(parsed.Messages) > 0 {
		var b strings.Builder
		for i, m := range parsed.Messages {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(m.Content)
		}
		message = b.String()
	}

	promptTokens := tokenizer.Encode(message)

	st := s.getOrCreateState(requestID)
	st.model = parsed.Model
	st.promptTokens = promptTokens

	headers := []*configPb.HeaderValueOption{}
	if len(promptTokens) > 0 {
		if err := s.query.FetchResponsesByPromptsBatch([]string{requestID}, [][]int32{promptTokens}); err != nil {
			klog.ErrorS(err, "fetch_responses_by_prompts_batch failed", "requestID", requestID)
		} else {
			cand := s.query.Speculate([]string{requestID}, [][]int32{promptTokens}, s.cfg.MinTokenProb, false)[0]
			st.specTokens = cand
			headers = append(headers,
				headerValue(HeaderSpecTokens, joinTokens(cand)),
				headerValue(HeaderSpecLen, strconv.Itoa(s.query.SpecLen(requestID))),
			)
		}
	}
	klog.V(4).InfoS("request body processed", "requestID", requestID, "model", st.model, "promptTokens", len(promptTokens))

	return headerMutationResponse(requestBodyField, headers)
}

func joinTokens(tokens []int32) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = strconv.FormatInt(int64(t), 10)
	}
	return strings.Join(parts, ",")
}
