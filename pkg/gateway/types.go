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

const (
	// HeaderErrorRequestBodyProcessing flags a request body the gateway
	// could not parse into a chat/completions payload.
	HeaderErrorRequestBodyProcessing = "x-error-request-body-processing"
	// HeaderErrorResponseUnmarshal flags a response body the gateway
	// could not decode (streaming SSE or whole-body JSON).
	HeaderErrorResponseUnmarshal = "x-error-response-unmarshal"

	// HeaderRequestID carries the gateway-assigned request ID, the same
	// value used as QueryAPI's req_id.
	HeaderRequestID = "x-specache-request-id"
	// HeaderSpecTokens carries the speculated token IDs for this request,
	// comma-separated, so a speculative-decoding backend can consume them
	// without a second round trip to QueryAPI.
	HeaderSpecTokens = "x-specache-spec-tokens"
	// HeaderSpecLen reports the spec_len window QueryAPI used to produce
	// HeaderSpecTokens, for observability.
	HeaderSpecLen = "x-specache-spec-len"
	// HeaderPublished reports whether the completed response was
	// published back into the cache.
	HeaderPublished = "x-specache-published"
)
