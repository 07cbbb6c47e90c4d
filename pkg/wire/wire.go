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

// Package wire implements the UpdateService wire protocol from §6: a
// single request/response message pair transported as HTTP+JSON via
// gorilla/mux, the same router library the gateway plugin uses for its
// own HTTP surfaces. Real RPC transport (gRPC + protobuf codegen) is an
// external-collaborator concern per §1; this hand-rolled encoding covers
// the one custom message shape the spec actually names.
package wire

// TokenList mirrors the `{ tokens: repeated int32 }` wire message.
type TokenList struct {
	Tokens []int32 `json:"tokens"`
}

// UpdateCacheRequest is the UpdateService request message from §6.
type UpdateCacheRequest struct {
	PromptHash uint64      `json:"prompt_hash"`
	Prompt     TokenList   `json:"prompt"`
	Responses  []TokenList `json:"responses"`
}

// UpdateCacheResponse is the UpdateService response message from §6.
type UpdateCacheResponse struct {
	Success bool `json:"success"`
}
