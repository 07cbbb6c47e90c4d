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

// Package tokenizer converts between request/response text and the int32
// token sequences the suffix cache indexes. The gateway is the only caller;
// UpdateService and QueryAPI deal in token IDs exclusively.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// https://cookbook.openai.com/examples/how_to_count_tokens_with_tiktoken
const encoding = "cl100k_base"

var tke *tiktoken.Tiktoken

func init() {
	// Tiktoken initialization is slow, so init it once at package load. Use
	// the offline loader so no dictionary download happens at runtime.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	var err error
	tke, err = tiktoken.GetEncoding(encoding)
	if err != nil {
		panic(err)
	}
}

// Encode converts text into token IDs.
func Encode(text string) []int32 {
	ids := tke.Encode(text, nil, nil)
	tokens := make([]int32, len(ids))
	for i, id := range ids {
		tokens[i] = int32(id)
	}
	return tokens
}

// Decode converts token IDs back into text.
func Decode(tokens []int32) string {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = int(tok)
	}
	return tke.Decode(ids)
}
