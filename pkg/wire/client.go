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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vllm-project/specache/pkg/fanout"
)

// HTTPPublisher implements fanout.Publisher over the HTTP+JSON wire
// protocol served by NewHTTPServer.
type HTTPPublisher struct {
	client *http.Client
}

// NewHTTPPublisher builds a Publisher with a bounded per-call timeout;
// ClientFanout enforces its own deadlines per §5's cancellation policy.
func NewHTTPPublisher(timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{client: &http.Client{Timeout: timeout}}
}

var _ fanout.Publisher = (*HTTPPublisher)(nil)

func (p *HTTPPublisher) Publish(ctx context.Context, endpoint string, req fanout.UpdateRequest) (bool, error) {
	responses := make([]TokenList, len(req.Responses))
	for i, r := range req.Responses {
		responses[i] = TokenList{Tokens: r}
	}
	body, err := json.Marshal(UpdateCacheRequest{
		PromptHash: req.PromptHash,
		Prompt:     TokenList{Tokens: req.Prompt},
		Responses:  responses,
	})
	if err != nil {
		return false, fmt.Errorf("encode update request: %w", err)
	}

	url := fmt.Sprintf("http://%s/UpdateCache", endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build update request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("update call to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("update call to %s returned status %d", endpoint, resp.StatusCode)
	}

	var out UpdateCacheResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode update response from %s: %w", endpoint, err)
	}
	return out.Success, nil
}
