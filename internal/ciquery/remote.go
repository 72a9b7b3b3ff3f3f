// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ciquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ckoons/argo/pkg/httpclient"
)

// RemoteProvider is the executor-side Provider: it forwards every query to
// the daemon's POST /api/ci/query, which owns actual provider selection.
// The executor itself never talks to an AI-provider SDK directly.
type RemoteProvider struct {
	daemonURL string
	name      string
	client    *http.Client
}

// NewRemoteProvider builds a RemoteProvider that calls daemonURL on behalf
// of the named provider (the "provider" field spec.md §6 carries in the
// request body; the daemon has the final say over what it means).
func NewRemoteProvider(daemonURL, name string) (*RemoteProvider, error) {
	client, err := httpclient.New(httpclient.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &RemoteProvider{daemonURL: daemonURL, name: name, client: client}, nil
}

type ciQueryRequest struct {
	Query    string `json:"query"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type ciQueryResponse struct {
	Response string `json:"response"`
}

// Query implements Provider by POSTing to the daemon and returning its
// response field.
func (p *RemoteProvider) Query(ctx context.Context, persona, prompt string) (string, error) {
	body, err := json.Marshal(ciQueryRequest{Query: prompt, Provider: p.name, Model: persona})
	if err != nil {
		return "", fmt.Errorf("ciquery: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.daemonURL+"/api/ci/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ciquery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ciquery: query daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ciquery: daemon returned %d", resp.StatusCode)
	}

	var out ciQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ciquery: decode response: %w", err)
	}
	return out.Response, nil
}
