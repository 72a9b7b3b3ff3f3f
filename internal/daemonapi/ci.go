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

package daemonapi

import (
	"encoding/json"
	"net/http"

	"github.com/ckoons/argo/pkg/argoerrors"
)

type ciQueryRequest struct {
	Query    string `json:"query"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// handleCIQuery handles POST /api/ci/query, the single entry point every
// executor's prompt/ci_chat step eventually calls through. The concrete
// Provider is an opaque collaborator (internal/ciquery.Provider); this
// handler validates the request shape, logs it, and returns the
// provider's response.
func (h *Handler) handleCIQuery(w http.ResponseWriter, r *http.Request) {
	var req ciQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &argoerrors.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	if req.Query == "" {
		writeErr(w, &argoerrors.ValidationError{Field: "query", Message: "required"})
		return
	}
	if req.Provider == "" {
		writeErr(w, &argoerrors.ValidationError{Field: "provider", Message: "required"})
		return
	}

	h.log.Info("ci query received", "provider", req.Provider, "model", req.Model)

	resp, err := h.provider.Query(r.Context(), req.Model, req.Query)
	if err != nil {
		writeErr(w, &argoerrors.ProviderError{Provider: req.Provider, Message: err.Error(), Cause: err})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "success",
		"provider": req.Provider,
		"response": resp,
	})
}
