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
	"strconv"

	"github.com/ckoons/argo/pkg/argoerrors"
)

type outputPushRequest struct {
	Output string `json:"output"`
}

// handleOutputPush handles POST /api/workflow/output?workflow_name={id} —
// the executor's side, appending one flush's worth of text to the
// workflow's output buffer.
func (h *Handler) handleOutputPush(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflow_name")
	if id == "" {
		writeErr(w, &argoerrors.ValidationError{Field: "workflow_name", Message: "required"})
		return
	}

	var req outputPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &argoerrors.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}

	h.io.AppendOutput(id, req.Output)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleOutputRead handles GET /api/workflow/output?workflow_name={id}&since={n} —
// Arc's `attach` side. since defaults to 0; the response's next_offset is
// the since value a subsequent poll should send to avoid re-reading
// already-seen output.
func (h *Handler) handleOutputRead(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflow_name")
	if id == "" {
		writeErr(w, &argoerrors.ValidationError{Field: "workflow_name", Message: "required"})
		return
	}

	since := 0
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErr(w, &argoerrors.ValidationError{Field: "since", Message: "must be a non-negative integer"})
			return
		}
		since = n
	}

	text, next := h.io.ReadOutput(id, since)
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": id,
		"output":      text,
		"next_offset": next,
	})
}

// handleInputPoll handles GET /api/workflow/input?workflow_name={id} — the
// executor's poll side. 204 means no queued input yet.
func (h *Handler) handleInputPoll(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflow_name")
	if id == "" {
		writeErr(w, &argoerrors.ValidationError{Field: "workflow_name", Message: "required"})
		return
	}

	line, ok := h.io.PopInput(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"workflow_id": id, "input": line})
}

type inputPushRequest struct {
	Input string `json:"input"`
}

// handleInputPush handles POST /api/workflow/input?workflow_name={id} —
// Arc's side, enqueuing one line for the executor's next poll. 409 when
// the bounded queue is already full.
func (h *Handler) handleInputPush(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflow_name")
	if id == "" {
		writeErr(w, &argoerrors.ValidationError{Field: "workflow_name", Message: "required"})
		return
	}

	var req inputPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &argoerrors.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}

	if err := h.io.PushInput(id, req.Input); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
