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

// Package daemonapi implements the daemon's HTTP control surface: start,
// list, status, progress, pause, resume, abandon, output, input, and
// CI-query, as registered by RegisterRoutes.
package daemonapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ckoons/argo/internal/ciquery"
	"github.com/ckoons/argo/internal/execlifecycle"
	"github.com/ckoons/argo/internal/iobuffer"
	"github.com/ckoons/argo/internal/registry"
	"github.com/ckoons/argo/pkg/argoerrors"
)

// Handler holds every collaborator the route handlers need. One instance
// per daemon process.
type Handler struct {
	reg      *registry.Registry
	manager  *execlifecycle.Manager
	io       *iobuffer.Store
	provider ciquery.Provider
	log      *slog.Logger
	version  string
}

// New builds a Handler. provider answers /api/ci/query; pass
// ciquery.EchoProvider{} when no real provider is configured.
func New(reg *registry.Registry, manager *execlifecycle.Manager, io *iobuffer.Store, provider ciquery.Provider, log *slog.Logger, version string) *Handler {
	return &Handler{reg: reg, manager: manager, io: io, provider: provider, log: log, version: version}
}

// RegisterRoutes registers every API route on mux, following the Go 1.22
// method-aware ServeMux pattern the teacher uses throughout
// internal/daemon/api.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflow/start", h.handleStart)
	mux.HandleFunc("GET /api/workflow/list", h.handleList)
	mux.HandleFunc("GET /api/workflow/status/{id}", h.handleStatus)
	mux.HandleFunc("POST /api/workflow/progress/{id}", h.handleProgress)
	mux.HandleFunc("POST /api/workflow/pause/{id}", h.handlePause)
	mux.HandleFunc("POST /api/workflow/resume/{id}", h.handleResume)
	mux.HandleFunc("DELETE /api/workflow/abandon/{id}", h.handleAbandon)

	mux.HandleFunc("POST /api/workflow/output", h.handleOutputPush)
	mux.HandleFunc("GET /api/workflow/output", h.handleOutputRead)
	mux.HandleFunc("GET /api/workflow/input", h.handleInputPoll)
	mux.HandleFunc("POST /api/workflow/input", h.handleInputPush)

	mux.HandleFunc("POST /api/ci/query", h.handleCIQuery)

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/version", h.handleVersion)
	mux.Handle("GET /api/metrics", promhttp.Handler())
}

type startRequest struct {
	Script string            `json:"script"`
	Args   []string          `json:"args"`
	Env    map[string]string `json:"env"`
}

// handleStart handles POST /api/workflow/start.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &argoerrors.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	if req.Script == "" {
		writeErr(w, &argoerrors.ValidationError{Field: "script", Message: "required"})
		return
	}

	env := make(map[string]string, len(req.Env))
	for k, v := range req.Env {
		env[k] = v
	}

	// The executor only needs workflow_id, template_path, and branch
	// (spec.md §4.4); args[0], when present, is that branch.
	var branch string
	if len(req.Args) > 0 {
		branch = req.Args[0]
	}

	entry, err := h.manager.Launch(execlifecycle.StartWorkflowRequest{
		ID:           registry.NewID(time.Now()),
		TemplatePath: req.Script,
		TemplateName: req.Script,
		Branch:       branch,
		ExtraEnv:     env,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "workflow_id": entry.ID})
}

// handleList handles GET /api/workflow/list.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	entries := h.reg.List()
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"workflow_id": e.ID,
			"script":      e.TemplateName,
			"state":       e.State,
			"pid":         e.ExecutorPID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

// handleStatus handles GET /api/workflow/status/{id}.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e := h.reg.Find(id)
	if e == nil {
		writeErr(w, &argoerrors.NotFoundError{Resource: "workflow", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": e.ID,
		"script":      e.TemplateName,
		"state":       e.State,
		"pid":         e.ExecutorPID,
		"start_time":  e.StartTime,
		"end_time":    e.EndTime,
		"exit_code":   e.ExitCode,
	})
}

type progressRequest struct {
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	StepName    string `json:"step_name"`
}

// handleProgress handles POST /api/workflow/progress/{id}.
func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &argoerrors.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}

	res, err := h.reg.UpdateProgress(id, req.CurrentStep, req.TotalSteps, req.StepName)
	if err != nil {
		writeErr(w, err)
		return
	}
	if res == registry.ResultNotFound {
		writeErr(w, &argoerrors.NotFoundError{Resource: "workflow", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handlePause handles POST /api/workflow/pause/{id}.
func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Pause(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleResume handles POST /api/workflow/resume/{id}.
func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Resume(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleAbandon handles DELETE /api/workflow/abandon/{id}.
func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Abandon(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "action": "abandoned"})
}

// handleHealth handles GET /api/health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion handles GET /api/version.
func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}
