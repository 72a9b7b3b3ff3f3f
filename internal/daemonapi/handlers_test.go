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
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckoons/argo/internal/ciquery"
	"github.com/ckoons/argo/internal/config"
	"github.com/ckoons/argo/internal/execlifecycle"
	"github.com/ckoons/argo/internal/iobuffer"
	"github.com/ckoons/argo/internal/registry"
)

func newTestHandler(t *testing.T) (*Handler, *registry.Registry) {
	t.Helper()
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.CheckpointDir = t.TempDir()
	reg := registry.New("")
	mgr := execlifecycle.NewManager(cfg, reg, slog.Default())
	io := iobuffer.New()
	return New(reg, mgr, io, ciquery.EchoProvider{}, slog.Default(), "test"), reg
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	h, reg := newTestHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func decodeJSON(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestHandleListReturnsRegisteredWorkflows(t *testing.T) {
	srv, reg := newTestServer(t)
	_, err := reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StateRunning})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/workflow/list")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	workflows, ok := body["workflows"].([]any)
	require.True(t, ok)
	assert.Len(t, workflows, 1)
}

func TestHandleStatusNotFoundReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/workflow/status/wf_missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStatusReturnsEntryFields(t *testing.T) {
	srv, reg := newTestServer(t)
	_, err := reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StateRunning})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/workflow/status/wf_1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "wf_1", body["workflow_id"])
	assert.Equal(t, "running", body["state"])
}

func TestHandleProgressUpdatesRegistry(t *testing.T) {
	srv, reg := newTestServer(t)
	_, err := reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StateRunning})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/workflow/progress/wf_1", "application/json",
		strings.NewReader(`{"current_step":2,"total_steps":5,"step_name":"build"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := reg.Find("wf_1")
	require.NotNil(t, got)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, "build", got.LastStepName)
}

func TestHandlePauseResumeNoExecutorIsNoop(t *testing.T) {
	srv, reg := newTestServer(t)
	_, err := reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StatePending})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/workflow/pause/wf_1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/workflow/resume/wf_1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleAbandonWithNoRunningExecutorFinalizes(t *testing.T) {
	srv, reg := newTestServer(t)
	_, err := reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StatePending})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/workflow/abandon/wf_1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := reg.Find("wf_1")
	require.NotNil(t, got)
	assert.Equal(t, registry.StateAbandoned, got.State)
}

func TestOutputPushAndReadRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/workflow/output?workflow_name=wf_1", "application/json",
		strings.NewReader(`{"output":"hello "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/workflow/output?workflow_name=wf_1", "application/json",
		strings.NewReader(`{"output":"world"}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/workflow/output?workflow_name=wf_1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "hello world", body["output"])
	assert.Equal(t, float64(11), body["next_offset"])
}

func TestInputPushAndPollRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/workflow/input?workflow_name=wf_1", "application/json",
		strings.NewReader(`{"input":"hello"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/workflow/input?workflow_name=wf_1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "hello", body["input"])

	resp, err = http.Get(srv.URL + "/api/workflow/input?workflow_name=wf_1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCIQueryReturnsProviderResponse(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/ci/query", "application/json",
		strings.NewReader(`{"query":"what is 2+2","provider":"echo","model":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "what is 2+2", body["response"])
}

func TestCIQueryMissingProviderIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/ci/query", "application/json",
		strings.NewReader(`{"query":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "test", body["version"])
}
