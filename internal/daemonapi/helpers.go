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
	"net/http"

	"github.com/ckoons/argo/pkg/argoerrors"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps a typed error from argoerrors to its HTTP status and
// writes it — the sole place an error kind is translated to a status
// code, per spec.md §7.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, argoerrors.HTTPStatus(err), err.Error())
}
