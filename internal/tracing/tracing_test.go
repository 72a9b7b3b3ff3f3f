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

package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderEmitsSpanToWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProvider("argo-test", &buf)
	require.NoError(t, err)

	ctx, span := WorkflowRun(context.Background(), p.Tracer("test"), "wf_1", "fix_bug.json")
	_, child := Step(ctx, p.Tracer("test"), "step_1", "prompt")
	child.End()
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "workflow.run")
	assert.Contains(t, buf.String(), "workflow.step")
}
