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

package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	cp := Checkpoint{WorkflowID: "wf_1", TemplatePath: "fix_bug.json", Branch: "main", CurrentStep: 2, TotalSteps: 5, IsPaused: true}
	require.NoError(t, m.Save(cp))

	got, err := m.Load("wf_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp, *got)
}

func TestLoadMissingReturnsNilNil(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	got, err := m.Load("wf_missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadRejectsNonPausedCheckpoint(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Save(Checkpoint{WorkflowID: "wf_1", IsPaused: false}))

	_, err = m.Load("wf_1")
	assert.Error(t, err)
}

func TestDeleteRemovesCheckpoint(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Save(Checkpoint{WorkflowID: "wf_1", IsPaused: true}))
	require.NoError(t, m.Delete("wf_1"))

	got, err := m.Load("wf_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
