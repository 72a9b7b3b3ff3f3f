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

package iobuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOutputReturnsSuffixSinceCursor(t *testing.T) {
	s := New()
	s.AppendOutput("wf_1", "hello ")
	s.AppendOutput("wf_1", "world")

	text, next := s.ReadOutput("wf_1", 0)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, 11, next)

	text, next = s.ReadOutput("wf_1", next)
	assert.Empty(t, text)
	assert.Equal(t, 11, next)
}

func TestReadOutputOffsetBeyondLengthIsEmptyNotError(t *testing.T) {
	s := New()
	s.AppendOutput("wf_1", "x")
	text, next := s.ReadOutput("wf_1", 100)
	assert.Empty(t, text)
	assert.Equal(t, 1, next)
}

func TestPushPopInputIsFIFO(t *testing.T) {
	s := New()
	require.NoError(t, s.PushInput("wf_1", "hello"))
	require.NoError(t, s.PushInput("wf_1", "more"))

	line, ok := s.PopInput("wf_1")
	require.True(t, ok)
	assert.Equal(t, "hello", line)

	line, ok = s.PopInput("wf_1")
	require.True(t, ok)
	assert.Equal(t, "more", line)

	_, ok = s.PopInput("wf_1")
	assert.False(t, ok)
}

func TestPushInputRejectsWhenQueueFull(t *testing.T) {
	s := New()
	for i := 0; i < maxQueuedInputs; i++ {
		require.NoError(t, s.PushInput("wf_1", "line"))
	}
	err := s.PushInput("wf_1", "overflow")
	assert.Error(t, err)
}

func TestDropClearsWorkflowState(t *testing.T) {
	s := New()
	s.AppendOutput("wf_1", "data")
	require.NoError(t, s.PushInput("wf_1", "line"))

	s.Drop("wf_1")

	text, next := s.ReadOutput("wf_1", 0)
	assert.Empty(t, text)
	assert.Equal(t, 0, next)
	_, ok := s.PopInput("wf_1")
	assert.False(t, ok)
}
