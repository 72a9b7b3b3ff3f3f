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

package stepdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateEmptyExpressionIsTrue(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("", NewContext(nil))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateComparesVars(t *testing.T) {
	e := NewEvaluator()
	ctx := NewContext(map[string]string{"status": "ok"})

	got, err := e.Evaluate(`vars["status"] == "ok"`, ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate(`vars["status"] == "fail"`, ctx)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateCachesCompiledProgram(t *testing.T) {
	e := NewEvaluator()
	ctx := NewContext(map[string]string{"x": "1"})
	_, err := e.Evaluate(`vars["x"] == "1"`, ctx)
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)

	_, err = e.Evaluate(`vars["x"] == "1"`, ctx)
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
}

func TestEvaluateRejectsNonBoolResult(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate(`length(vars["x"])`, NewContext(map[string]string{"x": "abc"}))
	assert.Error(t, err)
}
