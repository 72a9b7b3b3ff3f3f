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
)

func TestSubstituteReplacesKnownVars(t *testing.T) {
	ctx := NewContext(map[string]string{"name": "argo", "branch": "main"})
	assert.Equal(t, "running argo on main", ctx.Substitute("running {name} on {branch}"))
}

func TestSubstituteLeavesUnboundVarLiteral(t *testing.T) {
	ctx := NewContext(nil)
	assert.Equal(t, "value={missing}", ctx.Substitute("value={missing}"))
	assert.Equal(t, "{x}", ctx.Substitute("{x}"))
}

func TestSubstituteLeavesMalformedBraceAlone(t *testing.T) {
	ctx := NewContext(map[string]string{"a": "X"})
	assert.Equal(t, "{not a var} and X", ctx.Substitute("{not a var} and {a}"))
}

func TestSubstituteUnterminatedBraceIsLiteral(t *testing.T) {
	ctx := NewContext(map[string]string{"a": "X"})
	assert.Equal(t, "prefix {a", ctx.Substitute("prefix {a"))
}

func TestAppendAccumulates(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Append("history", "line1\n")
	ctx.Append("history", "line2\n")
	assert.Equal(t, "line1\nline2\n", ctx.Get("history"))
}
