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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTemplateValidMinimal(t *testing.T) {
	path := writeTemplate(t, `{
		"name": "fix_bug",
		"entry_step": "start",
		"steps": {
			"start": {"id": "start", "type": "exit"}
		}
	}`)

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "start", tpl.EntryStep)
}

func TestLoadTemplateRejectsUndefinedEntryStep(t *testing.T) {
	path := writeTemplate(t, `{"name":"x","entry_step":"missing","steps":{}}`)
	_, err := LoadTemplate(path)
	assert.Error(t, err)
}

func TestLoadTemplateRejectsUnknownStepType(t *testing.T) {
	path := writeTemplate(t, `{
		"name": "x",
		"entry_step": "start",
		"steps": {"start": {"id":"start","type":"unknown"}}
	}`)
	_, err := LoadTemplate(path)
	assert.Error(t, err)
}

func TestLoadTemplateRejectsOversizedFile(t *testing.T) {
	big := make([]byte, MaxTemplateBytes+1)
	for i := range big {
		big[i] = ' '
	}
	path := writeTemplate(t, string(big))
	_, err := LoadTemplate(path)
	assert.Error(t, err)
}

func TestCheckNestingRejectsDeepBranchChain(t *testing.T) {
	steps := map[string]*Step{}
	for i := 0; i <= MaxNestingDepth+2; i++ {
		id := stepName(i)
		next := stepName(i + 1)
		steps[id] = &Step{ID: id, Type: StepBranch, IfTrueID: next, IfFalseID: next}
	}
	tail := stepName(MaxNestingDepth + 3)
	steps[tail] = &Step{ID: tail, Type: StepExit}

	tpl := &Template{EntryStep: stepName(0), Steps: steps}
	err := validateTemplate(tpl)
	assert.Error(t, err)
}
