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
	"context"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckoons/argo/internal/ciquery"
	"github.com/ckoons/argo/internal/iochannel"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRunPromptSubstitutesAndSaves(t *testing.T) {
	tpl := &Template{
		EntryStep: "ask",
		Steps: map[string]*Step{
			"ask": {ID: "ask", Type: StepPrompt, Prompt: "hello {name}", SaveTo: "reply", NextStepID: "done"},
			"done": {ID: "done", Type: StepExit},
		},
	}
	ctx := NewContext(map[string]string{"name": "world"})
	ch := iochannel.NewMemoryChannel("")
	d := New(tpl, ctx, ciquery.EchoProvider{}, ch, nil, slog.New(slog.NewTextHandler(nopWriter{}, nil)), "")

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello world", ctx.Get("reply"))
	assert.Contains(t, ch.Output(), "hello world")
}

func TestRunBranchTakesTrueBranch(t *testing.T) {
	tpl := &Template{
		EntryStep: "check",
		Steps: map[string]*Step{
			"check": {ID: "check", Type: StepBranch, Condition: `vars["flag"] == "yes"`, IfTrueID: "yes_path", IfFalseID: "no_path"},
			"yes_path": {ID: "yes_path", Type: StepSet, Var: "result", Value: "true-branch", NextStepID: "done"},
			"no_path":  {ID: "no_path", Type: StepSet, Var: "result", Value: "false-branch", NextStepID: "done"},
			"done":     {ID: "done", Type: StepExit},
		},
	}
	ctx := NewContext(map[string]string{"flag": "yes"})
	ch := iochannel.NewMemoryChannel("")
	d := New(tpl, ctx, ciquery.EchoProvider{}, ch, nil, slog.New(slog.NewTextHandler(nopWriter{}, nil)), "")

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "true-branch", ctx.Get("result"))
}

func TestRunCIChatPairsEachUserMessageWithOneReply(t *testing.T) {
	tpl := &Template{
		EntryStep: "chat",
		Steps: map[string]*Step{
			"chat": {ID: "chat", Type: StepCIChat, Greeting: "hi", Prompt: "ask away", SaveTo: "history", NextStepID: "done"},
			"done": {ID: "done", Type: StepExit},
		},
	}
	ctx := NewContext(nil)
	ch := iochannel.NewMemoryChannel("hello\nmore\n\n")
	provider := &ciquery.FixedScriptProvider{Responses: []string{"reply one", "reply two"}}
	d := New(tpl, ctx, provider, ch, nil, slog.New(slog.NewTextHandler(nopWriter{}, nil)), "")

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	history := ctx.Get("history")
	assert.Equal(t, 2, strings.Count(history, "User:"))
	assert.Equal(t, 2, strings.Count(history, "AI:"))
	assert.Contains(t, history, "User: hello\nAI: reply one")
	assert.Contains(t, history, "User: more\nAI: reply two")
}

func TestSubstituteIsSinglePass(t *testing.T) {
	ctx := NewContext(map[string]string{"a": "{b}", "b": "leaked"})
	got := ctx.Substitute("value={a}")
	assert.Equal(t, "value={b}", got)
}

func TestMaxStepsGuardTrips(t *testing.T) {
	steps := make(map[string]*Step, MaxSteps+1)
	for i := 0; i < MaxSteps+5; i++ {
		id := stepName(i)
		next := stepName(i + 1)
		steps[id] = &Step{ID: id, Type: StepSet, Var: "x", Value: "1", NextStepID: next}
	}
	tpl := &Template{EntryStep: stepName(0), Steps: steps}
	ctx := NewContext(nil)
	ch := iochannel.NewMemoryChannel("")
	d := New(tpl, ctx, ciquery.EchoProvider{}, ch, nil, slog.New(slog.NewTextHandler(nopWriter{}, nil)), "")

	_, err := d.Run(context.Background())
	assert.Error(t, err)
}

func stepName(i int) string {
	return "s" + strconv.Itoa(i)
}
