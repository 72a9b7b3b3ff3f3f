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
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ckoons/argo/internal/ciquery"
	"github.com/ckoons/argo/internal/iochannel"
	"github.com/ckoons/argo/internal/tracing"
	"github.com/ckoons/argo/pkg/argoerrors"
)

// tracer is a package-level otel tracer; it is a no-op until
// tracing.NewProvider installs a real TracerProvider, so Driver never
// needs its own provider wiring.
var tracer = otel.Tracer("argo-executor")

// MaxLogBytes is the runaway-loop guard: if the executor's own log file
// exceeds this size mid-run, the driver aborts with a resource-limit
// error rather than let a looping template fill the disk.
const MaxLogBytes = 100 << 20 // 100 MiB

// ProgressFunc reports step progress back to the registry (via the
// daemon API, in production).
type ProgressFunc func(currentStep, totalSteps int, stepName string) error

// Driver interprets one Template against one Context, driving the
// AI-provider callback and the I/O channel. One Driver exists per running
// executor; there is no parallelism inside an executor (spec.md §4.3's
// "single-threaded cooperative step loop").
type Driver struct {
	tpl      *Template
	ctx      *Context
	provider ciquery.Provider
	channel  iochannel.Channel
	eval     *Evaluator
	progress ProgressFunc
	log      *slog.Logger
	logPath  string

	paused  atomic.Bool
	stopped atomic.Bool
}

// New builds a driver ready to Run tpl.
func New(tpl *Template, ctx *Context, provider ciquery.Provider, channel iochannel.Channel, progress ProgressFunc, log *slog.Logger, logPath string) *Driver {
	return &Driver{
		tpl:      tpl,
		ctx:      ctx,
		provider: provider,
		channel:  channel,
		eval:     NewEvaluator(),
		progress: progress,
		log:      log,
		logPath:  logPath,
	}
}

// Pause sets the paused flag; Run busy-waits (100ms poll, per spec.md
// §4.4) between steps while it is set.
func (d *Driver) Pause() { d.paused.Store(true) }

// Resume clears the paused flag.
func (d *Driver) Resume() { d.paused.Store(false) }

// Stop requests the driver finish its current atomic sub-step and exit.
func (d *Driver) Stop() { d.stopped.Store(true) }

// Result is Run's outcome: the exit code to report to the registry and
// whether the run ended because Stop was called.
type Result struct {
	ExitCode int
	Stopped  bool
}

const (
	exitSuccess      = 0
	exitGenericError = 1
	exitStopped      = 2
	exitResourceLimit = 1
)

// Run drives the template to completion (an "exit" step, an error, a stop
// request, or the MAX_STEPS safety guard).
func (d *Driver) Run(ctx context.Context) (Result, error) {
	ctx, span := tracing.WorkflowRun(ctx, tracer, d.ctx.Get("workflow_id"), d.tpl.Name)
	defer span.End()

	current := d.tpl.EntryStep
	stepCount := 0
	total := len(d.tpl.Steps)

	for current != "" {
		if d.stopped.Load() {
			return Result{ExitCode: exitStopped, Stopped: true}, nil
		}

		for d.paused.Load() {
			if d.stopped.Load() {
				return Result{ExitCode: exitStopped, Stopped: true}, nil
			}
			sleepPoll()
		}

		stepCount++
		if stepCount > MaxSteps {
			return Result{ExitCode: exitGenericError}, &argoerrors.ValidationError{Field: "steps", Message: "MAX_STEPS exceeded"}
		}

		if d.logTooLarge() {
			return Result{ExitCode: exitResourceLimit}, &argoerrors.ResourceError{Kind: "disk", Message: "executor log exceeds 100 MiB"}
		}

		step, ok := d.tpl.Steps[current]
		if !ok {
			return Result{ExitCode: exitGenericError}, &argoerrors.ValidationError{Field: "next_step_id", Message: "references an undefined step: " + current}
		}

		if d.progress != nil {
			if err := d.progress(stepCount, total, step.ID); err != nil {
				d.log.Warn("progress report failed", "step", step.ID, "error", err)
			}
		}

		next, err := d.dispatch(ctx, step)
		if err != nil {
			return Result{ExitCode: exitGenericError}, err
		}
		current = next
	}

	if err := d.channel.Flush(ctx); err != nil {
		d.log.Warn("final flush failed", "error", err)
	}
	if d.stopped.Load() {
		return Result{ExitCode: exitStopped, Stopped: true}, nil
	}
	return Result{ExitCode: exitSuccess}, nil
}

func (d *Driver) dispatch(ctx context.Context, step *Step) (string, error) {
	ctx, span := tracing.Step(ctx, tracer, step.ID, step.Type)
	defer span.End()

	switch step.Type {
	case StepPrompt:
		return d.runPrompt(ctx, step)
	case StepCIChat:
		return d.runCIChat(ctx, step)
	case StepBranch:
		return d.runBranch(step)
	case StepSet:
		return d.runSet(step)
	case StepExit:
		return "", nil
	default:
		return "", &argoerrors.ValidationError{Field: "type", Message: "unrecognized step type: " + step.Type}
	}
}

func (d *Driver) runPrompt(ctx context.Context, step *Step) (string, error) {
	prompt := d.ctx.Substitute(step.Prompt)
	resp, err := d.provider.Query(ctx, step.Persona, prompt)
	if err != nil {
		return "", &argoerrors.WorkflowError{StepID: step.ID, Code: "provider", Message: err.Error(), Cause: err}
	}
	if step.SaveTo != "" {
		d.ctx.Set(step.SaveTo, resp)
	}
	if err := d.channel.Write(resp); err != nil {
		return "", err
	}
	if err := d.channel.Flush(ctx); err != nil {
		return "", err
	}
	return step.NextStepID, nil
}

// runCIChat drives spec.md §4.3's interactive loop: greeting+prompt, then
// poll/reply/flush until the user sends an empty, "exit", or "quit" line.
// The Nth user message is always paired with exactly one AI reply before
// the driver waits for the N+1th.
func (d *Driver) runCIChat(ctx context.Context, step *Step) (string, error) {
	greeting := d.ctx.Substitute(step.Greeting)
	prompt := d.ctx.Substitute(step.Prompt)
	if greeting != "" {
		if err := d.channel.Write(greeting + "\n"); err != nil {
			return "", err
		}
	}
	if prompt != "" {
		if err := d.channel.Write(prompt + "\n"); err != nil {
			return "", err
		}
	}
	if err := d.channel.Flush(ctx); err != nil {
		return "", err
	}

	for {
		if d.stopped.Load() {
			return "", nil
		}

		line, err := d.channel.ReadLine(ctx)
		if err != nil {
			return "", &argoerrors.WorkflowError{StepID: step.ID, Code: "io", Message: err.Error(), Cause: err}
		}

		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if trimmed == "" || lower == "exit" || lower == "quit" {
			break
		}

		reply, err := d.provider.Query(ctx, step.Persona, trimmed)
		if err != nil {
			return "", &argoerrors.WorkflowError{StepID: step.ID, Code: "provider", Message: err.Error(), Cause: err}
		}

		if step.SaveTo != "" {
			d.ctx.Append(step.SaveTo, fmt.Sprintf("User: %s\nAI: %s\n", trimmed, reply))
		}
		if err := d.channel.Write(reply + "\n"); err != nil {
			return "", err
		}
		if err := d.channel.Flush(ctx); err != nil {
			return "", err
		}
	}

	return step.NextStepID, nil
}

func (d *Driver) runBranch(step *Step) (string, error) {
	result, err := d.eval.Evaluate(step.Condition, d.ctx)
	if err != nil {
		return "", &argoerrors.WorkflowError{StepID: step.ID, Code: "branch", Message: err.Error(), Cause: err}
	}
	if result {
		return step.IfTrueID, nil
	}
	return step.IfFalseID, nil
}

func (d *Driver) runSet(step *Step) (string, error) {
	d.ctx.Set(step.Var, d.ctx.Substitute(step.Value))
	return step.NextStepID, nil
}

// pausePollInterval matches spec.md §4.4's "busy-waits on the flag
// (polling interval 100 ms)".
const pausePollInterval = 100 * time.Millisecond

func sleepPoll() {
	time.Sleep(pausePollInterval)
}

func (d *Driver) logTooLarge() bool {
	if d.logPath == "" {
		return false
	}
	info, err := os.Stat(d.logPath)
	if err != nil {
		return false
	}
	return info.Size() > MaxLogBytes
}
