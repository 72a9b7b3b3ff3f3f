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
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// Evaluator compiles and caches branch-step boolean expressions. The
// evaluation environment is the workflow context's variables, exposed as
// a flat map[string]string under the "vars" key, plus a couple of helper
// functions expr reserves its own operator names for.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewEvaluator returns an empty, ready-to-use evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs expression against ctx's current variables and returns
// the boolean result. An empty expression is treated as true.
func (e *Evaluator) Evaluate(expression string, ctx *Context) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &argoerrors.ValidationError{Field: "condition", Message: fmt.Sprintf("compile: %s", err)}
	}

	env := exprEnv(ctx)
	result, err := expr.Run(program, env)
	if err != nil {
		return false, &argoerrors.ValidationError{Field: "condition", Message: fmt.Sprintf("evaluate: %s", err)}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &argoerrors.ValidationError{Field: "condition", Message: fmt.Sprintf("must return bool, got %T", result)}
	}
	return b, nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if p, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	env := exprEnv(NewContext(nil))
	prog, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

func exprEnv(ctx *Context) map[string]interface{} {
	return map[string]interface{}{
		"vars":   ctx.AsMap(),
		"has":    hasFunc,
		"length": lengthFunc,
	}
}

func hasFunc(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}

func lengthFunc(s string) int {
	return len(s)
}
