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

package ciquery

import (
	"context"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultFieldTimeout bounds how long a single jq expression may run
// against a provider response.
const DefaultFieldTimeout = 1 * time.Second

// FieldExtractor evaluates a jq expression against a decoded JSON value,
// pulling one field out of a provider's structured response rather than
// the whole body. No step type or API handler calls it.
type FieldExtractor struct {
	timeout time.Duration
}

// NewFieldExtractor returns an extractor with the given timeout; a zero
// timeout uses DefaultFieldTimeout.
func NewFieldExtractor(timeout time.Duration) *FieldExtractor {
	if timeout <= 0 {
		timeout = DefaultFieldTimeout
	}
	return &FieldExtractor{timeout: timeout}
}

// Extract runs expression (jq syntax) against data and returns the first
// result. An empty expression is a pass-through, returning data unchanged.
func (e *FieldExtractor) Extract(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return data, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("jq parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compile error: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	iter := code.RunWithContext(runCtx, data)
	result, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("jq expression produced no result")
	}
	if err, ok := result.(error); ok {
		return nil, fmt.Errorf("jq evaluation error: %w", err)
	}

	select {
	case <-runCtx.Done():
		return nil, runCtx.Err()
	default:
	}
	return result, nil
}
