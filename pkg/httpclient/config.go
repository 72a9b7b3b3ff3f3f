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

// Package httpclient provides a unified HTTP client factory with
// consistent timeout, retry, and logging behavior, used by every outbound
// connection the daemon makes: the executor's I/O channel back to the
// daemon API, and a provider's outbound query in internal/ciquery.
package httpclient

import (
	"fmt"
	"time"
)

// Config configures the HTTP client with timeout, retry, and logging
// settings.
type Config struct {
	// Timeout is the total request timeout including retries.
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts (0 disables
	// retry entirely).
	RetryAttempts int

	// RetryBackoff is the initial backoff delay before the first retry.
	RetryBackoff time.Duration

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration

	// UserAgent is the User-Agent header value. Required.
	UserAgent string

	// AllowNonIdempotentRetry enables retry for POST/PUT/PATCH/DELETE.
	// Off by default: a flush that times out after the daemon already
	// applied it must not silently double-apply on retry.
	AllowNonIdempotentRetry bool
}

// DefaultConfig returns sensible defaults for daemon-internal traffic.
func DefaultConfig() Config {
	return Config{
		Timeout:                 30 * time.Second,
		RetryAttempts:           3,
		RetryBackoff:            100 * time.Millisecond,
		MaxBackoff:              5 * time.Second,
		UserAgent:               "argo-executor/1.0",
		AllowNonIdempotentRetry: false,
	}
}

// Validate reports whether c is usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be > 0, got %v", c.Timeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("httpclient: retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("httpclient: retry_backoff must be > 0 when retry_attempts > 0")
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("httpclient: max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("httpclient: user_agent is required")
	}
	return nil
}
