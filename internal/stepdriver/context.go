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

import "strings"

// Context holds the variable bindings a running workflow accumulates:
// seed values (workflow_id, branch, ...), prompt/ci_chat save_to results,
// and set-step assignments. All values are strings — the step graph has
// no typed variables, matching spec.md §4.3's "{var}" substitution model.
type Context struct {
	vars map[string]string
}

// NewContext seeds a context with the given initial values.
func NewContext(seed map[string]string) *Context {
	c := &Context{vars: make(map[string]string, len(seed))}
	for k, v := range seed {
		c.vars[k] = v
	}
	return c
}

// Get returns the value bound to key, or "" if unbound.
func (c *Context) Get(key string) string {
	return c.vars[key]
}

// Set binds key to value.
func (c *Context) Set(key, value string) {
	c.vars[key] = value
}

// Append adds s to the existing value of key, used by ci_chat to build up
// a running "User: ... / AI: ..." transcript.
func (c *Context) Append(key, s string) {
	c.vars[key] += s
}

// AsMap returns a snapshot of every bound variable, for expression
// evaluation and for substitute.
func (c *Context) AsMap() map[string]string {
	out := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Substitute performs a single, non-recursive pass replacing every
// "{var}" placeholder in s with its bound value; an unbound or malformed
// placeholder is left in the output exactly as written. Single-pass is
// deliberate: a substituted value is never itself re-scanned for further
// placeholders, so user-controlled output data can never inject a
// template directive.
func (c *Context) Substitute(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		open += i
		b.WriteString(s[i:open])

		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			b.WriteString(s[open:])
			break
		}
		end += open

		name := s[open+1 : end]
		if v, ok := c.vars[name]; isVarName(name) && ok {
			b.WriteString(v)
		} else {
			// Unbound or malformed placeholders are preserved literally
			// rather than replaced with an empty string.
			b.WriteString(s[open : end+1])
		}
		i = end + 1
	}
	return b.String()
}

func isVarName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		isAlnum := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
		if !isAlnum {
			return false
		}
	}
	return true
}
