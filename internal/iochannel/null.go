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

package iochannel

import "context"

// NullChannel discards every write and reports EOF on every read. Used for
// templates with no prompt/ci_chat steps, where wiring a real channel
// would be wasted work.
type NullChannel struct{}

func (NullChannel) Write(string) error             { return nil }
func (NullChannel) Flush(context.Context) error     { return nil }
func (NullChannel) ReadLine(context.Context) (string, error) { return "", ErrClosed }
func (NullChannel) Read() (string, error)           { return "", nil }
func (NullChannel) HasData() bool                   { return false }
func (NullChannel) Close() error                    { return nil }
